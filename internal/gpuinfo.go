package internal

import (
	"fmt"
	"math"
	"strings"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

const UnknownGPU = "Unknown GPU"

// GPUInfo is the metric record for one device. Every field starts out
// unavailable and is filled in only by a probe that succeeded.
type GPUInfo struct {
	ProductName   string               `json:"product_name" yaml:"product_name"`
	Vendor        base.Reading[string] `json:"vendor_name" yaml:"vendor_name"`
	Manufacturer  base.Reading[string] `json:"manufacturer" yaml:"manufacturer"`
	Serial        base.Reading[string] `json:"serial" yaml:"serial"`
	UUID          base.Reading[string] `json:"uuid" yaml:"uuid"`
	BDF           base.Reading[string] `json:"bdf" yaml:"bdf"`
	DeviceID      base.Reading[string] `json:"device_id" yaml:"device_id"`
	ComputeUnits  base.Reading[uint32] `json:"compute_units" yaml:"compute_units"`
	GFXVersion    base.Reading[string] `json:"gfx_version" yaml:"gfx_version"`
	DriverVersion base.Reading[string] `json:"driver_version" yaml:"driver_version"`
	DriverDate    base.Reading[string] `json:"driver_date" yaml:"driver_date"`
	VBIOSVersion  base.Reading[string] `json:"vbios_version" yaml:"vbios_version"`
	VBIOSDate     base.Reading[string] `json:"vbios_date" yaml:"vbios_date"`
	Firmware      []base.FirmwareEntry `json:"firmware" yaml:"firmware"`

	EdgeTemp     base.Reading[int64] `json:"edge_temp" yaml:"edge_temp"`         // °C
	JunctionTemp base.Reading[int64] `json:"junction_temp" yaml:"junction_temp"` // °C
	MemTemp      base.Reading[int64] `json:"mem_temp" yaml:"mem_temp"`           // °C
	CriticalTemp base.Reading[int64] `json:"critical_temp" yaml:"critical_temp"` // °C

	GPUUtil        base.Reading[uint32]  `json:"gpu_util" yaml:"gpu_util"`
	MemUtil        base.Reading[uint32]  `json:"mem_util" yaml:"mem_util"`
	MMUtil         base.Reading[uint32]  `json:"mm_util" yaml:"mm_util"`
	EncoderUtil    base.Reading[float64] `json:"encoder_util" yaml:"encoder_util"`
	DecoderUtil    base.Reading[float64] `json:"decoder_util" yaml:"decoder_util"`
	PerfLevel      base.Reading[string]  `json:"perf_level" yaml:"perf_level"`
	ThrottleStatus base.Reading[string]  `json:"throttle_status" yaml:"throttle_status"`

	GPUClock       base.Reading[uint32] `json:"gpu_clock" yaml:"gpu_clock"` // MHz
	GPUClockMin    base.Reading[uint32] `json:"gpu_clock_min" yaml:"gpu_clock_min"`
	GPUClockMax    base.Reading[uint32] `json:"gpu_clock_max" yaml:"gpu_clock_max"`
	MemClock       base.Reading[uint32] `json:"mem_clock" yaml:"mem_clock"`
	MemClockMin    base.Reading[uint32] `json:"mem_clock_min" yaml:"mem_clock_min"`
	MemClockMax    base.Reading[uint32] `json:"mem_clock_max" yaml:"mem_clock_max"`
	GPUFrequencies []uint64             `json:"gpu_available_freqs" yaml:"gpu_available_freqs"`

	Power           base.Reading[float64] `json:"power" yaml:"power"`         // W
	PowerAvg        base.Reading[float64] `json:"power_avg" yaml:"power_avg"` // W
	PowerCap        base.Reading[uint64]  `json:"power_cap" yaml:"power_cap"` // µW
	PowerCapDefault base.Reading[uint64]  `json:"power_cap_default" yaml:"power_cap_default"`
	PowerCapMin     base.Reading[uint64]  `json:"power_cap_min" yaml:"power_cap_min"`
	PowerCapMax     base.Reading[uint64]  `json:"power_cap_max" yaml:"power_cap_max"`
	Energy          base.Reading[float64] `json:"energy_counter" yaml:"energy_counter"` // µJ

	VoltageGFX base.Reading[uint64] `json:"voltage_gfx" yaml:"voltage_gfx"` // mV
	VoltageSOC base.Reading[uint64] `json:"voltage_soc" yaml:"voltage_soc"`
	VoltageMem base.Reading[uint64] `json:"voltage_mem" yaml:"voltage_mem"`

	VRAMUsed     base.Reading[uint64] `json:"vram_used" yaml:"vram_used"` // MB
	VRAMTotal    base.Reading[uint64] `json:"vram_total" yaml:"vram_total"`
	VRAMType     base.Reading[string] `json:"vram_type" yaml:"vram_type"`
	VRAMVendor   base.Reading[string] `json:"vram_vendor" yaml:"vram_vendor"`
	VRAMBitWidth base.Reading[uint32] `json:"vram_bit_width" yaml:"vram_bit_width"`

	FanSpeed  base.Reading[uint64] `json:"fan_speed_pct" yaml:"fan_speed_pct"`
	FanRPM    base.Reading[uint64] `json:"fan_speed_rpm" yaml:"fan_speed_rpm"`
	FanMaxRPM base.Reading[uint64] `json:"fan_max_rpm" yaml:"fan_max_rpm"`

	ECCEnabled base.Reading[bool]   `json:"ecc_enabled" yaml:"ecc_enabled"`
	SingleECC  base.Reading[uint64] `json:"single_ecc" yaml:"single_ecc"`
	DoubleECC  base.Reading[uint64] `json:"double_ecc" yaml:"double_ecc"`
	BadPages   base.Reading[int]    `json:"bad_pages" yaml:"bad_pages"`

	PCIeWidth       base.Reading[uint16]  `json:"pcie_width" yaml:"pcie_width"`
	PCIeSpeed       base.Reading[float64] `json:"pcie_speed" yaml:"pcie_speed"` // GT/s
	PCIeMaxWidth    base.Reading[uint16]  `json:"pcie_max_width" yaml:"pcie_max_width"`
	PCIeMaxSpeed    base.Reading[float64] `json:"pcie_max_speed" yaml:"pcie_max_speed"`
	PCIeReplayCount base.Reading[uint64]  `json:"pcie_replay_count" yaml:"pcie_replay_count"`
	PCIeTX          base.Reading[uint64]  `json:"pcie_tx" yaml:"pcie_tx"` // bytes/s
	PCIeRX          base.Reading[uint64]  `json:"pcie_rx" yaml:"pcie_rx"`
	XGMIHiveID      base.Reading[string]  `json:"xgmi_hive_id" yaml:"xgmi_hive_id"`
	XGMINodeID      base.Reading[uint64]  `json:"xgmi_node_id" yaml:"xgmi_node_id"`
	NUMANode        base.Reading[int]     `json:"numa_node" yaml:"numa_node"`

	Processes []base.ProcessInfo `json:"processes" yaml:"processes"`
}

// VRAMUsagePercent is used/total*100 rounded to one decimal; unavailable
// when either side is, or when total is zero.
func (g *GPUInfo) VRAMUsagePercent() base.Reading[float64] {
	used, ok := g.VRAMUsed.Get()
	if !ok {
		return base.Reading[float64]{}
	}
	total, ok := g.VRAMTotal.Get()
	if !ok || total == 0 {
		return base.Reading[float64]{}
	}
	return base.Of(math.Round(float64(used)/float64(total)*1000) / 10)
}

// probe runs one library query. Errors and panics both leave the caller's
// fields untouched, i.e. unavailable.
func probe[T any](query func() (T, error)) (result T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			result, ok = zero, false
		}
	}()
	v, err := query()
	if err != nil {
		return result, false
	}
	return v, true
}

// reading wraps a scalar query straight into a Reading.
func reading[T any](query func() (T, error)) base.Reading[T] {
	if v, ok := probe(query); ok {
		return base.Of(v)
	}
	return base.Reading[T]{}
}

// GatherGPUInfo probes every metric of one device. It never fails: whatever
// the library cannot answer stays unavailable in the returned record.
func GatherGPUInfo(lib base.Library, h base.ProcessorHandle) *GPUInfo {
	info := &GPUInfo{Processes: []base.ProcessInfo{}}

	gatherIdentity(lib, h, info)
	gatherUtilization(lib, h, info)
	gatherClocks(lib, h, info)
	gatherPower(lib, h, info)
	gatherMemory(lib, h, info)
	gatherCooling(lib, h, info)
	gatherReliability(lib, h, info)
	gatherInterconnect(lib, h, info)

	if procs, ok := probe(func() ([]base.ProcessInfo, error) { return lib.ProcessList(h) }); ok && len(procs) > 0 {
		info.Processes = procs
	}
	return info
}

func gatherIdentity(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	var marketName base.Reading[string]
	if asic, ok := probe(func() (base.ASICInfo, error) { return lib.ASICInfo(h) }); ok {
		marketName = asic.MarketName
		info.Vendor = asic.VendorName
		info.DeviceID = asic.DeviceID
		info.ComputeUnits = asic.ComputeUnits
		info.GFXVersion = asic.TargetGFXVersion
	}
	var boardName base.Reading[string]
	if board, ok := probe(func() (base.BoardInfo, error) { return lib.BoardInfo(h) }); ok {
		boardName = board.ProductName
		info.Manufacturer = board.ManufacturerName
		info.Serial = board.ProductSerial
	}
	info.ProductName = marketName.Or(boardName.Or(UnknownGPU))

	info.UUID = reading(func() (string, error) { return lib.DeviceUUID(h) })
	info.BDF = reading(func() (string, error) { return lib.DeviceBDF(h) })

	if driver, ok := probe(func() (base.DriverInfo, error) { return lib.DriverInfo(h) }); ok {
		info.DriverVersion = driver.Version
		info.DriverDate = driver.Date
	}
	if vbios, ok := probe(func() (base.VBIOSInfo, error) { return lib.VBIOSInfo(h) }); ok {
		info.VBIOSVersion = vbios.Version
		info.VBIOSDate = vbios.BuildDate
	}
	if fw, ok := probe(func() ([]base.FirmwareEntry, error) { return lib.FirmwareInfo(h) }); ok && len(fw) > 0 {
		info.Firmware = fw
	}
}

func gatherUtilization(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	temp := func(sensor base.TempSensor, metric base.TempMetric) base.Reading[int64] {
		return reading(func() (int64, error) { return lib.Temperature(h, sensor, metric) })
	}
	info.EdgeTemp = temp(base.TempEdge, base.TempCurrent)
	info.JunctionTemp = temp(base.TempJunction, base.TempCurrent)
	info.MemTemp = temp(base.TempVRAM, base.TempCurrent)
	info.CriticalTemp = temp(base.TempEdge, base.TempCritical)

	if act, ok := probe(func() (base.EngineActivity, error) { return lib.Activity(h) }); ok {
		info.GPUUtil = act.GFX
		info.MemUtil = act.UMC
		info.MMUtil = act.MM
	}
	if metrics, ok := probe(func() (base.GPUMetrics, error) { return lib.GPUMetrics(h) }); ok {
		info.EncoderUtil = meanActivity(metrics.VCNActivity)
		info.DecoderUtil = meanActivity(metrics.JPEGActivity)
	}
	info.PerfLevel = reading(func() (string, error) { return lib.PerfLevel(h) })
	if v, ok := probe(func() (base.ViolationStatus, error) { return lib.ViolationStatus(h) }); ok {
		info.ThrottleStatus = base.Of(throttleStatus(v))
	}
}

// meanActivity averages the instances that reported a value.
func meanActivity(channels []base.Reading[uint32]) base.Reading[float64] {
	var sum float64
	var n int
	for _, ch := range channels {
		if v, ok := ch.Get(); ok {
			sum += float64(v)
			n++
		}
	}
	if n == 0 {
		return base.Reading[float64]{}
	}
	return base.Of(sum / float64(n))
}

func throttleStatus(v base.ViolationStatus) string {
	var active []string
	if v.ActivePPTPower {
		active = append(active, "Power")
	}
	if v.ActiveSocketThermal {
		active = append(active, "Thermal")
	}
	if v.ActiveProchotThermal {
		active = append(active, "Prochot")
	}
	if len(active) == 0 {
		return "None"
	}
	return strings.Join(active, ", ")
}

func gatherClocks(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	if clk, ok := probe(func() (base.ClockInfo, error) { return lib.ClockInfo(h, base.ClockGFX) }); ok {
		info.GPUClock, info.GPUClockMin, info.GPUClockMax = clk.Current, clk.Min, clk.Max
	}
	if clk, ok := probe(func() (base.ClockInfo, error) { return lib.ClockInfo(h, base.ClockMem) }); ok {
		info.MemClock, info.MemClockMin, info.MemClockMax = clk.Current, clk.Min, clk.Max
	}
	if levels, ok := probe(func() (base.FrequencyLevels, error) { return lib.ClockFrequencies(h, base.ClockGFX) }); ok {
		info.GPUFrequencies = levels.Frequencies
	}
}

func gatherPower(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	if power, ok := probe(func() (base.PowerInfo, error) { return lib.PowerInfo(h) }); ok {
		info.Power = power.CurrentSocketPower
		info.PowerAvg = power.AverageSocketPower
		if w, ok := power.PowerLimit.Get(); ok && w >= 0 {
			info.PowerCap = base.Of(uint64(math.Round(w * 1e6)))
		}
		info.VoltageGFX = power.GFXVoltage
		info.VoltageSOC = power.SOCVoltage
		info.VoltageMem = power.MemVoltage
	}
	// the dedicated cap query wins over the limit reported with power info
	if caps, ok := probe(func() (base.PowerCapInfo, error) { return lib.PowerCapInfo(h, 0) }); ok {
		if caps.PowerCap.Valid() {
			info.PowerCap = caps.PowerCap
		}
		info.PowerCapDefault = caps.DefaultPowerCap
		info.PowerCapMin = caps.MinPowerCap
		info.PowerCapMax = caps.MaxPowerCap
	}
	if energy, ok := probe(func() (base.EnergyCount, error) { return lib.EnergyCount(h) }); ok {
		info.Energy = base.Of(float64(energy.Accumulator) * energy.CounterResolution)
	}
}

func gatherMemory(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	if usage, ok := probe(func() (base.VRAMUsage, error) { return lib.VRAMUsage(h) }); ok {
		info.VRAMUsed = usage.Used
		info.VRAMTotal = usage.Total
	}
	if vram, ok := probe(func() (base.VRAMInfo, error) { return lib.VRAMInfo(h) }); ok {
		info.VRAMType = vram.Type
		info.VRAMBitWidth = vram.BitWidth
	}
	info.VRAMVendor = reading(func() (string, error) { return lib.VRAMVendor(h) })
}

func gatherCooling(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	info.FanSpeed = reading(func() (uint64, error) { return lib.FanSpeed(h, 0) })
	info.FanRPM = reading(func() (uint64, error) { return lib.FanRPM(h, 0) })
	info.FanMaxRPM = reading(func() (uint64, error) { return lib.FanSpeedMax(h, 0) })
}

func gatherReliability(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	info.ECCEnabled = reading(func() (bool, error) { return lib.ECCEnabled(h) })
	if ecc, ok := probe(func() (base.ECCCount, error) { return lib.TotalECCCount(h) }); ok {
		info.SingleECC = ecc.Correctable
		info.DoubleECC = ecc.Uncorrectable
	}
	if pages, ok := probe(func() ([]base.BadPage, error) { return lib.BadPages(h) }); ok {
		info.BadPages = base.Of(len(pages))
	}
}

func gatherInterconnect(lib base.Library, h base.ProcessorHandle, info *GPUInfo) {
	if pcie, ok := probe(func() (base.PCIeInfo, error) { return lib.PCIeInfo(h) }); ok {
		info.PCIeWidth = pcie.Width
		info.PCIeSpeed = pcie.Speed
		info.PCIeMaxWidth = pcie.MaxWidth
		info.PCIeMaxSpeed = pcie.MaxSpeed
		info.PCIeReplayCount = pcie.ReplayCount
	}
	if tp, ok := probe(func() (base.PCIThroughput, error) { return lib.PCIThroughput(h) }); ok {
		info.PCIeTX = base.Of(tp.Sent)
		info.PCIeRX = base.Of(tp.Received)
	}
	if xgmi, ok := probe(func() (base.XGMIInfo, error) { return lib.XGMIInfo(h) }); ok {
		if hive, ok := xgmi.HiveID.Get(); ok {
			info.XGMIHiveID = base.Of(fmt.Sprintf("0x%x", hive))
		}
		info.XGMINodeID = xgmi.NodeID
	}
	info.NUMANode = reading(func() (int, error) { return lib.NUMANode(h) })
}
