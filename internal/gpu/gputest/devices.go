package gputest

import "github.com/alpindale/gpuprobe/internal/gpu/base"

// MI300X returns a device answering every query, modeled on an Instinct
// MI300X with one running process.
func MI300X() *Device {
	return &Device{
		ASIC: base.ASICInfo{
			MarketName:       base.Of("AMD Instinct MI300X"),
			VendorName:       base.Of("Advanced Micro Devices Inc. [AMD/ATI]"),
			DeviceID:         base.Of("0x74a1"),
			ComputeUnits:     base.Of[uint32](304),
			TargetGFXVersion: base.Of("gfx942"),
		},
		Board: base.BoardInfo{
			ProductName:      base.Of("AMD Instinct MI300X OAM"),
			ManufacturerName: base.Of("AMD"),
			ProductSerial:    base.Of("692251001124"),
		},
		UUID: "4cff74a1-0000-1000-80e7-6e8b1ab2c3d4",
		BDF:  "0000:0c:00.0",
		Driver: base.DriverInfo{
			Version: base.Of("6.8.5"),
			Date:    base.Of("2015/01/01 00:00"),
		},
		VBIOS: base.VBIOSInfo{
			Version:   base.Of("113-M3000100-102"),
			BuildDate: base.Of("2024/03/12 09:41"),
		},
		Firmware: []base.FirmwareEntry{
			{Name: "CP_MEC1", Version: "0x000000b3"},
			{Name: "SMC", Version: "85.114.0"},
		},
		Temps: map[base.TempSensor]map[base.TempMetric]int64{
			base.TempEdge:     {base.TempCurrent: 38, base.TempCritical: 100},
			base.TempJunction: {base.TempCurrent: 45},
			base.TempVRAM:     {base.TempCurrent: 36},
		},
		Activity: base.EngineActivity{
			GFX: base.Of[uint32](87),
			UMC: base.Of[uint32](41),
			MM:  base.Of[uint32](0),
		},
		Metrics: base.GPUMetrics{
			VCNActivity: []base.Reading[uint32]{base.Of[uint32](10), {}, base.Of[uint32](20), {}},
		},
		Clocks: map[base.ClockType]base.ClockInfo{
			base.ClockGFX: {Current: base.Of[uint32](2100), Min: base.Of[uint32](500), Max: base.Of[uint32](2100)},
			base.ClockMem: {Current: base.Of[uint32](1300), Min: base.Of[uint32](900), Max: base.Of[uint32](1300)},
		},
		Frequencies: map[base.ClockType]base.FrequencyLevels{
			base.ClockGFX: {Current: 1, Frequencies: []uint64{500, 2100}},
		},
		PerfLevel: "AMDSMI_DEV_PERF_LEVEL_AUTO",
		Power: base.PowerInfo{
			CurrentSocketPower: base.Of(612.0),
			AverageSocketPower: base.Of(598.5),
			PowerLimit:         base.Of(750.0),
			GFXVoltage:         base.Of[uint64](843),
			SOCVoltage:         base.Of[uint64](761),
			MemVoltage:         base.Of[uint64](1100),
		},
		PowerCap: base.PowerCapInfo{
			PowerCap:        base.Of[uint64](700_000_000),
			DefaultPowerCap: base.Of[uint64](750_000_000),
			MinPowerCap:     base.Of[uint64](0),
			MaxPowerCap:     base.Of[uint64](750_000_000),
		},
		Energy:     base.EnergyCount{Accumulator: 1_000_000, CounterResolution: 15.3},
		VRAMUsage:  base.VRAMUsage{Used: base.Of[uint64](49152), Total: base.Of[uint64](196592)},
		VRAMInfo:   base.VRAMInfo{Type: base.Of("HBM3"), BitWidth: base.Of[uint32](8192)},
		VRAMVendor: "HYNIX",
		FanSpeed:   0,
		ECCEnabled: true,
		ECCCount:   base.ECCCount{Correctable: base.Of[uint64](2), Uncorrectable: base.Of[uint64](0)},
		BadPages:   []base.BadPage{{Address: 0x1f00, Size: 4096, Status: "RESERVED"}},
		PCIe: base.PCIeInfo{
			Width:       base.Of[uint16](16),
			Speed:       base.Of(32.0),
			MaxWidth:    base.Of[uint16](16),
			MaxSpeed:    base.Of(32.0),
			ReplayCount: base.Of[uint64](0),
		},
		PCIThroughput: base.PCIThroughput{Sent: 3_500_000, Received: 12_250_000, MaxPacketSize: 256},
		XGMI:          base.XGMIInfo{HiveID: base.Of[uint64](0x3e4a9d1f00c2), NodeID: base.Of[uint64](0)},
		NUMANode:      1,
		Violation:     base.ViolationStatus{ActivePPTPower: true, ActiveProchotThermal: true},
		Processes: []base.ProcessInfo{
			{PID: 4123, Name: "python3", VRAMMem: base.Of[uint64](17179869184), GFX: base.Of(87.0), Enc: base.Of(0.0)},
		},
	}
}
