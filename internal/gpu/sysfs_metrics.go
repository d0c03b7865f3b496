package gpu

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// AMDGPU_VRAM_TYPE_* in include/uapi/drm/amdgpu_drm.h
var vramTypeNames = map[uint32]string{
	1:  "GDDR1",
	2:  "DDR2",
	3:  "GDDR3",
	4:  "GDDR4",
	5:  "GDDR5",
	6:  "HBM",
	7:  "DDR3",
	8:  "DDR4",
	9:  "GDDR6",
	10: "DDR5",
	11: "LPDDR4",
	12: "LPDDR5",
	13: "HBM3E",
}

// sysfs performance levels spelled the way amd-smi reports them
var perfLevelNames = map[string]string{
	"auto":             "AMDSMI_DEV_PERF_LEVEL_AUTO",
	"low":              "AMDSMI_DEV_PERF_LEVEL_LOW",
	"high":             "AMDSMI_DEV_PERF_LEVEL_HIGH",
	"manual":           "AMDSMI_DEV_PERF_LEVEL_MANUAL",
	"profile_standard": "AMDSMI_DEV_PERF_LEVEL_STABLE_STD",
	"profile_peak":     "AMDSMI_DEV_PERF_LEVEL_STABLE_PEAK",
	"profile_min_mclk": "AMDSMI_DEV_PERF_LEVEL_STABLE_MIN_MCLK",
	"profile_min_sclk": "AMDSMI_DEV_PERF_LEVEL_STABLE_MIN_SCLK",
	"perf_determinism": "AMDSMI_DEV_PERF_LEVEL_DETERMINISM",
}

var tempLabels = map[base.TempSensor]string{
	base.TempEdge:     "edge",
	base.TempJunction: "junction",
	base.TempVRAM:     "mem",
}

func (l *sysfsLibrary) ASICInfo(h base.ProcessorHandle) (base.ASICInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.ASICInfo{}, err
	}

	var info base.ASICInfo
	if name := pciVendorName(c.vendorID); name != "" {
		info.VendorName = base.Of(name)
	}
	if c.deviceID != "" {
		info.DeviceID = base.Of("0x" + c.deviceID)
	}
	if gfx, err := readGFXVersion(c); err == nil {
		info.TargetGFXVersion = base.Of(gfx)
	}
	if di, err := l.readDeviceInfo(c); err == nil && di.cuActive > 0 {
		info.ComputeUnits = base.Of(di.cuActive)
	}
	return info, nil
}

// readGFXVersion builds the gfx target name (gfx1100, gfx90a) from the
// GC block of the IP discovery table.
func readGFXVersion(c *sysfsCard) (string, error) {
	dir := c.attr("ip_discovery/die/0/GC/0")
	major, err := readUint(filepath.Join(dir, "major"))
	if err != nil {
		return "", err
	}
	minor, err := readUint(filepath.Join(dir, "minor"))
	if err != nil {
		return "", err
	}
	rev, err := readUint(filepath.Join(dir, "revision"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("gfx%d%d%x", major, minor, rev), nil
}

func (l *sysfsLibrary) BoardInfo(h base.ProcessorHandle) (base.BoardInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.BoardInfo{}, err
	}

	var info base.BoardInfo
	if name, err := readString(c.attr("product_name")); err == nil {
		info.ProductName = base.Of(name)
	}
	if name := pciVendorName(c.subsysVendorID); name != "" {
		info.ManufacturerName = base.Of(name)
	}
	if serial, err := readString(c.attr("serial_number")); err == nil {
		info.ProductSerial = base.Of(serial)
	}
	return info, nil
}

// DeviceUUID derives a stable UUID from the chip's unique_id fuse value.
func (l *sysfsLibrary) DeviceUUID(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	uniqueID, err := readString(c.attr("unique_id"))
	if err != nil {
		return "", err
	}
	return deviceUUID(c.deviceID, uniqueID), nil
}

// deviceUUID hashes the PCI device ID and unique_id fuse value into a UUID.
// Both may carry a 0x prefix; rocm-smi prints them that way.
func deviceUUID(deviceID, uniqueID string) string {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.TrimPrefix(s, "0x")
	}
	name := fmt.Sprintf("amdgpu:%s:%s", norm(deviceID), norm(uniqueID))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (l *sysfsLibrary) DeviceBDF(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	if c.bdf == "" {
		return "", base.Errorf(base.StatusNotFound, "bdf", "%s has no PCI_SLOT_NAME", c.name)
	}
	return c.bdf, nil
}

// DriverInfo reports the out-of-tree DKMS module version when present and
// falls back to the kernel release for the in-tree driver.
func (l *sysfsLibrary) DriverInfo(h base.ProcessorHandle) (base.DriverInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.DriverInfo{}, err
	}

	var info base.DriverInfo
	if v, err := readString(filepath.Join(l.sysRoot, "module/amdgpu/version")); err == nil {
		info.Version = base.Of(v)
	} else if v, err := readString(filepath.Join(l.procRoot, "sys/kernel/osrelease")); err == nil {
		info.Version = base.Of(v)
	} else {
		return info, err
	}
	return info, nil
}

func (l *sysfsLibrary) VBIOSInfo(h base.ProcessorHandle) (base.VBIOSInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	v, err := readString(c.attr("vbios_version"))
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	return base.VBIOSInfo{Version: base.Of(v)}, nil
}

func (l *sysfsLibrary) FirmwareInfo(h base.ProcessorHandle) ([]base.FirmwareEntry, error) {
	c, err := l.card(h)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.attr("fw_version"))
	if err != nil {
		return nil, base.FromOS("firmware", err)
	}

	var fw []base.FirmwareEntry
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), "_fw_version")
		if !ok {
			continue
		}
		version, err := readString(filepath.Join(c.attr("fw_version"), entry.Name()))
		if err != nil {
			continue
		}
		fw = append(fw, base.FirmwareEntry{Name: strings.ToUpper(name), Version: version})
	}
	if len(fw) == 0 {
		return nil, base.Errorf(base.StatusNotSupported, "firmware", "%s reports no firmware versions", c.name)
	}
	return fw, nil
}

func (l *sysfsLibrary) Temperature(h base.ProcessorHandle, sensor base.TempSensor, metric base.TempMetric) (int64, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}

	channel, err := c.hwmonChannel("temp", tempLabels[sensor])
	// older kernels leave the edge channel unlabelled
	if err != nil && sensor == base.TempEdge {
		if path, pathErr := c.hwmonAttr("temp1_input"); pathErr == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				channel, err = "temp1", nil
			}
		}
	}
	if err == nil {
		attr := channel + "_input"
		if metric == base.TempCritical {
			attr = channel + "_crit"
		}
		var milli uint64
		if milli, err = c.hwmonUint(attr); err == nil {
			return int64(milli / 1000), nil
		}
	}

	if sensor == base.TempEdge && metric == base.TempCurrent {
		if milli, serr := l.readSensor(c, sensorGPUTemp); serr == nil {
			return int64(milli / 1000), nil
		}
	}
	return 0, err
}

func (l *sysfsLibrary) Activity(h base.ProcessorHandle) (base.EngineActivity, error) {
	c, err := l.card(h)
	if err != nil {
		return base.EngineActivity{}, err
	}

	var act base.EngineActivity
	if v, err := readUint(c.attr("gpu_busy_percent")); err == nil {
		act.GFX = base.Of(uint32(v))
	} else if v, err := l.readSensor(c, sensorGPULoad); err == nil {
		act.GFX = base.Of(v)
	}
	if v, err := readUint(c.attr("mem_busy_percent")); err == nil {
		act.UMC = base.Of(uint32(v))
	}
	if !act.GFX.Valid() && !act.UMC.Valid() {
		return act, base.Errorf(base.StatusNotSupported, "activity", "%s exposes no busy counters", c.name)
	}
	return act, nil
}

// GPUMetrics is unsupported: per-instance VCN activity only exists in the
// versioned binary gpu_metrics table, which amd-smi decodes.
func (l *sysfsLibrary) GPUMetrics(h base.ProcessorHandle) (base.GPUMetrics, error) {
	if _, err := l.card(h); err != nil {
		return base.GPUMetrics{}, err
	}
	return base.GPUMetrics{}, base.NewError(base.StatusNotSupported, "gpu metrics", nil)
}

type dpmTable struct {
	levels  []uint64 // MHz
	current int      // -1 when no level is marked active
}

// readDPMTable parses a pp_dpm_* file:
//
//	0: 500Mhz
//	1: 1800Mhz *
//	2: 2600Mhz
func readDPMTable(path string) (dpmTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return dpmTable{}, base.FromOS(filepath.Base(path), err)
	}
	defer f.Close()

	table := dpmTable{current: -1}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		index, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		// deep-sleep rows are indexed "S"
		if _, err := strconv.Atoi(strings.TrimSpace(index)); err != nil {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		mhz, err := strconv.ParseUint(strings.TrimSuffix(strings.ToLower(fields[0]), "mhz"), 10, 64)
		if err != nil {
			return dpmTable{}, base.NewError(base.StatusUnexpectedData, filepath.Base(path), err)
		}
		if fields[len(fields)-1] == "*" {
			table.current = len(table.levels)
		}
		table.levels = append(table.levels, mhz)
	}
	if err := scanner.Err(); err != nil {
		return dpmTable{}, base.NewError(base.StatusIO, filepath.Base(path), err)
	}
	if len(table.levels) == 0 {
		return dpmTable{}, base.Errorf(base.StatusNotSupported, filepath.Base(path), "no DPM levels")
	}
	return table, nil
}

func dpmFile(clk base.ClockType) string {
	if clk == base.ClockMem {
		return "pp_dpm_mclk"
	}
	return "pp_dpm_sclk"
}

func (l *sysfsLibrary) ClockInfo(h base.ProcessorHandle, clk base.ClockType) (base.ClockInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.ClockInfo{}, err
	}

	var info base.ClockInfo
	table, err := readDPMTable(c.attr(dpmFile(clk)))
	if err == nil {
		lo, hi := table.levels[0], table.levels[0]
		for _, mhz := range table.levels {
			lo, hi = min(lo, mhz), max(hi, mhz)
		}
		info.Min, info.Max = base.Of(uint32(lo)), base.Of(uint32(hi))
		if table.current >= 0 {
			info.Current = base.Of(uint32(table.levels[table.current]))
		}
	}
	if !info.Current.Valid() {
		sensor := uint32(sensorGFXSCLK)
		if clk == base.ClockMem {
			sensor = sensorGFXMCLK
		}
		if mhz, serr := l.readSensor(c, sensor); serr == nil {
			info.Current = base.Of(mhz)
			err = nil
		}
	}
	return info, err
}

func (l *sysfsLibrary) ClockFrequencies(h base.ProcessorHandle, clk base.ClockType) (base.FrequencyLevels, error) {
	c, err := l.card(h)
	if err != nil {
		return base.FrequencyLevels{}, err
	}
	table, err := readDPMTable(c.attr(dpmFile(clk)))
	if err != nil {
		return base.FrequencyLevels{}, err
	}
	return base.FrequencyLevels{Current: table.current, Frequencies: table.levels}, nil
}

func (l *sysfsLibrary) PerfLevel(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	level, err := readString(c.attr("power_dpm_force_performance_level"))
	if err != nil {
		return "", err
	}
	return perfLevelName(level), nil
}

// perfLevelName maps the driver's level keyword to the amd-smi enum name.
func perfLevelName(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if name, ok := perfLevelNames[level]; ok {
		return name
	}
	return "AMDSMI_DEV_PERF_LEVEL_" + strings.ToUpper(level)
}

func (l *sysfsLibrary) PowerInfo(h base.ProcessorHandle) (base.PowerInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PowerInfo{}, err
	}

	var info base.PowerInfo
	if uw, err := c.hwmonUint("power1_input"); err == nil {
		info.CurrentSocketPower = base.Of(float64(uw) / 1e6)
	}
	if uw, err := c.hwmonUint("power1_average"); err == nil {
		info.AverageSocketPower = base.Of(float64(uw) / 1e6)
	} else if w, err := l.readSensor(c, sensorGPUAvgPower); err == nil {
		info.AverageSocketPower = base.Of(float64(w))
	}
	if uw, err := c.hwmonUint("power1_cap"); err == nil {
		info.PowerLimit = base.Of(float64(uw) / 1e6)
	}
	info.GFXVoltage = l.voltage(c, "vddgfx", sensorVDDGFX)
	info.SOCVoltage = l.voltage(c, "vddnb", sensorVDDNB)
	info.MemVoltage = l.voltage(c, "vddmem", 0)

	if !info.CurrentSocketPower.Valid() && !info.AverageSocketPower.Valid() && !info.PowerLimit.Valid() &&
		!info.GFXVoltage.Valid() && !info.SOCVoltage.Valid() && !info.MemVoltage.Valid() {
		return info, base.Errorf(base.StatusNotSupported, "power", "%s exposes no power sensors", c.name)
	}
	return info, nil
}

// voltage reads a labelled hwmon rail in mV, falling back to the sensor
// ioctl when one is given.
func (l *sysfsLibrary) voltage(c *sysfsCard, label string, sensor uint32) base.Reading[uint64] {
	if channel, err := c.hwmonChannel("in", label); err == nil {
		if mv, err := c.hwmonUint(channel + "_input"); err == nil {
			return base.Of(mv)
		}
	}
	if sensor != 0 {
		if mv, err := l.readSensor(c, sensor); err == nil {
			return base.Of(uint64(mv))
		}
	}
	return base.Reading[uint64]{}
}

func (l *sysfsLibrary) PowerCapInfo(h base.ProcessorHandle, sensor int) (base.PowerCapInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PowerCapInfo{}, err
	}

	prefix := fmt.Sprintf("power%d_cap", sensor+1)
	read := func(suffix string) base.Reading[uint64] {
		if uw, err := c.hwmonUint(prefix + suffix); err == nil {
			return base.Of(uw)
		}
		return base.Reading[uint64]{}
	}
	info := base.PowerCapInfo{
		PowerCap:        read(""),
		DefaultPowerCap: read("_default"),
		MinPowerCap:     read("_min"),
		MaxPowerCap:     read("_max"),
	}
	if !info.PowerCap.Valid() && !info.DefaultPowerCap.Valid() && !info.MinPowerCap.Valid() && !info.MaxPowerCap.Valid() {
		return info, base.Errorf(base.StatusNotSupported, "power cap", "%s has no %s attributes", c.name, prefix)
	}
	return info, nil
}

func (l *sysfsLibrary) EnergyCount(h base.ProcessorHandle) (base.EnergyCount, error) {
	c, err := l.card(h)
	if err != nil {
		return base.EnergyCount{}, err
	}
	uj, err := c.hwmonUint("energy1_input")
	if err != nil {
		return base.EnergyCount{}, err
	}
	return base.EnergyCount{Accumulator: uj, CounterResolution: 1}, nil
}

func (l *sysfsLibrary) VRAMUsage(h base.ProcessorHandle) (base.VRAMUsage, error) {
	c, err := l.card(h)
	if err != nil {
		return base.VRAMUsage{}, err
	}

	var usage base.VRAMUsage
	used, usedErr := readUint(c.attr("mem_info_vram_used"))
	if usedErr == nil {
		usage.Used = base.Of(used / (1 << 20))
	}
	total, totalErr := readUint(c.attr("mem_info_vram_total"))
	if totalErr == nil {
		usage.Total = base.Of(total / (1 << 20))
	}
	if usedErr != nil && totalErr != nil {
		return usage, usedErr
	}
	return usage, nil
}

func (l *sysfsLibrary) VRAMInfo(h base.ProcessorHandle) (base.VRAMInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.VRAMInfo{}, err
	}
	di, err := l.readDeviceInfo(c)
	if err != nil {
		return base.VRAMInfo{}, err
	}

	var info base.VRAMInfo
	if name, ok := vramTypeNames[di.vramType]; ok {
		info.Type = base.Of(name)
	}
	if di.vramBitWidth > 0 {
		info.BitWidth = base.Of(di.vramBitWidth)
	}
	return info, nil
}

func (l *sysfsLibrary) VRAMVendor(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	return readString(c.attr("mem_info_vram_vendor"))
}

// FanSpeed converts the 0-255 PWM duty cycle to percent.
func (l *sysfsLibrary) FanSpeed(h base.ProcessorHandle, fan int) (uint64, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}
	pwm, err := c.hwmonUint(fmt.Sprintf("pwm%d", fan+1))
	if err != nil {
		return 0, err
	}
	return uint64(math.Round(float64(pwm) * 100 / 255)), nil
}

func (l *sysfsLibrary) FanRPM(h base.ProcessorHandle, fan int) (uint64, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}
	return c.hwmonUint(fmt.Sprintf("fan%d_input", fan+1))
}

func (l *sysfsLibrary) FanSpeedMax(h base.ProcessorHandle, fan int) (uint64, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}
	return c.hwmonUint(fmt.Sprintf("fan%d_max", fan+1))
}

// ECCEnabled reports whether any RAS feature is enabled; ras/features reads
// "feature mask: 0x...".
func (l *sysfsLibrary) ECCEnabled(h base.ProcessorHandle) (bool, error) {
	c, err := l.card(h)
	if err != nil {
		return false, err
	}
	data, err := readString(c.attr("ras/features"))
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(data, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "feature mask" {
			continue
		}
		mask, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(value), "0x"), 16, 64)
		if err != nil {
			return false, base.NewError(base.StatusUnexpectedData, "ras features", err)
		}
		return mask != 0, nil
	}
	return false, base.Errorf(base.StatusUnexpectedData, "ras features", "no feature mask in %q", data)
}

// TotalECCCount sums every RAS block's counters. Each *_err_count file reads
// "ue: N" and "ce: M" on separate lines.
func (l *sysfsLibrary) TotalECCCount(h base.ProcessorHandle) (base.ECCCount, error) {
	c, err := l.card(h)
	if err != nil {
		return base.ECCCount{}, err
	}
	files, _ := filepath.Glob(c.attr("ras/*_err_count"))
	if len(files) == 0 {
		return base.ECCCount{}, base.Errorf(base.StatusNotSupported, "ecc count", "%s has no RAS counters", c.name)
	}

	var ue, ce uint64
	for _, file := range files {
		data, err := readString(file)
		if err != nil {
			return base.ECCCount{}, err
		}
		for _, line := range strings.Split(data, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return base.ECCCount{}, base.NewError(base.StatusUnexpectedData, filepath.Base(file), err)
			}
			switch strings.TrimSpace(key) {
			case "ue":
				ue += n
			case "ce":
				ce += n
			}
		}
	}
	return base.ECCCount{Correctable: base.Of(ce), Uncorrectable: base.Of(ue)}, nil
}

// BadPages parses ras/gpu_vram_bad_pages, one "pfn : size : flag" row per
// retired page.
func (l *sysfsLibrary) BadPages(h base.ProcessorHandle) ([]base.BadPage, error) {
	c, err := l.card(h)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.attr("ras/gpu_vram_bad_pages"))
	if err != nil {
		return nil, base.FromOS("bad pages", err)
	}

	pages := []base.BadPage{}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(parts[0]), "0x"), 16, 64)
		if err != nil {
			return nil, base.NewError(base.StatusUnexpectedData, "bad pages", err)
		}
		size, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(parts[1]), "0x"), 16, 64)
		if err != nil {
			return nil, base.NewError(base.StatusUnexpectedData, "bad pages", err)
		}
		pages = append(pages, base.BadPage{Address: addr, Size: size, Status: badPageStatus(strings.TrimSpace(parts[2]))})
	}
	return pages, nil
}

func badPageStatus(flag string) string {
	switch flag {
	case "R":
		return "RESERVED"
	case "P":
		return "PENDING"
	case "F":
		return "UNRESERVABLE"
	}
	return flag
}

func (l *sysfsLibrary) PCIeInfo(h base.ProcessorHandle) (base.PCIeInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PCIeInfo{}, err
	}

	var info base.PCIeInfo
	if w, err := readUint(c.attr("current_link_width")); err == nil {
		info.Width = base.Of(uint16(w))
	}
	if s, err := readLinkSpeed(c.attr("current_link_speed")); err == nil {
		info.Speed = base.Of(s)
	}
	if w, err := readUint(c.attr("max_link_width")); err == nil {
		info.MaxWidth = base.Of(uint16(w))
	}
	if s, err := readLinkSpeed(c.attr("max_link_speed")); err == nil {
		info.MaxSpeed = base.Of(s)
	}
	if n, err := readUint(c.attr("pcie_replay_count")); err == nil {
		info.ReplayCount = base.Of(n)
	}
	if !info.Width.Valid() && !info.Speed.Valid() && !info.MaxWidth.Valid() && !info.MaxSpeed.Valid() && !info.ReplayCount.Valid() {
		return info, base.Errorf(base.StatusNotSupported, "pcie", "%s exposes no link attributes", c.name)
	}
	return info, nil
}

// readLinkSpeed parses "16.0 GT/s PCIe" into GT/s.
func readLinkSpeed(path string) (float64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(s)
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, base.NewError(base.StatusUnexpectedData, filepath.Base(path), err)
	}
	return v, nil
}

// PCIThroughput reads pcie_bw: packets received, packets sent and the max
// payload size, sampled by the driver over one second.
func (l *sysfsLibrary) PCIThroughput(h base.ProcessorHandle) (base.PCIThroughput, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PCIThroughput{}, err
	}
	s, err := readString(c.attr("pcie_bw"))
	if err != nil {
		return base.PCIThroughput{}, err
	}
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return base.PCIThroughput{}, base.Errorf(base.StatusUnexpectedData, "pcie_bw", "unexpected format %q", s)
	}
	var n [3]uint64
	for i, field := range fields {
		if n[i], err = strconv.ParseUint(field, 10, 64); err != nil {
			return base.PCIThroughput{}, base.NewError(base.StatusUnexpectedData, "pcie_bw", err)
		}
	}
	return base.PCIThroughput{Received: n[0] * n[2], Sent: n[1] * n[2], MaxPacketSize: n[2]}, nil
}

func (l *sysfsLibrary) XGMIInfo(h base.ProcessorHandle) (base.XGMIInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.XGMIInfo{}, err
	}
	hive, err := readUint(c.attr("xgmi_hive_id"))
	if err != nil {
		return base.XGMIInfo{}, err
	}
	if hive == 0 {
		return base.XGMIInfo{}, base.Errorf(base.StatusNotSupported, "xgmi", "%s is not part of an XGMI hive", c.name)
	}
	info := base.XGMIInfo{HiveID: base.Of(hive)}
	if node, err := readUint(c.attr("xgmi_device_id")); err == nil {
		info.NodeID = base.Of(node)
	}
	return info, nil
}

func (l *sysfsLibrary) NUMANode(h base.ProcessorHandle) (int, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}
	node, err := readInt(c.attr("numa_node"))
	if err != nil {
		return 0, err
	}
	if node < 0 {
		return 0, base.Errorf(base.StatusNotSupported, "numa node", "%s has no NUMA affinity", c.name)
	}
	return int(node), nil
}

// ViolationStatus is unsupported: throttle residency lives in the binary
// gpu_metrics table.
func (l *sysfsLibrary) ViolationStatus(h base.ProcessorHandle) (base.ViolationStatus, error) {
	if _, err := l.card(h); err != nil {
		return base.ViolationStatus{}, err
	}
	return base.ViolationStatus{}, base.NewError(base.StatusNotSupported, "violation status", nil)
}

func (l *sysfsLibrary) ProcessList(h base.ProcessorHandle) ([]base.ProcessInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return nil, err
	}
	byDevice, err := l.scanProcesses()
	if err != nil {
		return nil, err
	}
	return slices.Clone(byDevice[c.bdf]), nil
}
