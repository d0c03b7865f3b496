package gpu

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// amd-smi subcommands, each run once per session with --json
const (
	amdCmdVersion  = "version"
	amdCmdList     = "list"
	amdCmdStatic   = "static"
	amdCmdMetric   = "metric"
	amdCmdProcess  = "process"
	amdCmdFirmware = "firmware"
	amdCmdBadPages = "bad-pages"
)

// drives the amd-smi command line tool and reads its JSON output
type AMDProvider struct {
	Path     string
	RunCmd   base.RunCmdFunc
	LookPath func(file string) (string, error)
	Logger   *slog.Logger
}

func (p AMDProvider) Name() string {
	return BackendAMDSMI
}

func (p AMDProvider) Detect() bool {
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(p.Path)
	return err == nil
}

func (p AMDProvider) Library() base.Library {
	runCmd := p.RunCmd
	if runCmd == nil {
		runCmd = execCommand
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &amdSMILibrary{
		path:   p.Path,
		runCmd: runCmd,
		logger: logger.With("backend", BackendAMDSMI),
	}
}

func execCommand(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(exitErr.Stderr))
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

type amdGPU struct {
	index int64
	bdf   string
	uuid  string
}

// one parsed amd-smi document, keyed by the "gpu" index of each entry
type amdDoc struct {
	byGPU map[int64]gjson.Result
	err   error
}

type amdSMILibrary struct {
	path   string
	runCmd base.RunCmdFunc
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	gpus        []amdGPU
	docs        map[string]*amdDoc
}

func (l *amdSMILibrary) Name() string {
	return BackendAMDSMI
}

func (l *amdSMILibrary) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.docs = make(map[string]*amdDoc)
	out, err := l.runCmd(l.path, amdCmdVersion, "--json")
	if err != nil {
		return base.NewError(base.StatusInitFailed, "init", err)
	}
	if !gjson.ValidBytes(out) {
		return base.Errorf(base.StatusInitFailed, "init", "%s %s: output is not valid JSON", l.path, amdCmdVersion)
	}
	version := gjson.ParseBytes(out)
	if version.IsArray() {
		version = version.Get("0")
	}
	l.logger.Debug("amd-smi available", "version", version.Get("amdsmi_library_version").String())

	doc := l.loadLocked(amdCmdList)
	if doc.err != nil {
		return base.NewError(base.StatusInitFailed, "init", doc.err)
	}

	l.gpus = l.gpus[:0]
	for idx := range doc.byGPU {
		entry := doc.byGPU[idx]
		l.gpus = append(l.gpus, amdGPU{
			index: idx,
			bdf:   entry.Get("bdf").String(),
			uuid:  entry.Get("uuid").String(),
		})
	}
	sort.Slice(l.gpus, func(i, j int) bool { return l.gpus[i].index < l.gpus[j].index })
	l.initialized = true
	l.logger.Debug("enumerated amd-smi devices", "count", len(l.gpus))
	return nil
}

func (l *amdSMILibrary) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.docs = nil
	l.gpus = nil
	l.initialized = false
	return nil
}

func (l *amdSMILibrary) ProcessorHandles() ([]base.ProcessorHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, base.ErrNotInit
	}
	handles := make([]base.ProcessorHandle, len(l.gpus))
	for i := range l.gpus {
		handles[i] = base.ProcessorHandle(i)
	}
	return handles, nil
}

// loadLocked runs an amd-smi subcommand once and caches the parsed result,
// errors included, for the rest of the session.
func (l *amdSMILibrary) loadLocked(cmd string) *amdDoc {
	if doc, ok := l.docs[cmd]; ok {
		return doc
	}
	doc := &amdDoc{}
	out, err := l.runCmd(l.path, cmd, "--json")
	if err != nil {
		doc.err = base.NewError(base.StatusIO, cmd, err)
	} else {
		doc.byGPU, doc.err = parseGPUDocument(cmd, out)
	}
	if doc.err != nil {
		l.logger.Debug("amd-smi command failed", "command", cmd, "error", doc.err)
	}
	l.docs[cmd] = doc
	return doc
}

// parseGPUDocument accepts both shapes amd-smi has used over releases: a
// bare array of per-GPU objects, or {"gpu_data": [...]}.
func parseGPUDocument(cmd string, data []byte) (map[int64]gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, base.Errorf(base.StatusUnexpectedData, cmd, "output is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if root.IsObject() && root.Get("gpu_data").Exists() {
		root = root.Get("gpu_data")
	}
	if !root.IsArray() {
		return nil, base.Errorf(base.StatusUnexpectedData, cmd, "expected an array of GPUs")
	}

	byGPU := make(map[int64]gjson.Result)
	for i, entry := range root.Array() {
		idx := int64(i)
		if g := entry.Get("gpu"); g.Exists() {
			idx = g.Int()
		}
		byGPU[idx] = entry
	}
	return byGPU, nil
}

func (l *amdSMILibrary) gpu(h base.ProcessorHandle) (amdGPU, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return amdGPU{}, base.ErrNotInit
	}
	if int(h) < 0 || int(h) >= len(l.gpus) {
		return amdGPU{}, base.Errorf(base.StatusNotFound, "handle", "no device for handle %d", h)
	}
	return l.gpus[h], nil
}

// entry returns the device's object from a subcommand's output.
func (l *amdSMILibrary) entry(h base.ProcessorHandle, cmd string) (gjson.Result, error) {
	g, err := l.gpu(h)
	if err != nil {
		return gjson.Result{}, err
	}

	l.mu.Lock()
	doc := l.loadLocked(cmd)
	l.mu.Unlock()
	if doc.err != nil {
		return gjson.Result{}, doc.err
	}
	entry, ok := doc.byGPU[g.index]
	if !ok {
		return gjson.Result{}, base.Errorf(base.StatusNotFound, cmd, "gpu %d missing from output", g.index)
	}
	return entry, nil
}

// section returns the first of paths present under the device's entry.
func (l *amdSMILibrary) section(h base.ProcessorHandle, cmd string, paths ...string) (gjson.Result, error) {
	entry, err := l.entry(h, cmd)
	if err != nil {
		return gjson.Result{}, err
	}
	for _, path := range paths {
		if v := entry.Get(path); v.Exists() && !isNA(v) {
			return v, nil
		}
	}
	return gjson.Result{}, base.Errorf(base.StatusNotSupported, cmd, "no %s in output", strings.Join(paths, " or "))
}

func isNA(v gjson.Result) bool {
	if v.Type == gjson.Null {
		return true
	}
	return v.Type == gjson.String && strings.EqualFold(strings.TrimSpace(v.Str), "N/A")
}

// quantity reads a number that amd-smi may print bare, as text with a unit
// ("16 GT/s"), or as {"value": 16, "unit": "GT/s"}.
func quantity(r gjson.Result, paths ...string) (float64, string, error) {
	for _, path := range paths {
		v := r.Get(path)
		if !v.Exists() {
			continue
		}
		var unit string
		if v.IsObject() {
			unit = v.Get("unit").String()
			v = v.Get("value")
		}
		if isNA(v) {
			return 0, "", base.NewError(base.StatusNotSupported, path, nil)
		}
		switch v.Type {
		case gjson.Number:
			return v.Num, unit, nil
		case gjson.String:
			n, textUnit, err := parseQuantity(v.Str)
			if err != nil {
				return 0, "", base.NewError(base.StatusUnexpectedData, path, err)
			}
			if unit == "" {
				unit = textUnit
			}
			return n, unit, nil
		}
		return 0, "", base.Errorf(base.StatusUnexpectedData, path, "unexpected value %s", v.Raw)
	}
	return 0, "", base.Errorf(base.StatusNotSupported, strings.Join(paths, "|"), "field absent")
}

// parseQuantity splits "500 MHz" or "500Mhz" into 500 and "MHz".
func parseQuantity(s string) (float64, string, error) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	if end < 0 {
		end = len(s)
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, "", err
	}
	return n, strings.TrimSpace(s[end:]), nil
}

type numeric interface {
	~uint16 | ~uint32 | ~uint64 | ~int64 | ~float64
}

func number[T numeric](r gjson.Result, paths ...string) base.Reading[T] {
	v, _, err := quantity(r, paths...)
	if err != nil || v < 0 {
		return base.Reading[T]{}
	}
	return base.Of(T(v))
}

func text(r gjson.Result, paths ...string) base.Reading[string] {
	for _, path := range paths {
		v := r.Get(path)
		if !v.Exists() || isNA(v) {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return base.Of(s)
		}
	}
	return base.Reading[string]{}
}

// scaled reads a quantity and converts it with the factor registered for its
// unit; a missing unit means fallback.
func scaled(r gjson.Result, factors map[string]float64, fallback float64, paths ...string) (float64, error) {
	v, unit, err := quantity(r, paths...)
	if err != nil {
		return 0, err
	}
	factor, ok := factors[unit]
	if !ok {
		factor = fallback
	}
	return v * factor, nil
}

var (
	toMicrowatts  = map[string]float64{"W": 1e6, "mW": 1e3, "uW": 1, "µW": 1}
	toMicrojoules = map[string]float64{"J": 1e6, "mJ": 1e3, "uJ": 1, "µJ": 1}
	toMebibytes   = map[string]float64{"B": 1.0 / (1 << 20), "KB": 1.0 / 1024, "KiB": 1.0 / 1024, "MB": 1, "MiB": 1, "GB": 1024, "GiB": 1024}
	toBytes       = map[string]float64{"B": 1, "KB": 1 << 10, "KiB": 1 << 10, "MB": 1 << 20, "MiB": 1 << 20, "GB": 1 << 30, "GiB": 1 << 30}
	toGTs         = map[string]float64{"GT/s": 1, "MT/s": 1e-3}
)

func scaledReading(r gjson.Result, factors map[string]float64, fallback float64, paths ...string) base.Reading[uint64] {
	v, err := scaled(r, factors, fallback, paths...)
	if err != nil || v < 0 {
		return base.Reading[uint64]{}
	}
	return base.Of(uint64(math.Round(v)))
}

func (l *amdSMILibrary) ASICInfo(h base.ProcessorHandle) (base.ASICInfo, error) {
	asic, err := l.section(h, amdCmdStatic, "asic")
	if err != nil {
		return base.ASICInfo{}, err
	}
	return base.ASICInfo{
		MarketName:       text(asic, "market_name"),
		VendorName:       text(asic, "vendor_name"),
		DeviceID:         text(asic, "device_id"),
		ComputeUnits:     number[uint32](asic, "num_compute_units"),
		TargetGFXVersion: text(asic, "target_graphics_version"),
	}, nil
}

func (l *amdSMILibrary) BoardInfo(h base.ProcessorHandle) (base.BoardInfo, error) {
	board, err := l.section(h, amdCmdStatic, "board")
	if err != nil {
		return base.BoardInfo{}, err
	}
	return base.BoardInfo{
		ProductName:      text(board, "product_name"),
		ManufacturerName: text(board, "manufacturer_name"),
		ProductSerial:    text(board, "product_serial"),
	}, nil
}

func (l *amdSMILibrary) DeviceUUID(h base.ProcessorHandle) (string, error) {
	g, err := l.gpu(h)
	if err != nil {
		return "", err
	}
	if g.uuid == "" || strings.EqualFold(g.uuid, "N/A") {
		return "", base.NewError(base.StatusNotSupported, "uuid", nil)
	}
	return g.uuid, nil
}

func (l *amdSMILibrary) DeviceBDF(h base.ProcessorHandle) (string, error) {
	g, err := l.gpu(h)
	if err != nil {
		return "", err
	}
	if g.bdf != "" {
		return g.bdf, nil
	}
	bdf, err := l.section(h, amdCmdStatic, "bus.bdf")
	if err != nil {
		return "", err
	}
	return bdf.String(), nil
}

func (l *amdSMILibrary) DriverInfo(h base.ProcessorHandle) (base.DriverInfo, error) {
	driver, err := l.section(h, amdCmdStatic, "driver")
	if err != nil {
		return base.DriverInfo{}, err
	}
	return base.DriverInfo{
		Version: text(driver, "version"),
		Date:    text(driver, "date"),
	}, nil
}

func (l *amdSMILibrary) VBIOSInfo(h base.ProcessorHandle) (base.VBIOSInfo, error) {
	vbios, err := l.section(h, amdCmdStatic, "vbios", "ifwi")
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	return base.VBIOSInfo{
		Version:   text(vbios, "version"),
		BuildDate: text(vbios, "build_date", "date"),
	}, nil
}

func (l *amdSMILibrary) FirmwareInfo(h base.ProcessorHandle) ([]base.FirmwareEntry, error) {
	list, err := l.section(h, amdCmdFirmware, "fw_list")
	if err != nil {
		return nil, err
	}

	var fw []base.FirmwareEntry
	for _, item := range list.Array() {
		name := text(item, "fw_name", "fw_id")
		version := text(item, "fw_version")
		if !name.Valid() || !version.Valid() {
			continue
		}
		fw = append(fw, base.FirmwareEntry{Name: name.Or(""), Version: version.Or("")})
	}
	if len(fw) == 0 {
		return nil, base.NewError(base.StatusNotSupported, "firmware", nil)
	}
	return fw, nil
}

var (
	metricTempKeys = map[base.TempSensor]string{
		base.TempEdge:     "edge",
		base.TempJunction: "hotspot",
		base.TempVRAM:     "mem",
	}
	limitTempKeys = map[base.TempSensor]string{
		base.TempEdge:     "slowdown_edge_temperature",
		base.TempJunction: "slowdown_hotspot_temperature",
		base.TempVRAM:     "slowdown_vram_temperature",
	}
)

func (l *amdSMILibrary) Temperature(h base.ProcessorHandle, sensor base.TempSensor, metric base.TempMetric) (int64, error) {
	cmd, path := amdCmdMetric, "temperature."+metricTempKeys[sensor]
	if metric == base.TempCritical {
		cmd, path = amdCmdStatic, "limit."+limitTempKeys[sensor]
	}
	entry, err := l.entry(h, cmd)
	if err != nil {
		return 0, err
	}
	v, _, err := quantity(entry, path)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (l *amdSMILibrary) Activity(h base.ProcessorHandle) (base.EngineActivity, error) {
	usage, err := l.section(h, amdCmdMetric, "usage")
	if err != nil {
		return base.EngineActivity{}, err
	}
	return base.EngineActivity{
		GFX: number[uint32](usage, "gfx_activity"),
		UMC: number[uint32](usage, "umc_activity"),
		MM:  number[uint32](usage, "mm_activity"),
	}, nil
}

func (l *amdSMILibrary) GPUMetrics(h base.ProcessorHandle) (base.GPUMetrics, error) {
	usage, err := l.section(h, amdCmdMetric, "usage")
	if err != nil {
		return base.GPUMetrics{}, err
	}
	vcn, jpeg := usage.Get("vcn_activity"), usage.Get("jpeg_activity")
	if !vcn.IsArray() && !jpeg.IsArray() {
		return base.GPUMetrics{}, base.Errorf(base.StatusNotSupported, "gpu metrics", "no per-instance activity in output")
	}
	return base.GPUMetrics{
		VCNActivity:  activityList(vcn),
		JPEGActivity: activityList(jpeg),
	}, nil
}

func activityList(r gjson.Result) []base.Reading[uint32] {
	if !r.IsArray() {
		return nil
	}
	var list []base.Reading[uint32]
	for _, item := range r.Array() {
		list = append(list, number[uint32](item, "@this"))
	}
	return list
}

func clockKeys(clk base.ClockType) []string {
	if clk == base.ClockMem {
		return []string{"clock.mem_0", "clock.mem"}
	}
	return []string{"clock.gfx_0", "clock.gfx"}
}

func (l *amdSMILibrary) ClockInfo(h base.ProcessorHandle, clk base.ClockType) (base.ClockInfo, error) {
	clock, err := l.section(h, amdCmdMetric, clockKeys(clk)...)
	if err != nil {
		return base.ClockInfo{}, err
	}
	return base.ClockInfo{
		Current: number[uint32](clock, "clk"),
		Min:     number[uint32](clock, "min_clk"),
		Max:     number[uint32](clock, "max_clk"),
	}, nil
}

// ClockFrequencies reads the DPM table from static output:
// {"current level": 1, "frequency_levels": {"Level 0": "500 MHz", ...}}
func (l *amdSMILibrary) ClockFrequencies(h base.ProcessorHandle, clk base.ClockType) (base.FrequencyLevels, error) {
	key := "clock.sys"
	if clk == base.ClockMem {
		key = "clock.mem"
	}
	clock, err := l.section(h, amdCmdStatic, key)
	if err != nil {
		return base.FrequencyLevels{}, err
	}

	levels := base.FrequencyLevels{Current: -1}
	if cur := number[int64](clock, "current_level", "current level"); cur.Valid() {
		levels.Current = int(cur.Or(-1))
	}
	clock.Get("frequency_levels").ForEach(func(_, value gjson.Result) bool {
		if mhz := number[uint64](value, "@this"); mhz.Valid() {
			levels.Frequencies = append(levels.Frequencies, mhz.Or(0))
		}
		return true
	})
	if len(levels.Frequencies) == 0 {
		return base.FrequencyLevels{}, base.Errorf(base.StatusNotSupported, key, "no frequency levels")
	}
	return levels, nil
}

func (l *amdSMILibrary) PerfLevel(h base.ProcessorHandle) (string, error) {
	level, err := l.section(h, amdCmdMetric, "perf_level")
	if err != nil {
		return "", err
	}
	return level.String(), nil
}

func (l *amdSMILibrary) PowerInfo(h base.ProcessorHandle) (base.PowerInfo, error) {
	power, err := l.section(h, amdCmdMetric, "power")
	if err != nil {
		return base.PowerInfo{}, err
	}
	return base.PowerInfo{
		CurrentSocketPower: number[float64](power, "socket_power", "current_socket_power"),
		AverageSocketPower: number[float64](power, "average_socket_power"),
		PowerLimit:         number[float64](power, "power_limit"),
		GFXVoltage:         number[uint64](power, "gfx_voltage"),
		SOCVoltage:         number[uint64](power, "soc_voltage"),
		MemVoltage:         number[uint64](power, "mem_voltage"),
	}, nil
}

// PowerCapInfo reports the limit section in µW; amd-smi prints watts.
func (l *amdSMILibrary) PowerCapInfo(h base.ProcessorHandle, sensor int) (base.PowerCapInfo, error) {
	limit, err := l.section(h, amdCmdStatic, fmt.Sprintf("limit.ppt%d", sensor), "limit")
	if err != nil {
		return base.PowerCapInfo{}, err
	}
	return base.PowerCapInfo{
		PowerCap:        scaledReading(limit, toMicrowatts, 1e6, "socket_power_limit", "socket_power", "power_cap"),
		DefaultPowerCap: scaledReading(limit, toMicrowatts, 1e6, "default_power_cap", "default_power"),
		MinPowerCap:     scaledReading(limit, toMicrowatts, 1e6, "min_power_limit", "min_power"),
		MaxPowerCap:     scaledReading(limit, toMicrowatts, 1e6, "max_power_limit", "max_power"),
	}, nil
}

func (l *amdSMILibrary) EnergyCount(h base.ProcessorHandle) (base.EnergyCount, error) {
	entry, err := l.entry(h, amdCmdMetric)
	if err != nil {
		return base.EnergyCount{}, err
	}
	uj, err := scaled(entry, toMicrojoules, 1e6, "energy.total_energy_consumption")
	if err != nil {
		return base.EnergyCount{}, err
	}
	return base.EnergyCount{Accumulator: uint64(math.Round(uj)), CounterResolution: 1}, nil
}

func (l *amdSMILibrary) VRAMUsage(h base.ProcessorHandle) (base.VRAMUsage, error) {
	usage, err := l.section(h, amdCmdMetric, "mem_usage")
	if err != nil {
		return base.VRAMUsage{}, err
	}
	return base.VRAMUsage{
		Used:  scaledReading(usage, toMebibytes, 1, "used_vram"),
		Total: scaledReading(usage, toMebibytes, 1, "total_vram"),
	}, nil
}

func (l *amdSMILibrary) VRAMInfo(h base.ProcessorHandle) (base.VRAMInfo, error) {
	vram, err := l.section(h, amdCmdStatic, "vram")
	if err != nil {
		return base.VRAMInfo{}, err
	}
	return base.VRAMInfo{
		Type:     text(vram, "type", "vram_type"),
		BitWidth: number[uint32](vram, "bit_width", "vram_bit_width"),
	}, nil
}

func (l *amdSMILibrary) VRAMVendor(h base.ProcessorHandle) (string, error) {
	vendor, err := l.section(h, amdCmdStatic, "vram.vendor", "vram.vram_vendor")
	if err != nil {
		return "", err
	}
	return vendor.String(), nil
}

// fanSection returns the metric fan object. amd-smi reports a single fan per
// device, so any index other than 0 is not found.
func (l *amdSMILibrary) fanSection(h base.ProcessorHandle, fan int) (gjson.Result, error) {
	f, err := l.section(h, amdCmdMetric, "fan")
	if err != nil {
		return gjson.Result{}, err
	}
	if fan != 0 {
		return gjson.Result{}, base.Errorf(base.StatusNotFound, "fan", "no fan %d, amd-smi reports one fan per device", fan)
	}
	return f, nil
}

// FanSpeed prefers the percent reading; older releases only print the raw
// 0-255 duty cycle.
func (l *amdSMILibrary) FanSpeed(h base.ProcessorHandle, fan int) (uint64, error) {
	f, err := l.fanSection(h, fan)
	if err != nil {
		return 0, err
	}
	if pct, _, err := quantity(f, "usage"); err == nil {
		return uint64(math.Round(pct)), nil
	}
	raw, _, err := quantity(f, "speed")
	if err != nil {
		return 0, err
	}
	return uint64(math.Round(raw * 100 / 255)), nil
}

func (l *amdSMILibrary) FanRPM(h base.ProcessorHandle, fan int) (uint64, error) {
	f, err := l.fanSection(h, fan)
	if err != nil {
		return 0, err
	}
	return nonNegative(f, "rpm")
}

func (l *amdSMILibrary) FanSpeedMax(h base.ProcessorHandle, fan int) (uint64, error) {
	f, err := l.fanSection(h, fan)
	if err != nil {
		return 0, err
	}
	return nonNegative(f, "max")
}

func nonNegative(r gjson.Result, paths ...string) (uint64, error) {
	v, _, err := quantity(r, paths...)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, base.Errorf(base.StatusUnexpectedData, strings.Join(paths, "|"), "negative value %v", v)
	}
	return uint64(v), nil
}

// ECCEnabled is true when any RAS block reports ECC as ENABLED.
func (l *amdSMILibrary) ECCEnabled(h base.ProcessorHandle) (bool, error) {
	blocks, err := l.section(h, amdCmdStatic, "ras.ecc_block_state")
	if err != nil {
		return false, err
	}
	enabled := false
	blocks.ForEach(func(_, state gjson.Result) bool {
		if strings.EqualFold(state.String(), "ENABLED") {
			enabled = true
			return false
		}
		return true
	})
	return enabled, nil
}

func (l *amdSMILibrary) TotalECCCount(h base.ProcessorHandle) (base.ECCCount, error) {
	ecc, err := l.section(h, amdCmdMetric, "ecc")
	if err != nil {
		return base.ECCCount{}, err
	}
	count := base.ECCCount{
		Correctable:   number[uint64](ecc, "total_correctable_count", "correctable_count"),
		Uncorrectable: number[uint64](ecc, "total_uncorrectable_count", "uncorrectable_count"),
	}
	if !count.Correctable.Valid() && !count.Uncorrectable.Valid() {
		return count, base.NewError(base.StatusNotSupported, "ecc", nil)
	}
	return count, nil
}

// BadPages reads the retired page list; amd-smi prints a sentence instead of
// an array when there are none.
func (l *amdSMILibrary) BadPages(h base.ProcessorHandle) ([]base.BadPage, error) {
	retired, err := l.section(h, amdCmdBadPages, "retired", "bad_pages")
	if err != nil {
		return nil, err
	}
	pages := []base.BadPage{}
	if !retired.IsArray() {
		return pages, nil
	}
	for _, item := range retired.Array() {
		pages = append(pages, base.BadPage{
			Address: parseAddress(item.Get("page_address")),
			Size:    parseAddress(item.Get("page_size")),
			Status:  item.Get("status").String(),
		})
	}
	return pages, nil
}

func parseAddress(v gjson.Result) uint64 {
	if v.Type == gjson.String {
		n, _ := strconv.ParseUint(strings.TrimSpace(v.Str), 0, 64)
		return n
	}
	return v.Uint()
}

func (l *amdSMILibrary) PCIeInfo(h base.ProcessorHandle) (base.PCIeInfo, error) {
	metric, err := l.entry(h, amdCmdMetric)
	if err != nil {
		return base.PCIeInfo{}, err
	}
	var info base.PCIeInfo
	info.Width = number[uint16](metric, "pcie.width")
	if gts, err := scaled(metric, toGTs, 1, "pcie.speed"); err == nil {
		info.Speed = base.Of(gts)
	}
	info.ReplayCount = number[uint64](metric, "pcie.replay_count")

	if static, err := l.entry(h, amdCmdStatic); err == nil {
		info.MaxWidth = number[uint16](static, "bus.max_pcie_width")
		if gts, err := scaled(static, toGTs, 1, "bus.max_pcie_speed"); err == nil {
			info.MaxSpeed = base.Of(gts)
		}
	}
	return info, nil
}

func (l *amdSMILibrary) PCIThroughput(h base.ProcessorHandle) (base.PCIThroughput, error) {
	pcie, err := l.section(h, amdCmdMetric, "pcie")
	if err != nil {
		return base.PCIThroughput{}, err
	}
	sent := number[uint64](pcie, "current_bandwidth_sent")
	received := number[uint64](pcie, "current_bandwidth_received")
	if !sent.Valid() && !received.Valid() {
		return base.PCIThroughput{}, base.NewError(base.StatusNotSupported, "pcie throughput", nil)
	}
	return base.PCIThroughput{
		Sent:          sent.Or(0),
		Received:      received.Or(0),
		MaxPacketSize: number[uint64](pcie, "max_packet_size").Or(0),
	}, nil
}

func (l *amdSMILibrary) XGMIInfo(h base.ProcessorHandle) (base.XGMIInfo, error) {
	xgmi, err := l.section(h, amdCmdStatic, "xgmi")
	if err != nil {
		return base.XGMIInfo{}, err
	}
	var info base.XGMIInfo
	if hive := xgmi.Get("hive_id"); hive.Exists() && !isNA(hive) {
		if id := parseAddress(hive); id != 0 {
			info.HiveID = base.Of(id)
		}
	}
	info.NodeID = number[uint64](xgmi, "node_id")
	if !info.HiveID.Valid() {
		return info, base.Errorf(base.StatusNotSupported, "xgmi", "not part of an XGMI hive")
	}
	return info, nil
}

func (l *amdSMILibrary) NUMANode(h base.ProcessorHandle) (int, error) {
	entry, err := l.entry(h, amdCmdStatic)
	if err != nil {
		return 0, err
	}
	node, _, err := quantity(entry, "numa.node")
	if err != nil {
		return 0, err
	}
	if node < 0 {
		return 0, base.Errorf(base.StatusNotSupported, "numa node", "no NUMA affinity")
	}
	return int(node), nil
}

// ViolationStatus accepts both the boolean active_* flags and the newer
// "ACTIVE"/"NOT ACTIVE" *_violation_status strings.
func (l *amdSMILibrary) ViolationStatus(h base.ProcessorHandle) (base.ViolationStatus, error) {
	throttle, err := l.section(h, amdCmdMetric, "throttle")
	if err != nil {
		return base.ViolationStatus{}, err
	}
	return base.ViolationStatus{
		ActivePPTPower:       flag(throttle, "active_ppt_pwr", "ppt_violation_status"),
		ActiveSocketThermal:  flag(throttle, "active_socket_thrm", "socket_thermal_violation_status"),
		ActiveProchotThermal: flag(throttle, "active_prochot_thrm", "prochot_violation_status"),
	}, nil
}

func flag(r gjson.Result, paths ...string) bool {
	for _, path := range paths {
		v := r.Get(path)
		if v.IsObject() {
			v = v.Get("value")
		}
		switch v.Type {
		case gjson.True:
			return true
		case gjson.Number:
			return v.Num != 0
		case gjson.String:
			switch strings.ToUpper(strings.TrimSpace(v.Str)) {
			case "ACTIVE", "TRUE", "YES", "1":
				return true
			}
			return false
		case gjson.False:
			return false
		}
	}
	return false
}

// ProcessList reads "process_list"; entries are either flat or wrapped in
// "process_info", and an idle GPU lists a sentence instead of a process.
// Engine usage is only reported as a percentage when amd-smi gives one;
// cumulative nanosecond counters need two samples and stay unavailable.
func (l *amdSMILibrary) ProcessList(h base.ProcessorHandle) ([]base.ProcessInfo, error) {
	list, err := l.section(h, amdCmdProcess, "process_list")
	if err != nil {
		return nil, err
	}

	procs := []base.ProcessInfo{}
	for _, item := range list.Array() {
		if info := item.Get("process_info"); info.Exists() {
			item = info
		}
		if !item.IsObject() {
			continue
		}
		pid := item.Get("pid")
		if !pid.Exists() {
			continue
		}
		procs = append(procs, base.ProcessInfo{
			PID:     uint32(pid.Uint()),
			Name:    text(item, "name").Or(""),
			VRAMMem: scaledReading(item, toBytes, 1, "memory_usage.vram_mem", "mem_usage.vram_mem"),
			GFX:     percent(item, "engine_usage.gfx", "usage.gfx"),
			Enc:     percent(item, "engine_usage.enc", "usage.enc"),
		})
	}
	return procs, nil
}

func percent(r gjson.Result, paths ...string) base.Reading[float64] {
	v, unit, err := quantity(r, paths...)
	if err != nil || (unit != "" && unit != "%") {
		return base.Reading[float64]{}
	}
	return base.Of(v)
}
