package gpu

import (
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// rocmSMIArgs selects every per-card column the backend reads. rocm-smi runs
// once per session and the CSV table is answered from memory afterwards.
var rocmSMIArgs = []string{
	"--showid", "--showproductname", "--showuniqueid", "--showserial", "--showvbios", "--showbus",
	"--showtemp", "--showuse", "--showmemuse", "--showpower", "--showmaxpower",
	"--showmeminfo", "vram", "--showmemvendor", "--showfan", "--showperflevel",
	"--csv",
}

// rocm-smi column headers; older releases used the second spelling
var (
	rocmColTemp = map[base.TempSensor][]string{
		base.TempEdge:     {"Temperature (Sensor edge) (C)"},
		base.TempJunction: {"Temperature (Sensor junction) (C)"},
		base.TempVRAM:     {"Temperature (Sensor memory) (C)"},
	}
	rocmColGPUUse      = []string{"GPU use (%)"}
	rocmColMemActivity = []string{"GPU Memory Read/Write Activity (%)", "GPU memory use (%)"}
	rocmColAvgPower    = []string{"Average Graphics Package Power (W)"}
	rocmColCurPower    = []string{"Current Socket Graphics Package Power (W)"}
	rocmColMaxPower    = []string{"Max Graphics Package Power (W)"}
	rocmColVRAMTotal   = []string{"VRAM Total Memory (B)"}
	rocmColVRAMUsed    = []string{"VRAM Total Used Memory (B)"}
	rocmColSeries      = []string{"Card Series", "Card series"}
	rocmColModel       = []string{"Card Model", "Card model"}
	rocmColVendor      = []string{"Card Vendor", "Card vendor"}
	rocmColDeviceID    = []string{"Device ID"}
	rocmColUniqueID    = []string{"Unique ID"}
	rocmColSerial      = []string{"Serial Number"}
	rocmColVBIOS       = []string{"VBIOS version"}
	rocmColBus         = []string{"PCI Bus"}
	rocmColMemVendor   = []string{"GPU memory vendor"}
	rocmColFanPercent  = []string{"Fan speed (%)"}
	rocmColFanLevel    = []string{"Fan speed (level)"}
	rocmColFanRPM      = []string{"Fan RPM"}
	rocmColPerfLevel   = []string{"Performance Level", "Perf Level"}
)

const (
	rocmDeviceColumn    = "device"
	rocmDeviceRowPrefix = "card"
)

// drives the legacy rocm-smi tool for hosts whose ROCm predates amd-smi
type ROCmProvider struct {
	Path     string
	RunCmd   base.RunCmdFunc
	LookPath func(file string) (string, error)
	Logger   *slog.Logger
}

func (p ROCmProvider) Name() string {
	return BackendROCmSMI
}

func (p ROCmProvider) Detect() bool {
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(p.Path)
	return err == nil
}

func (p ROCmProvider) Library() base.Library {
	runCmd := p.RunCmd
	if runCmd == nil {
		runCmd = execCommand
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &rocmSMILibrary{
		path:   p.Path,
		runCmd: runCmd,
		logger: logger.With("backend", BackendROCmSMI),
	}
}

// one row of the CSV table, keyed by column header
type rocmCard struct {
	name   string
	fields map[string]string
}

type rocmSMILibrary struct {
	path   string
	runCmd base.RunCmdFunc
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	cards       []rocmCard
}

func (l *rocmSMILibrary) Name() string {
	return BackendROCmSMI
}

func (l *rocmSMILibrary) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	out, err := l.runCmd(l.path, rocmSMIArgs...)
	if err != nil {
		return base.NewError(base.StatusInitFailed, "init", err)
	}
	cards, err := parseROCmCSV(out)
	if err != nil {
		return base.NewError(base.StatusInitFailed, "init", err)
	}
	l.cards = cards
	l.initialized = true
	l.logger.Debug("enumerated rocm-smi devices", "count", len(cards))
	return nil
}

func (l *rocmSMILibrary) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cards = nil
	l.initialized = false
	return nil
}

func (l *rocmSMILibrary) ProcessorHandles() ([]base.ProcessorHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, base.ErrNotInit
	}
	handles := make([]base.ProcessorHandle, len(l.cards))
	for i := range l.cards {
		handles[i] = base.ProcessorHandle(i)
	}
	return handles, nil
}

// parseROCmCSV reads the per-card table. rocm-smi prints warnings ahead of
// the header and, with --showdriverversion and friends, a "system" row; both
// are skipped. Rows come back ordered by card index.
func parseROCmCSV(data []byte) ([]rocmCard, error) {
	start, off := -1, 0
	for line := range bytes.Lines(data) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte(rocmDeviceColumn+",")) {
			start = off
			break
		}
		off += len(line)
	}
	if start < 0 {
		return nil, base.Errorf(base.StatusUnexpectedData, "csv", "no %q header in rocm-smi output", rocmDeviceColumn)
	}

	r := csv.NewReader(bytes.NewReader(data[start:]))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, base.NewError(base.StatusUnexpectedData, "csv", err)
	}

	var cards []rocmCard
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, base.NewError(base.StatusUnexpectedData, "csv", err)
		}
		if len(record) == 0 || !strings.HasPrefix(record[0], rocmDeviceRowPrefix) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(record[0], rocmDeviceRowPrefix)); err != nil {
			continue
		}
		card := rocmCard{name: record[0], fields: make(map[string]string, len(header))}
		for i := 1; i < len(record) && i < len(header); i++ {
			card.fields[strings.TrimSpace(header[i])] = strings.TrimSpace(record[i])
		}
		cards = append(cards, card)
	}

	sort.SliceStable(cards, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(cards[i].name, rocmDeviceRowPrefix))
		b, _ := strconv.Atoi(strings.TrimPrefix(cards[j].name, rocmDeviceRowPrefix))
		return a < b
	})
	return cards, nil
}

func (l *rocmSMILibrary) card(h base.ProcessorHandle) (rocmCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return rocmCard{}, base.ErrNotInit
	}
	if int(h) < 0 || int(h) >= len(l.cards) {
		return rocmCard{}, base.Errorf(base.StatusNotFound, "handle", "no device for handle %d", h)
	}
	return l.cards[h], nil
}

// text returns the first column present with a real value.
func (c rocmCard) text(op string, columns ...string) (string, error) {
	for _, col := range columns {
		v, ok := c.fields[col]
		if !ok || v == "" || strings.EqualFold(v, "N/A") || strings.EqualFold(v, "unknown") {
			continue
		}
		return v, nil
	}
	return "", base.Errorf(base.StatusNotSupported, op, "rocm-smi reports no %q for %s", columns[0], c.name)
}

func (c rocmCard) number(op string, columns ...string) (float64, error) {
	s, err := c.text(op, columns...)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, base.Errorf(base.StatusUnexpectedData, op, "%s: %q is not a number", columns[0], s)
	}
	return v, nil
}

func (c rocmCard) unsigned(op string, columns ...string) (uint64, error) {
	v, err := c.number(op, columns...)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, base.Errorf(base.StatusUnexpectedData, op, "%s: negative value %v", columns[0], v)
	}
	return uint64(v), nil
}

func (c rocmCard) textReading(columns ...string) base.Reading[string] {
	if v, err := c.text("", columns...); err == nil {
		return base.Of(v)
	}
	return base.Reading[string]{}
}

func (c rocmCard) percentReading(columns ...string) base.Reading[uint32] {
	if v, err := c.unsigned("", columns...); err == nil && v <= math.MaxUint32 {
		return base.Of(uint32(v))
	}
	return base.Reading[uint32]{}
}

func rocmUnsupported(op string) error {
	return base.Errorf(base.StatusNotSupported, op, "rocm-smi does not report %s", op)
}

func (l *rocmSMILibrary) ASICInfo(h base.ProcessorHandle) (base.ASICInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.ASICInfo{}, err
	}
	info := base.ASICInfo{
		MarketName: c.textReading(rocmColSeries...),
		VendorName: c.textReading(rocmColVendor...),
	}
	// newer releases print the device ID as the model
	for _, columns := range [][]string{rocmColDeviceID, rocmColModel} {
		if id, err := c.text("asic", columns...); err == nil && strings.HasPrefix(strings.ToLower(id), "0x") {
			info.DeviceID = base.Of(strings.ToLower(id))
			break
		}
	}
	return info, nil
}

func (l *rocmSMILibrary) BoardInfo(h base.ProcessorHandle) (base.BoardInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.BoardInfo{}, err
	}
	info := base.BoardInfo{
		ManufacturerName: c.textReading(rocmColVendor...),
		ProductSerial:    c.textReading(rocmColSerial...),
	}
	if model, err := c.text("board", rocmColModel...); err == nil && !strings.HasPrefix(strings.ToLower(model), "0x") {
		info.ProductName = base.Of(model)
	}
	return info, nil
}

func (l *rocmSMILibrary) DeviceUUID(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	uniqueID, err := c.text("uuid", rocmColUniqueID...)
	if err != nil {
		return "", err
	}
	deviceID, err := c.text("uuid", rocmColDeviceID...)
	if err != nil {
		return "", err
	}
	return deviceUUID(deviceID, uniqueID), nil
}

func (l *rocmSMILibrary) DeviceBDF(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	bdf, err := c.text("bdf", rocmColBus...)
	if err != nil {
		return "", err
	}
	return strings.ToLower(bdf), nil
}

func (l *rocmSMILibrary) DriverInfo(h base.ProcessorHandle) (base.DriverInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.DriverInfo{}, err
	}
	return base.DriverInfo{}, rocmUnsupported("driver info")
}

func (l *rocmSMILibrary) VBIOSInfo(h base.ProcessorHandle) (base.VBIOSInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	version, err := c.text("vbios", rocmColVBIOS...)
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	return base.VBIOSInfo{Version: base.Of(version)}, nil
}

func (l *rocmSMILibrary) FirmwareInfo(h base.ProcessorHandle) ([]base.FirmwareEntry, error) {
	if _, err := l.card(h); err != nil {
		return nil, err
	}
	return nil, rocmUnsupported("firmware")
}

func (l *rocmSMILibrary) Temperature(h base.ProcessorHandle, sensor base.TempSensor, metric base.TempMetric) (int64, error) {
	c, err := l.card(h)
	if err != nil {
		return 0, err
	}
	columns, ok := rocmColTemp[sensor]
	if !ok || metric != base.TempCurrent {
		return 0, rocmUnsupported("temperature limits")
	}
	v, err := c.number("temperature", columns...)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (l *rocmSMILibrary) Activity(h base.ProcessorHandle) (base.EngineActivity, error) {
	c, err := l.card(h)
	if err != nil {
		return base.EngineActivity{}, err
	}
	act := base.EngineActivity{
		GFX: c.percentReading(rocmColGPUUse...),
		UMC: c.percentReading(rocmColMemActivity...),
	}
	if !act.GFX.Valid() && !act.UMC.Valid() {
		return act, rocmUnsupported("activity")
	}
	return act, nil
}

func (l *rocmSMILibrary) GPUMetrics(h base.ProcessorHandle) (base.GPUMetrics, error) {
	if _, err := l.card(h); err != nil {
		return base.GPUMetrics{}, err
	}
	return base.GPUMetrics{}, rocmUnsupported("gpu metrics")
}

func (l *rocmSMILibrary) ClockInfo(h base.ProcessorHandle, _ base.ClockType) (base.ClockInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.ClockInfo{}, err
	}
	return base.ClockInfo{}, rocmUnsupported("clocks")
}

func (l *rocmSMILibrary) ClockFrequencies(h base.ProcessorHandle, _ base.ClockType) (base.FrequencyLevels, error) {
	if _, err := l.card(h); err != nil {
		return base.FrequencyLevels{}, err
	}
	return base.FrequencyLevels{}, rocmUnsupported("clock levels")
}

func (l *rocmSMILibrary) PerfLevel(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	level, err := c.text("perf level", rocmColPerfLevel...)
	if err != nil {
		return "", err
	}
	return perfLevelName(level), nil
}

func (l *rocmSMILibrary) PowerInfo(h base.ProcessorHandle) (base.PowerInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PowerInfo{}, err
	}
	var info base.PowerInfo
	if v, err := c.number("power", rocmColAvgPower...); err == nil {
		info.AverageSocketPower = base.Of(v)
	}
	if v, err := c.number("power", rocmColCurPower...); err == nil {
		info.CurrentSocketPower = base.Of(v)
	}
	if v, err := c.number("power", rocmColMaxPower...); err == nil {
		info.PowerLimit = base.Of(v)
	}
	if !info.AverageSocketPower.Valid() && !info.CurrentSocketPower.Valid() {
		return info, rocmUnsupported("power")
	}
	return info, nil
}

func (l *rocmSMILibrary) PowerCapInfo(h base.ProcessorHandle, sensor int) (base.PowerCapInfo, error) {
	c, err := l.card(h)
	if err != nil {
		return base.PowerCapInfo{}, err
	}
	if sensor != 0 {
		return base.PowerCapInfo{}, base.Errorf(base.StatusNotFound, "power cap", "no power sensor %d, rocm-smi reports one per device", sensor)
	}
	watts, err := c.number("power cap", rocmColMaxPower...)
	if err != nil {
		return base.PowerCapInfo{}, err
	}
	if watts < 0 {
		return base.PowerCapInfo{}, base.Errorf(base.StatusUnexpectedData, "power cap", "negative power cap %v W", watts)
	}
	return base.PowerCapInfo{PowerCap: base.Of(uint64(math.Round(watts * 1e6)))}, nil
}

func (l *rocmSMILibrary) EnergyCount(h base.ProcessorHandle) (base.EnergyCount, error) {
	if _, err := l.card(h); err != nil {
		return base.EnergyCount{}, err
	}
	return base.EnergyCount{}, rocmUnsupported("energy")
}

func (l *rocmSMILibrary) VRAMUsage(h base.ProcessorHandle) (base.VRAMUsage, error) {
	c, err := l.card(h)
	if err != nil {
		return base.VRAMUsage{}, err
	}
	var usage base.VRAMUsage
	used, usedErr := c.unsigned("vram", rocmColVRAMUsed...)
	if usedErr == nil {
		usage.Used = base.Of(used / (1 << 20))
	}
	total, totalErr := c.unsigned("vram", rocmColVRAMTotal...)
	if totalErr == nil {
		usage.Total = base.Of(total / (1 << 20))
	}
	if usedErr != nil && totalErr != nil {
		return usage, usedErr
	}
	return usage, nil
}

func (l *rocmSMILibrary) VRAMInfo(h base.ProcessorHandle) (base.VRAMInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.VRAMInfo{}, err
	}
	return base.VRAMInfo{}, rocmUnsupported("vram info")
}

func (l *rocmSMILibrary) VRAMVendor(h base.ProcessorHandle) (string, error) {
	c, err := l.card(h)
	if err != nil {
		return "", err
	}
	return c.text("vram vendor", rocmColMemVendor...)
}

func (l *rocmSMILibrary) fan(h base.ProcessorHandle, fan int) (rocmCard, error) {
	c, err := l.card(h)
	if err != nil {
		return rocmCard{}, err
	}
	if fan != 0 {
		return rocmCard{}, base.Errorf(base.StatusNotFound, "fan", "no fan %d, rocm-smi reports one fan per device", fan)
	}
	return c, nil
}

func (l *rocmSMILibrary) FanSpeed(h base.ProcessorHandle, fan int) (uint64, error) {
	c, err := l.fan(h, fan)
	if err != nil {
		return 0, err
	}
	if pct, err := c.unsigned("fan", rocmColFanPercent...); err == nil {
		return pct, nil
	}
	level, err := c.unsigned("fan", rocmColFanLevel...)
	if err != nil {
		return 0, err
	}
	return level * 100 / 255, nil
}

func (l *rocmSMILibrary) FanRPM(h base.ProcessorHandle, fan int) (uint64, error) {
	c, err := l.fan(h, fan)
	if err != nil {
		return 0, err
	}
	return c.unsigned("fan", rocmColFanRPM...)
}

func (l *rocmSMILibrary) FanSpeedMax(h base.ProcessorHandle, fan int) (uint64, error) {
	if _, err := l.fan(h, fan); err != nil {
		return 0, err
	}
	return 0, rocmUnsupported("fan limits")
}

func (l *rocmSMILibrary) ECCEnabled(h base.ProcessorHandle) (bool, error) {
	if _, err := l.card(h); err != nil {
		return false, err
	}
	return false, rocmUnsupported("ecc")
}

func (l *rocmSMILibrary) TotalECCCount(h base.ProcessorHandle) (base.ECCCount, error) {
	if _, err := l.card(h); err != nil {
		return base.ECCCount{}, err
	}
	return base.ECCCount{}, rocmUnsupported("ecc")
}

func (l *rocmSMILibrary) BadPages(h base.ProcessorHandle) ([]base.BadPage, error) {
	if _, err := l.card(h); err != nil {
		return nil, err
	}
	return nil, rocmUnsupported("bad pages")
}

func (l *rocmSMILibrary) PCIeInfo(h base.ProcessorHandle) (base.PCIeInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.PCIeInfo{}, err
	}
	return base.PCIeInfo{}, rocmUnsupported("pcie link")
}

func (l *rocmSMILibrary) PCIThroughput(h base.ProcessorHandle) (base.PCIThroughput, error) {
	if _, err := l.card(h); err != nil {
		return base.PCIThroughput{}, err
	}
	return base.PCIThroughput{}, rocmUnsupported("pcie throughput")
}

func (l *rocmSMILibrary) XGMIInfo(h base.ProcessorHandle) (base.XGMIInfo, error) {
	if _, err := l.card(h); err != nil {
		return base.XGMIInfo{}, err
	}
	return base.XGMIInfo{}, rocmUnsupported("xgmi")
}

func (l *rocmSMILibrary) NUMANode(h base.ProcessorHandle) (int, error) {
	if _, err := l.card(h); err != nil {
		return 0, err
	}
	return 0, rocmUnsupported("numa node")
}

func (l *rocmSMILibrary) ViolationStatus(h base.ProcessorHandle) (base.ViolationStatus, error) {
	if _, err := l.card(h); err != nil {
		return base.ViolationStatus{}, err
	}
	return base.ViolationStatus{}, rocmUnsupported("throttle status")
}

func (l *rocmSMILibrary) ProcessList(h base.ProcessorHandle) ([]base.ProcessInfo, error) {
	if _, err := l.card(h); err != nil {
		return nil, err
	}
	return nil, rocmUnsupported("processes")
}
