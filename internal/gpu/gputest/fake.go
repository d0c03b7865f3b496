// Package gputest provides an in-memory base.Library for tests.
package gputest

import (
	"fmt"
	"sync"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// Query names accepted by Library.Fail and Library.Panic; they match the
// base.Library method names.
const (
	QueryASICInfo         = "ASICInfo"
	QueryBoardInfo        = "BoardInfo"
	QueryDeviceUUID       = "DeviceUUID"
	QueryDeviceBDF        = "DeviceBDF"
	QueryDriverInfo       = "DriverInfo"
	QueryVBIOSInfo        = "VBIOSInfo"
	QueryFirmwareInfo     = "FirmwareInfo"
	QueryTemperature      = "Temperature"
	QueryActivity         = "Activity"
	QueryGPUMetrics       = "GPUMetrics"
	QueryClockInfo        = "ClockInfo"
	QueryClockFrequencies = "ClockFrequencies"
	QueryPerfLevel        = "PerfLevel"
	QueryPowerInfo        = "PowerInfo"
	QueryPowerCapInfo     = "PowerCapInfo"
	QueryEnergyCount      = "EnergyCount"
	QueryVRAMUsage        = "VRAMUsage"
	QueryVRAMInfo         = "VRAMInfo"
	QueryVRAMVendor       = "VRAMVendor"
	QueryFanSpeed         = "FanSpeed"
	QueryFanRPM           = "FanRPM"
	QueryFanSpeedMax      = "FanSpeedMax"
	QueryECCEnabled       = "ECCEnabled"
	QueryTotalECCCount    = "TotalECCCount"
	QueryBadPages         = "BadPages"
	QueryPCIeInfo         = "PCIeInfo"
	QueryPCIThroughput    = "PCIThroughput"
	QueryXGMIInfo         = "XGMIInfo"
	QueryNUMANode         = "NUMANode"
	QueryViolationStatus  = "ViolationStatus"
	QueryProcessList      = "ProcessList"
)

// Queries lists every per-device query name.
var Queries = []string{
	QueryASICInfo, QueryBoardInfo, QueryDeviceUUID, QueryDeviceBDF, QueryDriverInfo,
	QueryVBIOSInfo, QueryFirmwareInfo, QueryTemperature, QueryActivity, QueryGPUMetrics,
	QueryClockInfo, QueryClockFrequencies, QueryPerfLevel, QueryPowerInfo, QueryPowerCapInfo,
	QueryEnergyCount, QueryVRAMUsage, QueryVRAMInfo, QueryVRAMVendor, QueryFanSpeed,
	QueryFanRPM, QueryFanSpeedMax, QueryECCEnabled, QueryTotalECCCount, QueryBadPages,
	QueryPCIeInfo, QueryPCIThroughput, QueryXGMIInfo, QueryNUMANode, QueryViolationStatus,
	QueryProcessList,
}

// Device is the canned data one fake GPU answers with.
type Device struct {
	ASIC          base.ASICInfo
	Board         base.BoardInfo
	UUID          string
	BDF           string
	Driver        base.DriverInfo
	VBIOS         base.VBIOSInfo
	Firmware      []base.FirmwareEntry
	Temps         map[base.TempSensor]map[base.TempMetric]int64
	Activity      base.EngineActivity
	Metrics       base.GPUMetrics
	Clocks        map[base.ClockType]base.ClockInfo
	Frequencies   map[base.ClockType]base.FrequencyLevels
	PerfLevel     string
	Power         base.PowerInfo
	PowerCap      base.PowerCapInfo
	Energy        base.EnergyCount
	VRAMUsage     base.VRAMUsage
	VRAMInfo      base.VRAMInfo
	VRAMVendor    string
	FanSpeed      uint64
	FanRPM        uint64
	FanSpeedMax   uint64
	ECCEnabled    bool
	ECCCount      base.ECCCount
	BadPages      []base.BadPage
	PCIe          base.PCIeInfo
	PCIThroughput base.PCIThroughput
	XGMI          base.XGMIInfo
	NUMANode      int
	Violation     base.ViolationStatus
	Processes     []base.ProcessInfo

	fails  map[string]error
	panics map[string]any
}

// Fail makes query return err for this device only.
func (d *Device) Fail(query string, err error) *Device {
	if d.fails == nil {
		d.fails = make(map[string]error)
	}
	d.fails[query] = err
	return d
}

// Panic makes query panic with v for this device only.
func (d *Device) Panic(query string, v any) *Device {
	if d.panics == nil {
		d.panics = make(map[string]any)
	}
	d.panics[query] = v
	return d
}

// FailAll makes every query on this device return err.
func (d *Device) FailAll(err error) *Device {
	for _, q := range Queries {
		d.Fail(q, err)
	}
	return d
}

// Library implements base.Library over a fixed set of devices and records
// the lifecycle calls made against it.
type Library struct {
	Devices     []*Device
	InitErr     error
	ShutdownErr error
	HandlesErr  error

	mu            sync.Mutex
	initialized   bool
	InitCalls     int
	ShutdownCalls int
	Calls         map[string]int
}

var _ base.Library = (*Library)(nil)

func New(devices ...*Device) *Library {
	return &Library{Devices: devices}
}

func (l *Library) Name() string {
	return "fake"
}

func (l *Library) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.InitCalls++
	if l.InitErr != nil {
		return l.InitErr
	}
	l.initialized = true
	return nil
}

func (l *Library) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ShutdownCalls++
	l.initialized = false
	return l.ShutdownErr
}

func (l *Library) ProcessorHandles() ([]base.ProcessorHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, base.ErrNotInit
	}
	if l.HandlesErr != nil {
		return nil, l.HandlesErr
	}
	handles := make([]base.ProcessorHandle, len(l.Devices))
	for i := range l.Devices {
		handles[i] = base.ProcessorHandle(i)
	}
	return handles, nil
}

// CallCount reports how often query was issued across all devices.
func (l *Library) CallCount(query string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Calls[query]
}

func (l *Library) device(h base.ProcessorHandle, query string) (*Device, error) {
	l.mu.Lock()
	if l.Calls == nil {
		l.Calls = make(map[string]int)
	}
	l.Calls[query]++
	initialized := l.initialized
	l.mu.Unlock()

	if !initialized {
		return nil, base.ErrNotInit
	}
	if int(h) < 0 || int(h) >= len(l.Devices) {
		return nil, base.Errorf(base.StatusNotFound, query, "no device for handle %d", h)
	}
	d := l.Devices[h]
	if v, ok := d.panics[query]; ok {
		panic(v)
	}
	if err, ok := d.fails[query]; ok {
		return nil, err
	}
	return d, nil
}

func (l *Library) ASICInfo(h base.ProcessorHandle) (base.ASICInfo, error) {
	d, err := l.device(h, QueryASICInfo)
	if err != nil {
		return base.ASICInfo{}, err
	}
	return d.ASIC, nil
}

func (l *Library) BoardInfo(h base.ProcessorHandle) (base.BoardInfo, error) {
	d, err := l.device(h, QueryBoardInfo)
	if err != nil {
		return base.BoardInfo{}, err
	}
	return d.Board, nil
}

func (l *Library) DeviceUUID(h base.ProcessorHandle) (string, error) {
	d, err := l.device(h, QueryDeviceUUID)
	if err != nil {
		return "", err
	}
	return d.UUID, nil
}

func (l *Library) DeviceBDF(h base.ProcessorHandle) (string, error) {
	d, err := l.device(h, QueryDeviceBDF)
	if err != nil {
		return "", err
	}
	return d.BDF, nil
}

func (l *Library) DriverInfo(h base.ProcessorHandle) (base.DriverInfo, error) {
	d, err := l.device(h, QueryDriverInfo)
	if err != nil {
		return base.DriverInfo{}, err
	}
	return d.Driver, nil
}

func (l *Library) VBIOSInfo(h base.ProcessorHandle) (base.VBIOSInfo, error) {
	d, err := l.device(h, QueryVBIOSInfo)
	if err != nil {
		return base.VBIOSInfo{}, err
	}
	return d.VBIOS, nil
}

func (l *Library) FirmwareInfo(h base.ProcessorHandle) ([]base.FirmwareEntry, error) {
	d, err := l.device(h, QueryFirmwareInfo)
	if err != nil {
		return nil, err
	}
	return d.Firmware, nil
}

func (l *Library) Temperature(h base.ProcessorHandle, sensor base.TempSensor, metric base.TempMetric) (int64, error) {
	d, err := l.device(h, QueryTemperature)
	if err != nil {
		return 0, err
	}
	v, ok := d.Temps[sensor][metric]
	if !ok {
		return 0, base.Errorf(base.StatusNotSupported, QueryTemperature, "no %s reading", sensor)
	}
	return v, nil
}

func (l *Library) Activity(h base.ProcessorHandle) (base.EngineActivity, error) {
	d, err := l.device(h, QueryActivity)
	if err != nil {
		return base.EngineActivity{}, err
	}
	return d.Activity, nil
}

func (l *Library) GPUMetrics(h base.ProcessorHandle) (base.GPUMetrics, error) {
	d, err := l.device(h, QueryGPUMetrics)
	if err != nil {
		return base.GPUMetrics{}, err
	}
	return d.Metrics, nil
}

func (l *Library) ClockInfo(h base.ProcessorHandle, clk base.ClockType) (base.ClockInfo, error) {
	d, err := l.device(h, QueryClockInfo)
	if err != nil {
		return base.ClockInfo{}, err
	}
	info, ok := d.Clocks[clk]
	if !ok {
		return base.ClockInfo{}, base.Errorf(base.StatusNotSupported, QueryClockInfo, "no %s clock", clk)
	}
	return info, nil
}

func (l *Library) ClockFrequencies(h base.ProcessorHandle, clk base.ClockType) (base.FrequencyLevels, error) {
	d, err := l.device(h, QueryClockFrequencies)
	if err != nil {
		return base.FrequencyLevels{}, err
	}
	levels, ok := d.Frequencies[clk]
	if !ok {
		return base.FrequencyLevels{}, base.Errorf(base.StatusNotSupported, QueryClockFrequencies, "no %s levels", clk)
	}
	return levels, nil
}

func (l *Library) PerfLevel(h base.ProcessorHandle) (string, error) {
	d, err := l.device(h, QueryPerfLevel)
	if err != nil {
		return "", err
	}
	return d.PerfLevel, nil
}

func (l *Library) PowerInfo(h base.ProcessorHandle) (base.PowerInfo, error) {
	d, err := l.device(h, QueryPowerInfo)
	if err != nil {
		return base.PowerInfo{}, err
	}
	return d.Power, nil
}

func (l *Library) PowerCapInfo(h base.ProcessorHandle, sensor int) (base.PowerCapInfo, error) {
	d, err := l.device(h, QueryPowerCapInfo)
	if err != nil {
		return base.PowerCapInfo{}, err
	}
	return d.PowerCap, nil
}

func (l *Library) EnergyCount(h base.ProcessorHandle) (base.EnergyCount, error) {
	d, err := l.device(h, QueryEnergyCount)
	if err != nil {
		return base.EnergyCount{}, err
	}
	return d.Energy, nil
}

func (l *Library) VRAMUsage(h base.ProcessorHandle) (base.VRAMUsage, error) {
	d, err := l.device(h, QueryVRAMUsage)
	if err != nil {
		return base.VRAMUsage{}, err
	}
	return d.VRAMUsage, nil
}

func (l *Library) VRAMInfo(h base.ProcessorHandle) (base.VRAMInfo, error) {
	d, err := l.device(h, QueryVRAMInfo)
	if err != nil {
		return base.VRAMInfo{}, err
	}
	return d.VRAMInfo, nil
}

func (l *Library) VRAMVendor(h base.ProcessorHandle) (string, error) {
	d, err := l.device(h, QueryVRAMVendor)
	if err != nil {
		return "", err
	}
	return d.VRAMVendor, nil
}

func (l *Library) FanSpeed(h base.ProcessorHandle, fan int) (uint64, error) {
	d, err := l.device(h, QueryFanSpeed)
	if err != nil {
		return 0, err
	}
	return d.FanSpeed, nil
}

func (l *Library) FanRPM(h base.ProcessorHandle, fan int) (uint64, error) {
	d, err := l.device(h, QueryFanRPM)
	if err != nil {
		return 0, err
	}
	return d.FanRPM, nil
}

func (l *Library) FanSpeedMax(h base.ProcessorHandle, fan int) (uint64, error) {
	d, err := l.device(h, QueryFanSpeedMax)
	if err != nil {
		return 0, err
	}
	return d.FanSpeedMax, nil
}

func (l *Library) ECCEnabled(h base.ProcessorHandle) (bool, error) {
	d, err := l.device(h, QueryECCEnabled)
	if err != nil {
		return false, err
	}
	return d.ECCEnabled, nil
}

func (l *Library) TotalECCCount(h base.ProcessorHandle) (base.ECCCount, error) {
	d, err := l.device(h, QueryTotalECCCount)
	if err != nil {
		return base.ECCCount{}, err
	}
	return d.ECCCount, nil
}

func (l *Library) BadPages(h base.ProcessorHandle) ([]base.BadPage, error) {
	d, err := l.device(h, QueryBadPages)
	if err != nil {
		return nil, err
	}
	return d.BadPages, nil
}

func (l *Library) PCIeInfo(h base.ProcessorHandle) (base.PCIeInfo, error) {
	d, err := l.device(h, QueryPCIeInfo)
	if err != nil {
		return base.PCIeInfo{}, err
	}
	return d.PCIe, nil
}

func (l *Library) PCIThroughput(h base.ProcessorHandle) (base.PCIThroughput, error) {
	d, err := l.device(h, QueryPCIThroughput)
	if err != nil {
		return base.PCIThroughput{}, err
	}
	return d.PCIThroughput, nil
}

func (l *Library) XGMIInfo(h base.ProcessorHandle) (base.XGMIInfo, error) {
	d, err := l.device(h, QueryXGMIInfo)
	if err != nil {
		return base.XGMIInfo{}, err
	}
	return d.XGMI, nil
}

func (l *Library) NUMANode(h base.ProcessorHandle) (int, error) {
	d, err := l.device(h, QueryNUMANode)
	if err != nil {
		return 0, err
	}
	return d.NUMANode, nil
}

func (l *Library) ViolationStatus(h base.ProcessorHandle) (base.ViolationStatus, error) {
	d, err := l.device(h, QueryViolationStatus)
	if err != nil {
		return base.ViolationStatus{}, err
	}
	return d.Violation, nil
}

func (l *Library) ProcessList(h base.ProcessorHandle) ([]base.ProcessInfo, error) {
	d, err := l.device(h, QueryProcessList)
	if err != nil {
		return nil, err
	}
	return d.Processes, nil
}

// Unsupported returns the error a driver gives for a metric it lacks.
func Unsupported(query string) error {
	return base.NewError(base.StatusNotSupported, query, fmt.Errorf("not supported by fake device"))
}
