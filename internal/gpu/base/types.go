package base

// an opaque reference to one GPU inside a Library; only valid between Init and Shutdown
type ProcessorHandle int

type RunCmdFunc func(name string, args ...string) ([]byte, error)

type Provider interface {
	// returns the backend name (e.g., "amd-smi", "sysfs")
	Name() string

	// returns true if the backend's tooling or driver interface exists on the host
	Detect() bool

	// returns a library bound to this backend; nothing is touched until Init
	Library() Library
}

// TempSensor selects which on-die sensor a temperature query reads.
type TempSensor int

const (
	TempEdge TempSensor = iota
	TempJunction
	TempVRAM
)

func (s TempSensor) String() string {
	switch s {
	case TempEdge:
		return "edge"
	case TempJunction:
		return "junction"
	case TempVRAM:
		return "vram"
	}
	return "unknown"
}

// TempMetric selects the live reading or the critical threshold of a sensor.
type TempMetric int

const (
	TempCurrent TempMetric = iota
	TempCritical
)

type ClockType int

const (
	ClockGFX ClockType = iota
	ClockMem
)

func (c ClockType) String() string {
	if c == ClockMem {
		return "mem"
	}
	return "gfx"
}

// Library is the vendor management interface a report is collected from.
// Every per-device query may fail independently; callers treat any error
// as "this metric is unavailable" and carry on.
type Library interface {
	Name() string
	Init() error
	Shutdown() error
	ProcessorHandles() ([]ProcessorHandle, error)

	ASICInfo(h ProcessorHandle) (ASICInfo, error)
	BoardInfo(h ProcessorHandle) (BoardInfo, error)
	DeviceUUID(h ProcessorHandle) (string, error)
	DeviceBDF(h ProcessorHandle) (string, error)
	DriverInfo(h ProcessorHandle) (DriverInfo, error)
	VBIOSInfo(h ProcessorHandle) (VBIOSInfo, error)
	FirmwareInfo(h ProcessorHandle) ([]FirmwareEntry, error)

	Temperature(h ProcessorHandle, sensor TempSensor, metric TempMetric) (int64, error)
	Activity(h ProcessorHandle) (EngineActivity, error)
	GPUMetrics(h ProcessorHandle) (GPUMetrics, error)
	ClockInfo(h ProcessorHandle, clk ClockType) (ClockInfo, error)
	ClockFrequencies(h ProcessorHandle, clk ClockType) (FrequencyLevels, error)
	PerfLevel(h ProcessorHandle) (string, error)

	PowerInfo(h ProcessorHandle) (PowerInfo, error)
	PowerCapInfo(h ProcessorHandle, sensor int) (PowerCapInfo, error)
	EnergyCount(h ProcessorHandle) (EnergyCount, error)

	VRAMUsage(h ProcessorHandle) (VRAMUsage, error)
	VRAMInfo(h ProcessorHandle) (VRAMInfo, error)
	VRAMVendor(h ProcessorHandle) (string, error)

	FanSpeed(h ProcessorHandle, fan int) (uint64, error)
	FanRPM(h ProcessorHandle, fan int) (uint64, error)
	FanSpeedMax(h ProcessorHandle, fan int) (uint64, error)

	ECCEnabled(h ProcessorHandle) (bool, error)
	TotalECCCount(h ProcessorHandle) (ECCCount, error)
	BadPages(h ProcessorHandle) ([]BadPage, error)

	PCIeInfo(h ProcessorHandle) (PCIeInfo, error)
	PCIThroughput(h ProcessorHandle) (PCIThroughput, error)
	XGMIInfo(h ProcessorHandle) (XGMIInfo, error)
	NUMANode(h ProcessorHandle) (int, error)
	ViolationStatus(h ProcessorHandle) (ViolationStatus, error)

	ProcessList(h ProcessorHandle) ([]ProcessInfo, error)
}
