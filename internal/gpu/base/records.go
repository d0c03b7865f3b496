package base

type ASICInfo struct {
	MarketName       Reading[string]
	VendorName       Reading[string]
	DeviceID         Reading[string] // hex, e.g. "0x744c"
	ComputeUnits     Reading[uint32]
	TargetGFXVersion Reading[string]
}

type BoardInfo struct {
	ProductName      Reading[string]
	ManufacturerName Reading[string]
	ProductSerial    Reading[string]
}

type DriverInfo struct {
	Version Reading[string]
	Date    Reading[string]
}

type VBIOSInfo struct {
	Version   Reading[string]
	BuildDate Reading[string]
}

type FirmwareEntry struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// percent
type EngineActivity struct {
	GFX Reading[uint32]
	UMC Reading[uint32]
	MM  Reading[uint32]
}

// per-instance video encode (VCN) and decode (JPEG) activity in percent
type GPUMetrics struct {
	VCNActivity  []Reading[uint32]
	JPEGActivity []Reading[uint32]
}

// MHz
type ClockInfo struct {
	Current Reading[uint32]
	Min     Reading[uint32]
	Max     Reading[uint32]
}

// supported DPM levels in MHz, lowest first
type FrequencyLevels struct {
	Current     int
	Frequencies []uint64
}

type PowerInfo struct {
	CurrentSocketPower Reading[float64] // W
	AverageSocketPower Reading[float64] // W
	PowerLimit         Reading[float64] // W
	GFXVoltage         Reading[uint64]  // mV
	SOCVoltage         Reading[uint64]  // mV
	MemVoltage         Reading[uint64]  // mV
}

// µW
type PowerCapInfo struct {
	PowerCap        Reading[uint64]
	DefaultPowerCap Reading[uint64]
	MinPowerCap     Reading[uint64]
	MaxPowerCap     Reading[uint64]
}

// energy consumed since driver load is Accumulator * CounterResolution µJ
type EnergyCount struct {
	Accumulator       uint64
	CounterResolution float64
}

// MB
type VRAMUsage struct {
	Used  Reading[uint64]
	Total Reading[uint64]
}

type VRAMInfo struct {
	Type     Reading[string]
	BitWidth Reading[uint32]
}

type ECCCount struct {
	Correctable   Reading[uint64]
	Uncorrectable Reading[uint64]
}

type BadPage struct {
	Address uint64 `json:"address" yaml:"address"`
	Size    uint64 `json:"size" yaml:"size"`
	Status  string `json:"status" yaml:"status"`
}

type PCIeInfo struct {
	Width       Reading[uint16]  // lanes
	Speed       Reading[float64] // GT/s
	MaxWidth    Reading[uint16]
	MaxSpeed    Reading[float64]
	ReplayCount Reading[uint64]
}

// bytes per second
type PCIThroughput struct {
	Sent          uint64
	Received      uint64
	MaxPacketSize uint64
}

type XGMIInfo struct {
	HiveID Reading[uint64]
	NodeID Reading[uint64]
}

type ViolationStatus struct {
	ActivePPTPower       bool
	ActiveSocketThermal  bool
	ActiveProchotThermal bool
}

type ProcessInfo struct {
	PID     uint32           `json:"pid" yaml:"pid"`
	Name    string           `json:"name" yaml:"name"`
	VRAMMem Reading[uint64]  `json:"vram_bytes" yaml:"vram_bytes"` // bytes
	GFX     Reading[float64] `json:"gfx_util" yaml:"gfx_util"`     // percent
	Enc     Reading[float64] `json:"enc_util" yaml:"enc_util"`     // percent
}
