package gpu

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// fakeAMDSMI answers amd-smi subcommands from testdata/amdsmi/<cmd>.json.
type fakeAMDSMI struct {
	t       *testing.T
	outputs map[string][]byte
	errs    map[string]error
	calls   map[string]int
}

func newFakeAMDSMI(t *testing.T) *fakeAMDSMI {
	t.Helper()
	f := &fakeAMDSMI{
		t:       t,
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
	for _, cmd := range []string{amdCmdVersion, amdCmdList, amdCmdStatic, amdCmdMetric, amdCmdProcess, amdCmdFirmware, amdCmdBadPages} {
		data, err := os.ReadFile(filepath.Join("testdata/amdsmi", cmd+".json"))
		require.NoError(t, err)
		f.outputs[cmd] = data
	}
	return f
}

func (f *fakeAMDSMI) run(name string, args ...string) ([]byte, error) {
	assert.Equal(f.t, "amd-smi", name)
	require.Len(f.t, args, 2)
	assert.Equal(f.t, "--json", args[1])

	cmd := args[0]
	f.calls[cmd]++
	if err := f.errs[cmd]; err != nil {
		return nil, err
	}
	out, ok := f.outputs[cmd]
	if !ok {
		return nil, fmt.Errorf("amd-smi: unknown command %q", cmd)
	}
	return out, nil
}

func (f *fakeAMDSMI) library() base.Library {
	return AMDProvider{Path: "amd-smi", RunCmd: f.run}.Library()
}

func (f *fakeAMDSMI) open(t *testing.T) base.Library {
	t.Helper()
	lib := f.library()
	require.NoError(t, lib.Init())
	t.Cleanup(func() { _ = lib.Shutdown() })
	return lib
}

func TestAMDProviderDetect(t *testing.T) {
	found := AMDProvider{Path: "amd-smi", LookPath: func(file string) (string, error) {
		return "/opt/rocm/bin/" + file, nil
	}}
	assert.True(t, found.Detect())
	assert.Equal(t, BackendAMDSMI, found.Name())

	missing := AMDProvider{Path: "amd-smi", LookPath: func(string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}}
	assert.False(t, missing.Detect())
}

func TestAMDSMIInitFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeAMDSMI)
	}{
		{"version fails", func(f *fakeAMDSMI) { f.errs[amdCmdVersion] = errors.New("exit status 1: amdgpu driver not loaded") }},
		{"version not json", func(f *fakeAMDSMI) { f.outputs[amdCmdVersion] = []byte("AMDSMI Tool: 24.6.2") }},
		{"list fails", func(f *fakeAMDSMI) { f.errs[amdCmdList] = errors.New("exit status 1") }},
		{"list not an array", func(f *fakeAMDSMI) { f.outputs[amdCmdList] = []byte(`{"error": "no devices"}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAMDSMI(t)
			tt.setup(f)
			lib := f.library()

			err := lib.Init()
			require.Error(t, err)
			assert.Equal(t, base.StatusInitFailed, base.CodeOf(err))

			_, err = lib.ProcessorHandles()
			assert.ErrorIs(t, err, base.ErrNotInit)
		})
	}
}

func TestAMDSMILifecycle(t *testing.T) {
	f := newFakeAMDSMI(t)
	lib := f.library()

	_, err := lib.ASICInfo(0)
	assert.ErrorIs(t, err, base.ErrNotInit)

	require.NoError(t, lib.Init())
	handles, err := lib.ProcessorHandles()
	require.NoError(t, err)
	assert.Equal(t, []base.ProcessorHandle{0, 1}, handles)

	_, err = lib.DeviceBDF(2)
	assert.Equal(t, base.StatusNotFound, base.CodeOf(err))

	require.NoError(t, lib.Shutdown())
	_, err = lib.ProcessorHandles()
	assert.ErrorIs(t, err, base.ErrNotInit)
}

func TestAMDSMIRunsEachCommandOnce(t *testing.T) {
	f := newFakeAMDSMI(t)
	lib := f.open(t)

	for range 3 {
		_, _ = lib.ASICInfo(0)
		_, _ = lib.BoardInfo(1)
		_, _ = lib.Activity(0)
		_, _ = lib.PowerInfo(1)
		_, _ = lib.ProcessList(0)
	}
	assert.Equal(t, 1, f.calls[amdCmdVersion])
	assert.Equal(t, 1, f.calls[amdCmdList])
	assert.Equal(t, 1, f.calls[amdCmdStatic])
	assert.Equal(t, 1, f.calls[amdCmdMetric])
	assert.Equal(t, 1, f.calls[amdCmdProcess])
	assert.Zero(t, f.calls[amdCmdFirmware])
}

func TestAMDSMIFailedCommandIsCached(t *testing.T) {
	f := newFakeAMDSMI(t)
	f.errs[amdCmdMetric] = errors.New("exit status 2")
	lib := f.open(t)

	_, err := lib.Temperature(0, base.TempJunction, base.TempCurrent)
	assert.Equal(t, base.StatusIO, base.CodeOf(err))
	_, err = lib.Activity(0)
	assert.Equal(t, base.StatusIO, base.CodeOf(err))
	assert.Equal(t, 1, f.calls[amdCmdMetric])

	// static data is unaffected
	asic, err := lib.ASICInfo(0)
	require.NoError(t, err)
	assert.Equal(t, base.Of("AMD Instinct MI300X"), asic.MarketName)
}

func TestAMDSMIQueries(t *testing.T) {
	lib := newFakeAMDSMI(t).open(t)

	t.Run("identity", func(t *testing.T) {
		asic, err := lib.ASICInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of("AMD Instinct MI300X"), asic.MarketName)
		assert.Equal(t, base.Of("Advanced Micro Devices Inc. [AMD/ATI]"), asic.VendorName)
		assert.Equal(t, base.Of("0x74a1"), asic.DeviceID)
		assert.Equal(t, base.Of(uint32(304)), asic.ComputeUnits)
		assert.Equal(t, base.Of("gfx942"), asic.TargetGFXVersion)

		board, err := lib.BoardInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of("AMD Instinct MI300X OAM"), board.ProductName)
		assert.Equal(t, base.Of("AMD"), board.ManufacturerName)
		assert.Equal(t, base.Of("692251001124"), board.ProductSerial)

		id, err := lib.DeviceUUID(0)
		require.NoError(t, err)
		assert.Equal(t, "1fff74a1-0000-1000-80ba-a5fe5f0c8c1d", id)

		bdf, err := lib.DeviceBDF(0)
		require.NoError(t, err)
		assert.Equal(t, "0000:0c:00.0", bdf)

		driver, err := lib.DriverInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of("6.8.5"), driver.Version)
		assert.Equal(t, base.Of("2015/01/01 00:00"), driver.Date)

		vbios, err := lib.VBIOSInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of("022.040.003.043.000001"), vbios.Version)
		assert.Equal(t, base.Of("2024/02/16 00:00"), vbios.BuildDate)

		fw, err := lib.FirmwareInfo(0)
		require.NoError(t, err)
		assert.Equal(t, []base.FirmwareEntry{
			{Name: "CP_MEC1", Version: "0x0000001a"},
			{Name: "SMU", Version: "85.101.0"},
		}, fw)
	})

	t.Run("temperature", func(t *testing.T) {
		_, err := lib.Temperature(0, base.TempEdge, base.TempCurrent)
		assert.True(t, base.IsNotSupported(err))

		hotspot, err := lib.Temperature(0, base.TempJunction, base.TempCurrent)
		require.NoError(t, err)
		assert.Equal(t, int64(45), hotspot)

		mem, err := lib.Temperature(0, base.TempVRAM, base.TempCurrent)
		require.NoError(t, err)
		assert.Equal(t, int64(36), mem)

		_, err = lib.Temperature(0, base.TempEdge, base.TempCritical)
		assert.True(t, base.IsNotSupported(err))

		crit, err := lib.Temperature(0, base.TempJunction, base.TempCritical)
		require.NoError(t, err)
		assert.Equal(t, int64(110), crit)
	})

	t.Run("utilization", func(t *testing.T) {
		act, err := lib.Activity(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of(uint32(87)), act.GFX)
		assert.Equal(t, base.Of(uint32(41)), act.UMC)
		assert.False(t, act.MM.Valid())

		metrics, err := lib.GPUMetrics(0)
		require.NoError(t, err)
		assert.Equal(t, []base.Reading[uint32]{base.Of(uint32(10)), {}, base.Of(uint32(20)), {}}, metrics.VCNActivity)
		assert.Nil(t, metrics.JPEGActivity)

		level, err := lib.PerfLevel(0)
		require.NoError(t, err)
		assert.Equal(t, "AMDSMI_DEV_PERF_LEVEL_AUTO", level)

		v, err := lib.ViolationStatus(0)
		require.NoError(t, err)
		assert.Equal(t, base.ViolationStatus{ActivePPTPower: true, ActiveProchotThermal: true}, v)
	})

	t.Run("clocks", func(t *testing.T) {
		gfx, err := lib.ClockInfo(0, base.ClockGFX)
		require.NoError(t, err)
		assert.Equal(t, base.ClockInfo{
			Current: base.Of(uint32(2100)),
			Min:     base.Of(uint32(500)),
			Max:     base.Of(uint32(2100)),
		}, gfx)

		mem, err := lib.ClockInfo(0, base.ClockMem)
		require.NoError(t, err)
		assert.Equal(t, base.ClockInfo{
			Current: base.Of(uint32(1300)),
			Min:     base.Of(uint32(900)),
			Max:     base.Of(uint32(1300)),
		}, mem)

		levels, err := lib.ClockFrequencies(0, base.ClockGFX)
		require.NoError(t, err)
		assert.Equal(t, base.FrequencyLevels{Current: 1, Frequencies: []uint64{500, 1300, 2100}}, levels)
	})

	t.Run("power", func(t *testing.T) {
		power, err := lib.PowerInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of(612.0), power.CurrentSocketPower)
		assert.False(t, power.AverageSocketPower.Valid())
		assert.False(t, power.PowerLimit.Valid())
		assert.Equal(t, base.Of(uint64(843)), power.GFXVoltage)
		assert.Equal(t, base.Of(uint64(761)), power.SOCVoltage)
		assert.Equal(t, base.Of(uint64(1100)), power.MemVoltage)

		caps, err := lib.PowerCapInfo(0, 0)
		require.NoError(t, err)
		assert.Equal(t, base.Of(uint64(750_000_000)), caps.PowerCap)
		assert.False(t, caps.DefaultPowerCap.Valid())
		assert.Equal(t, base.Of(uint64(0)), caps.MinPowerCap)
		assert.Equal(t, base.Of(uint64(750_000_000)), caps.MaxPowerCap)

		energy, err := lib.EnergyCount(0)
		require.NoError(t, err)
		assert.Equal(t, uint64(15_300_000), energy.Accumulator)
		assert.Equal(t, 1.0, energy.CounterResolution)
	})

	t.Run("memory", func(t *testing.T) {
		usage, err := lib.VRAMUsage(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of(uint64(49152)), usage.Used)
		assert.Equal(t, base.Of(uint64(196592)), usage.Total)

		info, err := lib.VRAMInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of("HBM3"), info.Type)
		assert.Equal(t, base.Of(uint32(8192)), info.BitWidth)

		vendor, err := lib.VRAMVendor(0)
		require.NoError(t, err)
		assert.Equal(t, "HYNIX", vendor)
	})

	t.Run("cooling", func(t *testing.T) {
		_, err := lib.FanSpeed(0, 0)
		assert.True(t, base.IsNotSupported(err))
		_, err = lib.FanRPM(0, 0)
		assert.True(t, base.IsNotSupported(err))

		pct, err := lib.FanSpeed(1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), pct)

		rpm, err := lib.FanRPM(1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1200), rpm)

		maxRPM, err := lib.FanSpeedMax(1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(255), maxRPM)

		_, err = lib.FanSpeed(1, 1)
		assert.Equal(t, base.StatusNotFound, base.CodeOf(err))
		_, err = lib.FanRPM(1, 1)
		assert.Equal(t, base.StatusNotFound, base.CodeOf(err))
		_, err = lib.FanSpeedMax(1, -1)
		assert.Equal(t, base.StatusNotFound, base.CodeOf(err))
	})

	t.Run("reliability", func(t *testing.T) {
		enabled, err := lib.ECCEnabled(0)
		require.NoError(t, err)
		assert.True(t, enabled)

		ecc, err := lib.TotalECCCount(0)
		require.NoError(t, err)
		assert.Equal(t, base.ECCCount{Correctable: base.Of(uint64(2)), Uncorrectable: base.Of(uint64(0))}, ecc)

		pages, err := lib.BadPages(0)
		require.NoError(t, err)
		assert.Equal(t, []base.BadPage{{Address: 0x1f000, Size: 0x1000, Status: "RESERVED"}}, pages)
	})

	t.Run("interconnect", func(t *testing.T) {
		pcie, err := lib.PCIeInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.PCIeInfo{
			Width:       base.Of(uint16(16)),
			MaxWidth:    base.Of(uint16(16)),
			Speed:       base.Of(32.0),
			MaxSpeed:    base.Of(32.0),
			ReplayCount: base.Of(uint64(0)),
		}, pcie)

		tp, err := lib.PCIThroughput(0)
		require.NoError(t, err)
		assert.Equal(t, base.PCIThroughput{Sent: 3_500_000, Received: 12_250_000, MaxPacketSize: 256}, tp)

		xgmi, err := lib.XGMIInfo(0)
		require.NoError(t, err)
		assert.Equal(t, base.Of(uint64(0x3e4a9d1f00c2)), xgmi.HiveID)
		assert.Equal(t, base.Of(uint64(0)), xgmi.NodeID)

		node, err := lib.NUMANode(0)
		require.NoError(t, err)
		assert.Equal(t, 1, node)
	})

	t.Run("processes", func(t *testing.T) {
		procs, err := lib.ProcessList(0)
		require.NoError(t, err)
		require.Len(t, procs, 2)

		assert.Equal(t, base.ProcessInfo{
			PID:     4123,
			Name:    "python3",
			VRAMMem: base.Of(uint64(16 << 30)),
			GFX:     base.Of(87.0),
			Enc:     base.Of(0.0),
		}, procs[0])

		// nanosecond busy counters are not percentages
		assert.Equal(t, uint32(5000), procs[1].PID)
		assert.Equal(t, base.Of(uint64(1024)), procs[1].VRAMMem)
		assert.False(t, procs[1].GFX.Valid())
		assert.False(t, procs[1].Enc.Valid())
	})
}

func TestAMDSMISparseDevice(t *testing.T) {
	lib := newFakeAMDSMI(t).open(t)

	_, err := lib.ASICInfo(1)
	assert.True(t, base.IsNotSupported(err))

	board, err := lib.BoardInfo(1)
	require.NoError(t, err)
	assert.Equal(t, base.Of("Radeon Pro W7900"), board.ProductName)
	assert.False(t, board.ProductSerial.Valid())

	_, err = lib.DeviceUUID(1)
	assert.True(t, base.IsNotSupported(err))

	bdf, err := lib.DeviceBDF(1)
	require.NoError(t, err)
	assert.Equal(t, "0000:22:00.0", bdf)

	act, err := lib.Activity(1)
	require.NoError(t, err)
	assert.Equal(t, base.Of(uint32(3)), act.GFX)
	assert.Equal(t, base.Of(uint32(0)), act.MM)

	_, err = lib.GPUMetrics(1)
	assert.True(t, base.IsNotSupported(err))

	v, err := lib.ViolationStatus(1)
	require.NoError(t, err)
	assert.Equal(t, base.ViolationStatus{}, v)

	_, err = lib.TotalECCCount(1)
	assert.True(t, base.IsNotSupported(err))
	_, err = lib.XGMIInfo(1)
	assert.True(t, base.IsNotSupported(err))
	_, err = lib.NUMANode(1)
	assert.True(t, base.IsNotSupported(err))
	_, err = lib.FirmwareInfo(1)
	assert.True(t, base.IsNotSupported(err))

	pages, err := lib.BadPages(1)
	require.NoError(t, err)
	assert.Empty(t, pages)

	procs, err := lib.ProcessList(1)
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		n    float64
		unit string
		err  bool
	}{
		{"500 MHz", 500, "MHz", false},
		{"1300Mhz", 1300, "Mhz", false},
		{"16.0 GT/s", 16, "GT/s", false},
		{"42", 42, "", false},
		{"-1", -1, "", false},
		{"fast", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, unit, err := parseQuantity(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.unit, unit)
		})
	}
}

func TestParseGPUDocumentShapes(t *testing.T) {
	bare, err := parseGPUDocument("metric", []byte(`[{"gpu": 3, "x": 1}, {"x": 2}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), bare[3].Get("x").Int())
	assert.Equal(t, int64(2), bare[1].Get("x").Int())

	wrapped, err := parseGPUDocument("metric", []byte(`{"gpu_data": [{"gpu": 0, "x": 5}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), wrapped[0].Get("x").Int())

	_, err = parseGPUDocument("metric", []byte(`not json`))
	assert.Equal(t, base.StatusUnexpectedData, base.CodeOf(err))

	_, err = parseGPUDocument("metric", []byte(`{"gpu": 0}`))
	assert.Equal(t, base.StatusUnexpectedData, base.CodeOf(err))
}
