package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpindale/gpuprobe/internal"
	"github.com/alpindale/gpuprobe/internal/gpu/base"
	"github.com/alpindale/gpuprobe/internal/gpu/gputest"
)

// widest label in the report: "Single-bit ECC Errors"
const labelWidth = 21

func plainStyles() Styles {
	return NewStyles(NewRenderer(&bytes.Buffer{}, ColorNever))
}

func gatherDevice(t *testing.T, dev *gputest.Device) *internal.GPUInfo {
	t.Helper()
	lib := gputest.New(dev)
	require.NoError(t, lib.Init())
	t.Cleanup(func() { _ = lib.Shutdown() })
	return internal.GatherGPUInfo(lib, 0)
}

func line(label, value string) string {
	return fmt.Sprintf("  %-*s : %s\n", labelWidth, label, value)
}

func TestRenderGPUFullDevice(t *testing.T) {
	out := RenderGPU(0, gatherDevice(t, gputest.MI300X()), plainStyles())

	banner := strings.Repeat("=", 80)
	assert.True(t, strings.HasPrefix(out, "\n"+banner+"\nGPU 0: AMD Instinct MI300X (0000:0c:00.0)\n"+banner+"\n"))

	for _, want := range []string{
		"\nIdentification:\n",
		line("UUID", "4cff74a1-0000-1000-80e7-6e8b1ab2c3d4"),
		line("Device ID", "0x74a1"),
		line("Compute Units", "304"),
		line("Architecture", "gfx942"),
		line("Serial Number", "692251001124"),
		line("GPU Utilization", "87 %"),
		line("Encoder Utilization", "15 %"),
		line("Decoder Utilization", NA),
		line("Edge Temperature", "38 °C"),
		line("Critical Limit", "100 °C"),
		line("Throttling", "Power, Prochot"),
		line("GPU Clock Range", "500 - 2100 MHz"),
		line("GPU Frequency Levels", "500, 2100 MHz"),
		line("Current Consumption", "612 W"),
		line("Average Consumption", "598.5 W"),
		line("Power Cap", "700 W"),
		line("Power Cap Range", "0 - 750 W"),
		line("Default Power Cap", "750 W"),
		line("GPU Voltage", "843 mV"),
		line("Bus Width", "8192 bits"),
		line("VRAM Used", "49152 MB"),
		line("VRAM Total", "196592 MB"),
		line("Usage Percentage", "25 %"),
		line("Fan Speed", "0 %"),
		line("Throughput TX", "3.5 MB/s"),
		line("Throughput RX", "12.25 MB/s"),
		line("NUMA Node", "1"),
		line("XGMI Hive ID", "0x3e4a9d1f00c2"),
		line("ECC Enabled", "Yes"),
		line("Single-bit ECC Errors", "2"),
		line("Bad Pages", "1 pages"),
		"\nFirmware:\n",
		"  CP_MEC1 : 0x000000b3\n",
		"  SMC     : 85.114.0\n",
		"\nProcesses:\n",
		processRow("PID", "NAME", "VRAM USAGE", "GPU UTIL", "ENC UTIL"),
		"  " + strings.Repeat("-", 60) + "\n",
		processRow("4123", "python3", "16.00 GiB", "87%", "0%"),
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderGPUIsDeterministic(t *testing.T) {
	info := gatherDevice(t, gputest.MI300X())
	assert.Equal(t, RenderGPU(2, info, plainStyles()), RenderGPU(2, info, plainStyles()))
}

func TestRenderGPULabelsAligned(t *testing.T) {
	out := RenderGPU(0, gatherDevice(t, gputest.MI300X()), plainStyles())

	var inFirmware bool
	for _, l := range strings.Split(out, "\n") {
		switch {
		case l == "Firmware:":
			inFirmware = true
		case l == "Processes:":
			return
		case !inFirmware && strings.Contains(l, " : "):
			assert.Equal(t, 2+labelWidth, strings.Index(l, " : "), "misaligned line %q", l)
		}
	}
}

func TestRenderGPUAllUnavailable(t *testing.T) {
	out := RenderGPU(1, &internal.GPUInfo{ProductName: internal.UnknownGPU}, plainStyles())

	assert.Contains(t, out, "GPU 1: Unknown GPU (N/A)\n")
	assert.Contains(t, out, line("Edge Temperature", NA))
	assert.Contains(t, out, line("GPU Clock Range", NA))
	assert.Contains(t, out, line("Usage Percentage", NA))
	assert.NotContains(t, out, "Firmware:")
	assert.NotContains(t, out, "Processes:")

	var lines int
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, " : ") {
			lines++
			assert.True(t, strings.HasSuffix(l, " : "+NA), "line %q", l)
		}
	}
	assert.Equal(t, 55, lines)
}

func TestRenderGPUVRAMTotalUnavailable(t *testing.T) {
	dev := gputest.MI300X()
	dev.VRAMUsage.Total = base.Reading[uint64]{}
	out := RenderGPU(0, gatherDevice(t, dev), plainStyles())

	assert.Contains(t, out, line("VRAM Used", "49152 MB"))
	assert.Contains(t, out, line("VRAM Total", NA))
	assert.Contains(t, out, line("Usage Percentage", NA))
}

func TestRenderGPUUsagePercentage(t *testing.T) {
	tests := []struct {
		used, total uint64
		want  string
	}{
		{1024, 2048, "50 %"},
		{1, 3, "33.3 %"},
		{2, 3, "66.7 %"},
		{0, 2048, "0 %"},
	}
	for _, tt := range tests {
		info := &internal.GPUInfo{VRAMUsed: base.Of(tt.used), VRAMTotal: base.Of(tt.total)}
		out := RenderGPU(0, info, plainStyles())
		assert.Contains(t, out, line("Usage Percentage", tt.want), "used %d of %d", tt.used, tt.total)
	}
}

func TestRenderGPUProcessColumns(t *testing.T) {
	dev := gputest.MI300X()
	dev.Processes = []base.ProcessInfo{
		{PID: 1, Name: "a_very_long_process_name_here", VRAMMem: base.Of[uint64](1024)},
		{PID: 77, GFX: base.Of(12.5)},
	}
	out := RenderGPU(0, gatherDevice(t, dev), plainStyles())

	assert.Contains(t, out, processRow("1", "a_very_long_process_", "1.00 KiB", NA, NA))
	assert.Contains(t, out, processRow("77", NA, NA, "12.5%", NA))
	assert.NotContains(t, out, "a_very_long_process_name")
}

func TestFormatLevels(t *testing.T) {
	assert.Equal(t, NA, formatLevels(nil, "MHz"))
	assert.Equal(t, "800 MHz", formatLevels([]uint64{800}, "MHz"))
}
