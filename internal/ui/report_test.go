package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alpindale/gpuprobe/internal/gpu/gputest"
)

func TestParseFormat(t *testing.T) {
	for _, f := range []string{FormatText, FormatJSON, FormatYAML, FormatPrometheus} {
		got, err := ParseFormat(f)
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xml"`)
}

func TestParseColorMode(t *testing.T) {
	got, err := ParseColorMode(ColorNever)
	require.NoError(t, err)
	assert.Equal(t, ColorNever, got)

	_, err = ParseColorMode("sometimes")
	require.Error(t, err)
}

func TestNewReporterRejectsUnknownFormat(t *testing.T) {
	_, err := NewReporter(&bytes.Buffer{}, ReportOptions{Format: "csv"})
	require.Error(t, err)
}

func TestTextReporter(t *testing.T) {
	t.Run("no devices", func(t *testing.T) {
		var buf bytes.Buffer
		rep, err := NewReporter(&buf, ReportOptions{Color: ColorNever})
		require.NoError(t, err)

		require.NoError(t, rep.NoDevices())
		require.NoError(t, rep.End())
		assert.Equal(t, "No AMD GPUs detected on this machine\n", buf.String())
	})

	t.Run("devices and failures", func(t *testing.T) {
		var buf bytes.Buffer
		rep, err := NewReporter(&buf, ReportOptions{Format: FormatText, Color: ColorNever})
		require.NoError(t, err)

		info := gatherDevice(t, gputest.MI300X())
		require.NoError(t, rep.Begin(2))
		require.NoError(t, rep.Device(0, info))
		require.NoError(t, rep.DeviceError(1, errors.New("device lost")))
		require.NoError(t, rep.End())

		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "Found 2 AMD GPU(s)\n"))
		assert.Contains(t, out, RenderGPU(0, info, plainStyles()))
		assert.True(t, strings.HasSuffix(out, "\nError retrieving information for GPU 1: device lost\n"))
	})
}

func TestStructuredReporterJSON(t *testing.T) {
	var buf bytes.Buffer
	rep, err := NewReporter(&buf, ReportOptions{Format: FormatJSON, Backend: "fake"})
	require.NoError(t, err)

	require.NoError(t, rep.Begin(2))
	require.NoError(t, rep.Device(0, gatherDevice(t, gputest.MI300X())))
	require.NoError(t, rep.DeviceError(1, errors.New("device lost")))
	assert.Empty(t, buf.String(), "nothing is written before End")
	require.NoError(t, rep.End())

	var doc struct {
		Backend string `json:"backend"`
		Devices []struct {
			Index            int            `json:"index"`
			Info             map[string]any `json:"info"`
			VRAMUsagePercent *float64       `json:"vram_usage_percent"`
			Error            string         `json:"error"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "fake", doc.Backend)
	require.Len(t, doc.Devices, 2)

	dev := doc.Devices[0]
	assert.Equal(t, "AMD Instinct MI300X", dev.Info["product_name"])
	assert.EqualValues(t, 38, dev.Info["edge_temp"])
	assert.Nil(t, dev.Info["decoder_util"])
	assert.Contains(t, dev.Info, "decoder_util")
	require.NotNil(t, dev.VRAMUsagePercent)
	assert.InDelta(t, 25.0, *dev.VRAMUsagePercent, 1e-9)
	assert.Empty(t, dev.Error)

	failed := doc.Devices[1]
	assert.Equal(t, 1, failed.Index)
	assert.Equal(t, "device lost", failed.Error)
	assert.Nil(t, failed.Info)
	assert.Nil(t, failed.VRAMUsagePercent)
}

func TestStructuredReporterNoDevices(t *testing.T) {
	var buf bytes.Buffer
	rep, err := NewReporter(&buf, ReportOptions{Format: FormatJSON, Backend: "sysfs"})
	require.NoError(t, err)

	require.NoError(t, rep.NoDevices())
	require.NoError(t, rep.End())
	assert.JSONEq(t, `{"backend": "sysfs", "devices": []}`, buf.String())
}

func TestStructuredReporterYAML(t *testing.T) {
	var buf bytes.Buffer
	rep, err := NewReporter(&buf, ReportOptions{Format: FormatYAML, Backend: "amd-smi"})
	require.NoError(t, err)

	require.NoError(t, rep.Begin(1))
	require.NoError(t, rep.Device(0, gatherDevice(t, gputest.MI300X())))
	require.NoError(t, rep.End())

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "amd-smi", doc["backend"])

	devices, ok := doc["devices"].([]any)
	require.True(t, ok)
	require.Len(t, devices, 1)

	dev := devices[0].(map[string]any)
	info := dev["info"].(map[string]any)
	assert.Equal(t, "gfx942", info["gfx_version"])
	assert.Equal(t, 2100, info["gpu_clock"])
	assert.Nil(t, info["decoder_util"])
	assert.EqualValues(t, 25, dev["vram_usage_percent"])
	assert.NotContains(t, dev, "error")
}
