package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		unit  string
		want  string
	}{
		{"nil", nil, "W", NA},
		{"unavailable reading", base.Reading[uint64]{}, "MB", NA},
		{"empty string", "", "", NA},
		{"na string", "N/A", "°C", NA},
		{"integer", 38, "°C", "38 °C"},
		{"unsigned reading", base.Of[uint32](2100), "MHz", "2100 MHz"},
		{"integral float", base.Of(612.0), "W", "612 W"},
		{"fractional float", base.Of(598.5), "W", "598.5 W"},
		{"numeric string", "42", "%", "42 %"},
		{"hex string stays text", "0x74a1", "", "0x74a1"},
		{"text with unit", "HBM3", "", "HBM3"},
		{"bool true", base.Of(true), "", "Yes"},
		{"bool false", false, "", "No"},
		{"zero", base.Of[uint64](0), "RPM", "0 RPM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value, tt.unit))
		})
	}
}

func TestFormatValueNeverAddsUnitToNA(t *testing.T) {
	for _, unit := range []string{"", "W", "MHz", "°C", "lanes"} {
		assert.Equal(t, NA, FormatValue(nil, unit))
		assert.Equal(t, NA, FormatScaled(base.Reading[float64]{}, unit, 1e6))
	}
}

func TestFormatScaled(t *testing.T) {
	assert.Equal(t, "700 W", FormatScaled(base.Of[uint64](700_000_000), "W", 1e6))
	assert.Equal(t, "3.5 MB/s", FormatScaled(base.Of[uint64](3_500_000), "MB/s", 1e6))
	assert.Equal(t, "1.5 W", FormatScaled("1500000", "W", 1e6))
	assert.Equal(t, "12 W", FormatScaled(12, "W", 0))
	assert.Equal(t, "-2.5", FormatScaled(-5, "", 2))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		value  any
		binary bool
		want   string
	}{
		{nil, true, NA},
		{base.Reading[uint64]{}, true, NA},
		{0, true, "0.00 B"},
		{1023, true, "1023.00 B"},
		{1024, true, "1.00 KiB"},
		{base.Of[uint64](1536 << 20), true, "1.50 GiB"},
		{base.Of[uint64](17179869184), true, "16.00 GiB"},
		{uint64(5) << 50, true, "5120.00 TiB"},
		{1500, false, "1.50 KB"},
		{999, false, "999.00 B"},
		{"2048", true, "2.00 KiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.value, tt.binary), "value %v", tt.value)
	}
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "500 - 2100 MHz", FormatRange(base.Of[uint32](500), base.Of[uint32](2100), "MHz", 1))
	assert.Equal(t, "N/A - 2100 MHz", FormatRange(base.Reading[uint32]{}, base.Of[uint32](2100), "MHz", 1))
	assert.Equal(t, "0 - 750 W", FormatRange(base.Of[uint64](0), base.Of[uint64](750_000_000), "W", 1e6))
	assert.Equal(t, NA, FormatRange(base.Reading[uint32]{}, nil, "MHz", 1))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "87%", FormatPercent(base.Of(87.0)))
	assert.Equal(t, "12.5%", FormatPercent(12.5))
	assert.Equal(t, NA, FormatPercent(base.Reading[float64]{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 20))
	assert.Equal(t, "a_very_long_process_", Truncate("a_very_long_process_name_here", 20))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	require.Empty(t, Truncate("", 3))
}
