package ui

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/alpindale/gpuprobe/internal"
)

const metricPrefix = "amdgpu_"

var deviceLabels = []string{"gpu", "bdf"}

type gaugeSpec struct {
	name  string
	help  string
	scale float64
	value func(*internal.GPUInfo) any
}

var gaugeSpecs = []gaugeSpec{
	{"edge_temperature_celsius", "Edge temperature in degrees Celsius.", 1, func(g *internal.GPUInfo) any { return g.EdgeTemp }},
	{"junction_temperature_celsius", "Junction (hotspot) temperature in degrees Celsius.", 1, func(g *internal.GPUInfo) any { return g.JunctionTemp }},
	{"memory_temperature_celsius", "VRAM temperature in degrees Celsius.", 1, func(g *internal.GPUInfo) any { return g.MemTemp }},
	{"critical_temperature_celsius", "Edge critical temperature limit in degrees Celsius.", 1, func(g *internal.GPUInfo) any { return g.CriticalTemp }},
	{"gpu_utilization_percent", "Graphics engine activity.", 1, func(g *internal.GPUInfo) any { return g.GPUUtil }},
	{"memory_utilization_percent", "Memory controller activity.", 1, func(g *internal.GPUInfo) any { return g.MemUtil }},
	{"mm_utilization_percent", "Multimedia engine activity.", 1, func(g *internal.GPUInfo) any { return g.MMUtil }},
	{"encoder_utilization_percent", "Mean VCN activity.", 1, func(g *internal.GPUInfo) any { return g.EncoderUtil }},
	{"decoder_utilization_percent", "Mean JPEG activity.", 1, func(g *internal.GPUInfo) any { return g.DecoderUtil }},
	{"gpu_clock_mhz", "Current graphics clock in MHz.", 1, func(g *internal.GPUInfo) any { return g.GPUClock }},
	{"memory_clock_mhz", "Current memory clock in MHz.", 1, func(g *internal.GPUInfo) any { return g.MemClock }},
	{"power_watts", "Current socket power in watts.", 1, func(g *internal.GPUInfo) any { return g.Power }},
	{"power_average_watts", "Average socket power in watts.", 1, func(g *internal.GPUInfo) any { return g.PowerAvg }},
	{"power_cap_watts", "Configured power cap in watts.", 1e-6, func(g *internal.GPUInfo) any { return g.PowerCap }},
	{"energy_joules", "Accumulated energy in joules.", 1e-6, func(g *internal.GPUInfo) any { return g.Energy }},
	{"gfx_voltage_millivolts", "Graphics rail voltage in millivolts.", 1, func(g *internal.GPUInfo) any { return g.VoltageGFX }},
	{"soc_voltage_millivolts", "SOC rail voltage in millivolts.", 1, func(g *internal.GPUInfo) any { return g.VoltageSOC }},
	{"memory_voltage_millivolts", "Memory rail voltage in millivolts.", 1, func(g *internal.GPUInfo) any { return g.VoltageMem }},
	{"vram_used_megabytes", "VRAM in use in MB.", 1, func(g *internal.GPUInfo) any { return g.VRAMUsed }},
	{"vram_total_megabytes", "Total VRAM in MB.", 1, func(g *internal.GPUInfo) any { return g.VRAMTotal }},
	{"vram_usage_percent", "VRAM used as a percentage of total.", 1, func(g *internal.GPUInfo) any { return g.VRAMUsagePercent() }},
	{"fan_speed_percent", "Fan speed as a percentage of maximum.", 1, func(g *internal.GPUInfo) any { return g.FanSpeed }},
	{"fan_speed_rpm", "Fan speed in RPM.", 1, func(g *internal.GPUInfo) any { return g.FanRPM }},
	{"ecc_enabled", "1 when ECC is enabled on any block.", 1, func(g *internal.GPUInfo) any { return g.ECCEnabled }},
	{"ecc_correctable_errors", "Total correctable ECC errors.", 1, func(g *internal.GPUInfo) any { return g.SingleECC }},
	{"ecc_uncorrectable_errors", "Total uncorrectable ECC errors.", 1, func(g *internal.GPUInfo) any { return g.DoubleECC }},
	{"bad_pages", "Retired VRAM pages.", 1, func(g *internal.GPUInfo) any { return g.BadPages }},
	{"pcie_width_lanes", "Current PCIe link width.", 1, func(g *internal.GPUInfo) any { return g.PCIeWidth }},
	{"pcie_speed_gts", "Current PCIe link speed in GT/s.", 1, func(g *internal.GPUInfo) any { return g.PCIeSpeed }},
	{"pcie_replay_count", "PCIe replay count.", 1, func(g *internal.GPUInfo) any { return g.PCIeReplayCount }},
	{"pcie_tx_bytes_per_second", "PCIe bytes sent per second.", 1, func(g *internal.GPUInfo) any { return g.PCIeTX }},
	{"pcie_rx_bytes_per_second", "PCIe bytes received per second.", 1, func(g *internal.GPUInfo) any { return g.PCIeRX }},
}

// prometheusReporter writes the run in the text exposition format, suitable
// for a node_exporter textfile collector.
type prometheusReporter struct {
	w        io.Writer
	registry *prometheus.Registry

	up        *prometheus.GaugeVec
	info      *prometheus.GaugeVec
	gauges    []*prometheus.GaugeVec
	procVRAM  *prometheus.GaugeVec
	procCount *prometheus.GaugeVec
}

func newPrometheusReporter(w io.Writer) *prometheusReporter {
	reg := prometheus.NewRegistry()
	r := &prometheusReporter{
		w:        w,
		registry: reg,
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "up",
			Help: "1 when the device was collected, 0 when collection failed.",
		}, deviceLabels),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "info",
			Help: "Device identity, always 1.",
		}, slices.Concat(deviceLabels, []string{"product_name", "uuid", "driver_version", "vbios_version"})),
		procVRAM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "process_vram_bytes",
			Help: "VRAM held by a process in bytes.",
		}, slices.Concat(deviceLabels, []string{"pid", "name"})),
		procCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "processes",
			Help: "Number of processes holding the device.",
		}, deviceLabels),
	}
	reg.MustRegister(r.up, r.info, r.procVRAM, r.procCount)

	for _, spec := range gaugeSpecs {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + spec.name,
			Help: spec.help,
		}, deviceLabels)
		reg.MustRegister(g)
		r.gauges = append(r.gauges, g)
	}
	return r
}

func (r *prometheusReporter) NoDevices() error { return nil }

func (r *prometheusReporter) Begin(int) error { return nil }

func (r *prometheusReporter) Device(index int, info *internal.GPUInfo) error {
	gpu := strconv.Itoa(index)
	bdf := labelValue(FormatValue(info.BDF, ""))

	r.up.WithLabelValues(gpu, bdf).Set(1)
	r.info.WithLabelValues(gpu, bdf,
		labelValue(info.ProductName),
		labelValue(FormatValue(info.UUID, "")),
		labelValue(FormatValue(info.DriverVersion, "")),
		labelValue(FormatValue(info.VBIOSVersion, "")),
	).Set(1)

	for i, spec := range gaugeSpecs {
		if v, ok := metricValue(spec.value(info)); ok {
			r.gauges[i].WithLabelValues(gpu, bdf).Set(v * spec.scale)
		}
	}

	r.procCount.WithLabelValues(gpu, bdf).Set(float64(len(info.Processes)))
	for _, p := range info.Processes {
		if vram, ok := p.VRAMMem.Get(); ok {
			r.procVRAM.WithLabelValues(gpu, bdf, strconv.FormatUint(uint64(p.PID), 10), labelValue(p.Name)).Set(float64(vram))
		}
	}
	return nil
}

func (r *prometheusReporter) DeviceError(index int, _ error) error {
	r.up.WithLabelValues(strconv.Itoa(index), NA).Set(0)
	return nil
}

func (r *prometheusReporter) End() error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(r.w, mf); err != nil {
			return err
		}
	}
	return nil
}

// labelValue replaces invalid UTF-8, which WithLabelValues rejects with a
// panic. Process names and driver strings are arbitrary bytes.
func labelValue(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func metricValue(value any) (float64, bool) {
	v, ok := unwrap(value)
	if !ok {
		return 0, false
	}
	if b, isBool := v.(bool); isBool {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toFloat(v)
}
