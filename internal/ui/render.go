package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alpindale/gpuprobe/internal"
)

const bannerWidth = 80

type entry struct {
	label string
	value string
}

type section struct {
	name    string
	entries []entry
}

func reportSections(info *internal.GPUInfo) []section {
	return []section{
		{"Identification", []entry{
			{"UUID", FormatValue(info.UUID, "")},
			{"Device ID", FormatValue(info.DeviceID, "")},
			{"Compute Units", FormatValue(info.ComputeUnits, "")},
			{"Architecture", FormatValue(info.GFXVersion, "")},
			{"Driver Version", FormatValue(info.DriverVersion, "")},
			{"VBIOS Version", FormatValue(info.VBIOSVersion, "")},
			{"Manufacturer", FormatValue(info.Manufacturer, "")},
			{"Serial Number", FormatValue(info.Serial, "")},
		}},
		{"Utilization", []entry{
			{"GPU Utilization", FormatValue(info.GPUUtil, "%")},
			{"Memory Utilization", FormatValue(info.MemUtil, "%")},
			{"Multimedia Engine", FormatValue(info.MMUtil, "%")},
			{"Encoder Utilization", FormatValue(info.EncoderUtil, "%")},
			{"Decoder Utilization", FormatValue(info.DecoderUtil, "%")},
			{"Performance Level", FormatValue(info.PerfLevel, "")},
		}},
		{"Temperature", []entry{
			{"Edge Temperature", FormatValue(info.EdgeTemp, "°C")},
			{"Junction Temperature", FormatValue(info.JunctionTemp, "°C")},
			{"Memory Temperature", FormatValue(info.MemTemp, "°C")},
			{"Critical Limit", FormatValue(info.CriticalTemp, "°C")},
			{"Throttling", FormatValue(info.ThrottleStatus, "")},
		}},
		{"Clocks", []entry{
			{"GPU Clock Current", FormatValue(info.GPUClock, "MHz")},
			{"GPU Clock Range", FormatRange(info.GPUClockMin, info.GPUClockMax, "MHz", 1)},
			{"Memory Clock Current", FormatValue(info.MemClock, "MHz")},
			{"Memory Clock Range", FormatRange(info.MemClockMin, info.MemClockMax, "MHz", 1)},
			{"GPU Frequency Levels", formatLevels(info.GPUFrequencies, "MHz")},
		}},
		{"Power", []entry{
			{"Current Consumption", FormatValue(info.Power, "W")},
			{"Average Consumption", FormatValue(info.PowerAvg, "W")},
			{"Power Cap", FormatScaled(info.PowerCap, "W", 1e6)},
			{"Power Cap Range", FormatRange(info.PowerCapMin, info.PowerCapMax, "W", 1e6)},
			{"Default Power Cap", FormatScaled(info.PowerCapDefault, "W", 1e6)},
			{"Energy Counter", FormatScaled(info.Energy, "J", 1e6)},
		}},
		{"Voltage", []entry{
			{"GPU Voltage", FormatValue(info.VoltageGFX, "mV")},
			{"SOC Voltage", FormatValue(info.VoltageSOC, "mV")},
			{"Memory Voltage", FormatValue(info.VoltageMem, "mV")},
		}},
		{"Memory", []entry{
			{"Type", FormatValue(info.VRAMType, "")},
			{"Vendor", FormatValue(info.VRAMVendor, "")},
			{"Bus Width", FormatValue(info.VRAMBitWidth, "bits")},
			{"VRAM Used", FormatValue(info.VRAMUsed, "MB")},
			{"VRAM Total", FormatValue(info.VRAMTotal, "MB")},
			{"Usage Percentage", FormatValue(info.VRAMUsagePercent(), "%")},
		}},
		{"Cooling", []entry{
			{"Fan Speed", FormatValue(info.FanSpeed, "%")},
			{"Fan RPM", FormatValue(info.FanRPM, "RPM")},
			{"Max Fan RPM", FormatValue(info.FanMaxRPM, "RPM")},
		}},
		{"PCIe", []entry{
			{"Current Width", FormatValue(info.PCIeWidth, "lanes")},
			{"Current Speed", FormatValue(info.PCIeSpeed, "GT/s")},
			{"Maximum Width", FormatValue(info.PCIeMaxWidth, "lanes")},
			{"Maximum Speed", FormatValue(info.PCIeMaxSpeed, "GT/s")},
			{"Throughput TX", FormatScaled(info.PCIeTX, "MB/s", 1e6)},
			{"Throughput RX", FormatScaled(info.PCIeRX, "MB/s", 1e6)},
			{"Replay Count", FormatValue(info.PCIeReplayCount, "")},
			{"NUMA Node", FormatValue(info.NUMANode, "")},
			{"XGMI Hive ID", FormatValue(info.XGMIHiveID, "")},
		}},
		{"Reliability", []entry{
			{"ECC Enabled", FormatValue(info.ECCEnabled, "")},
			{"Single-bit ECC Errors", FormatValue(info.SingleECC, "")},
			{"Double-bit ECC Errors", FormatValue(info.DoubleECC, "")},
			{"Bad Pages", FormatValue(info.BadPages, "pages")},
		}},
	}
}


func formatLevels(levels []uint64, unit string) string {
	if len(levels) == 0 {
		return NA
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.FormatUint(l, 10)
	}
	return withUnit(strings.Join(parts, ", "), unit)
}

// RenderGPU renders one device report. The label column is as wide as the
// longest label across all sections.
func RenderGPU(index int, info *internal.GPUInfo, st Styles) string {
	var b strings.Builder

	banner := st.Banner.Render(strings.Repeat("=", bannerWidth))
	b.WriteString("\n" + banner + "\n")
	b.WriteString(st.Title.Render(fmt.Sprintf("GPU %d: %s (%s)", index, info.ProductName, FormatValue(info.BDF, ""))))
	b.WriteString("\n" + banner + "\n")

	sections := reportSections(info)
	maxLabelLen := 0
	for _, s := range sections {
		for _, e := range s.entries {
			maxLabelLen = max(maxLabelLen, len([]rune(e.label)))
		}
	}

	for _, s := range sections {
		b.WriteString("\n" + st.Header.Render(s.name+":") + "\n")
		for _, e := range s.entries {
			padded := e.label + strings.Repeat(" ", maxLabelLen-len([]rune(e.label)))
			b.WriteString(fmt.Sprintf("  %s : %s\n", padded, e.value))
		}
	}

	if len(info.Firmware) > 0 {
		renderFirmware(&b, info, st)
	}
	if len(info.Processes) > 0 {
		renderProcesses(&b, info, st)
	}
	return b.String()
}

func renderFirmware(b *strings.Builder, info *internal.GPUInfo, st Styles) {
	b.WriteString("\n" + st.Header.Render("Firmware:") + "\n")
	maxNameLen := 0
	for _, fw := range info.Firmware {
		maxNameLen = max(maxNameLen, len([]rune(fw.Name)))
	}
	for _, fw := range info.Firmware {
		padded := fw.Name + strings.Repeat(" ", maxNameLen-len([]rune(fw.Name)))
		b.WriteString(fmt.Sprintf("  %s : %s\n", padded, fw.Version))
	}
}

const processNameWidth = 20

func processRow(pid, name, vram, gfx, enc string) string {
	return fmt.Sprintf("  %7s  %-20s  %10s  %8s  %8s\n", pid, name, vram, gfx, enc)
}

func renderProcesses(b *strings.Builder, info *internal.GPUInfo, st Styles) {
	b.WriteString("\n" + st.Header.Render("Processes:") + "\n")
	b.WriteString(processRow("PID", "NAME", "VRAM USAGE", "GPU UTIL", "ENC UTIL"))
	b.WriteString("  " + strings.Repeat("-", 60) + "\n")

	for _, p := range info.Processes {
		name := p.Name
		if name == "" {
			name = NA
		}
		b.WriteString(processRow(
			strconv.FormatUint(uint64(p.PID), 10),
			Truncate(name, processNameWidth),
			FormatBytes(p.VRAMMem, true),
			FormatPercent(p.GFX),
			FormatPercent(p.Enc),
		))
	}
}
