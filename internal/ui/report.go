package ui

import (
	"fmt"
	"io"

	"github.com/alpindale/gpuprobe/internal"
)

const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatYAML       = "yaml"
	FormatPrometheus = "prometheus"
)

func ParseFormat(s string) (string, error) {
	switch s {
	case FormatText, FormatJSON, FormatYAML, FormatPrometheus:
		return s, nil
	}
	return "", fmt.Errorf("invalid output format %q (want %s, %s, %s or %s)",
		s, FormatText, FormatJSON, FormatYAML, FormatPrometheus)
}

// Reporter receives one run's results in enumeration order. Begin or
// NoDevices is called first, End last.
type Reporter interface {
	NoDevices() error
	Begin(count int) error
	Device(index int, info *internal.GPUInfo) error
	DeviceError(index int, err error) error
	End() error
}

type ReportOptions struct {
	Format  string
	Color   string
	Backend string
}

func NewReporter(w io.Writer, opts ReportOptions) (Reporter, error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.Color == "" {
		opts.Color = ColorAuto
	}

	switch opts.Format {
	case FormatText:
		return NewTextReporter(w, NewStyles(NewRenderer(w, opts.Color))), nil
	case FormatJSON, FormatYAML:
		return newStructuredReporter(w, opts.Format, opts.Backend), nil
	case FormatPrometheus:
		return newPrometheusReporter(w), nil
	}
	return nil, fmt.Errorf("unsupported output format %q", opts.Format)
}

type TextReporter struct {
	w      io.Writer
	styles Styles
}

func NewTextReporter(w io.Writer, st Styles) *TextReporter {
	return &TextReporter{w: w, styles: st}
}

func (r *TextReporter) NoDevices() error {
	_, err := fmt.Fprintln(r.w, "No AMD GPUs detected on this machine")
	return err
}

func (r *TextReporter) Begin(count int) error {
	_, err := fmt.Fprintf(r.w, "Found %d AMD GPU(s)\n", count)
	return err
}

func (r *TextReporter) Device(index int, info *internal.GPUInfo) error {
	_, err := io.WriteString(r.w, RenderGPU(index, info, r.styles))
	return err
}

func (r *TextReporter) DeviceError(index int, err error) error {
	line := fmt.Sprintf("Error retrieving information for GPU %d: %v", index, err)
	_, werr := fmt.Fprintf(r.w, "\n%s\n", r.styles.Error.Render(line))
	return werr
}

func (r *TextReporter) End() error { return nil }
