package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/alpindale/gpuprobe/internal"
	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

type Document struct {
	Backend string           `json:"backend" yaml:"backend"`
	Devices []DeviceDocument `json:"devices" yaml:"devices"`
}

type DeviceDocument struct {
	Index            int                   `json:"index" yaml:"index"`
	Info             *internal.GPUInfo     `json:"info" yaml:"info"`
	VRAMUsagePercent base.Reading[float64] `json:"vram_usage_percent" yaml:"vram_usage_percent"`
	Error            string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// structuredReporter buffers the whole run and writes one document on End.
type structuredReporter struct {
	w      io.Writer
	format string
	doc    Document
}

func newStructuredReporter(w io.Writer, format, backend string) *structuredReporter {
	return &structuredReporter{
		w:      w,
		format: format,
		doc:    Document{Backend: backend, Devices: []DeviceDocument{}},
	}
}

func (r *structuredReporter) NoDevices() error { return nil }

func (r *structuredReporter) Begin(count int) error {
	r.doc.Devices = make([]DeviceDocument, 0, count)
	return nil
}

func (r *structuredReporter) Device(index int, info *internal.GPUInfo) error {
	r.doc.Devices = append(r.doc.Devices, DeviceDocument{
		Index:            index,
		Info:             info,
		VRAMUsagePercent: info.VRAMUsagePercent(),
	})
	return nil
}

func (r *structuredReporter) DeviceError(index int, err error) error {
	r.doc.Devices = append(r.doc.Devices, DeviceDocument{Index: index, Error: err.Error()})
	return nil
}

func (r *structuredReporter) End() error {
	if r.format == FormatYAML {
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(r.doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	_, err = r.w.Write(append(data, '\n'))
	return err
}
