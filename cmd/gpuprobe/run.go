package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/alpindale/gpuprobe/internal"
	"github.com/alpindale/gpuprobe/internal/gpu"
	"github.com/alpindale/gpuprobe/internal/gpu/base"
	"github.com/alpindale/gpuprobe/internal/ui"
)

const programName = "gpuprobe"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// openFunc opens a library session; tests substitute an in-memory one.
type openFunc func(gpu.Options) (base.Library, error)

type config struct {
	backend     string
	amdSMIPath  string
	rocmSMIPath string
	sysRoot     string
	procRoot    string
	devRoot     string
	format      string
	color       string
	logLevel    slog.Level
	showVersion bool
}

var errHelp = errors.New("help requested")

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	var format, color, logLevel string

	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&cfg.backend, "backend", gpu.BackendAuto, "telemetry backend: "+strings.Join(gpu.Backends(), ", "))
	flagSet.StringVar(&cfg.amdSMIPath, "amd-smi", "amd-smi", "path or name of the amd-smi executable")
	flagSet.StringVar(&cfg.rocmSMIPath, "rocm-smi", "rocm-smi", "path or name of the legacy rocm-smi executable")
	flagSet.StringVar(&cfg.sysRoot, "sysfs-root", "/sys", "sysfs mount point")
	flagSet.StringVar(&cfg.procRoot, "proc-root", "/proc", "procfs mount point")
	flagSet.StringVar(&cfg.devRoot, "dev-root", "/dev", "device directory holding dri render nodes")
	flagSet.StringVarP(&format, "format", "o", ui.FormatText, "output format: text, json, yaml, prometheus")
	flagSet.StringVar(&color, "color", ui.ColorAuto, "colorize text output: auto, always, never")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolVar(&cfg.showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags]\n\nPrint telemetry for every AMD GPU on this machine.\n\nFlags:\n", programName)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return cfg, errHelp
		}
		return cfg, err
	}
	if flagSet.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	var err error
	if cfg.format, err = ui.ParseFormat(format); err != nil {
		return cfg, err
	}
	if cfg.color, err = ui.ParseColorMode(color); err != nil {
		return cfg, err
	}
	if cfg.logLevel, err = internal.ParseLogLevel(logLevel); err != nil {
		return cfg, err
	}
	if !slices.Contains(gpu.Backends(), cfg.backend) {
		return cfg, fmt.Errorf("invalid backend %q (want %s)", cfg.backend, strings.Join(gpu.Backends(), ", "))
	}
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer, open openFunc) int {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, errHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		return exitUsage
	}
	if cfg.showVersion {
		fmt.Fprintln(stdout, internal.VersionLine(programName))
		return exitOK
	}

	logger := internal.NewLogger(stderr, cfg.logLevel)
	if open == nil {
		open = gpu.Open
	}

	lib, err := open(gpu.Options{
		Backend:     cfg.backend,
		AMDSMIPath:  cfg.amdSMIPath,
		ROCmSMIPath: cfg.rocmSMIPath,
		SysRoot:     cfg.sysRoot,
		ProcRoot:    cfg.procRoot,
		DevRoot:     cfg.devRoot,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		return exitUsage
	}

	rep, err := ui.NewReporter(stdout, ui.ReportOptions{
		Format:  cfg.format,
		Color:   cfg.color,
		Backend: lib.Name(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		return exitUsage
	}

	if err := probeDevices(lib, rep, stdout, logger); err != nil {
		if !errors.Is(err, errInit) {
			logger.Error("failed to write report", "error", err)
		}
		return exitFailure
	}
	return exitOK
}

// errInit marks a failed session start or enumeration. Its line has already
// been printed.
var errInit = errors.New("library initialization failed")

func probeDevices(lib base.Library, rep ui.Reporter, stdout io.Writer, logger *slog.Logger) error {
	// release runs on every path, a failed Init included
	defer func() {
		if serr := lib.Shutdown(); serr != nil {
			logger.Debug("library shutdown failed", "backend", lib.Name(), "error", serr)
		}
	}()

	logger.Debug("initializing library", "backend", lib.Name())
	if err := lib.Init(); err != nil {
		fmt.Fprintf(stdout, "Error initializing AMD SMI: %v\n", err)
		return errInit
	}

	handles, err := lib.ProcessorHandles()
	if err != nil {
		fmt.Fprintf(stdout, "Error initializing AMD SMI: %v\n", err)
		return errInit
	}

	if len(handles) == 0 {
		if err := rep.NoDevices(); err != nil {
			return err
		}
		return rep.End()
	}

	if err := rep.Begin(len(handles)); err != nil {
		return err
	}
	for i, h := range handles {
		if err := reportDevice(rep, lib, i, h, logger); err != nil {
			return err
		}
	}
	return rep.End()
}

// deviceFailure carries a panic that escaped collection or rendering of one
// device.
type deviceFailure struct {
	cause any
}

func (f deviceFailure) Error() string {
	if err, ok := f.cause.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(f.cause)
}

func reportDevice(rep ui.Reporter, lib base.Library, index int, h base.ProcessorHandle, logger *slog.Logger) error {
	err := emitDevice(rep, lib, index, h)

	var failure deviceFailure
	if !errors.As(err, &failure) {
		return err
	}
	logger.Warn("device collection failed", "gpu", index, "error", failure.Error())
	return rep.DeviceError(index, failure)
}

func emitDevice(rep ui.Reporter, lib base.Library, index int, h base.ProcessorHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = deviceFailure{cause: r}
		}
	}()
	return rep.Device(index, internal.GatherGPUInfo(lib, h))
}
