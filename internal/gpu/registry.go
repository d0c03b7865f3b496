package gpu

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

const (
	BackendAuto    = "auto"
	BackendAMDSMI  = "amd-smi"
	BackendROCmSMI = "rocm-smi"
	BackendSysfs   = "sysfs"
)

// Options selects a backend and tells each backend where to look.
type Options struct {
	Backend     string
	AMDSMIPath  string
	ROCmSMIPath string
	SysRoot     string
	ProcRoot    string
	DevRoot     string
	Logger      *slog.Logger

	// overrides for tests; nil means the real thing
	RunCmd   base.RunCmdFunc
	LookPath func(file string) (string, error)
}

func normalizeOptions(opts Options) Options {
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.AMDSMIPath == "" {
		opts.AMDSMIPath = "amd-smi"
	}
	if opts.ROCmSMIPath == "" {
		opts.ROCmSMIPath = "rocm-smi"
	}
	if opts.SysRoot == "" {
		opts.SysRoot = "/sys"
	}
	if opts.ProcRoot == "" {
		opts.ProcRoot = "/proc"
	}
	if opts.DevRoot == "" {
		opts.DevRoot = "/dev"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts
}

// the providers in detection order; the first whose tooling is present on
// the host wins
func providers(opts Options) []base.Provider {
	return []base.Provider{
		AMDProvider{
			Path:     opts.AMDSMIPath,
			RunCmd:   opts.RunCmd,
			LookPath: opts.LookPath,
			Logger:   opts.Logger,
		},
		ROCmProvider{
			Path:     opts.ROCmSMIPath,
			RunCmd:   opts.RunCmd,
			LookPath: opts.LookPath,
			Logger:   opts.Logger,
		},
		SysfsProvider{
			SysRoot:  opts.SysRoot,
			ProcRoot: opts.ProcRoot,
			DevRoot:  opts.DevRoot,
			Logger:   opts.Logger,
		},
	}
}

// Open returns the library for the requested backend. With "auto" it picks
// the first provider that detects its tooling, and falls back to sysfs so
// that a host without AMD GPUs still gets a session that reports zero
// devices or a clear init failure.
func Open(opts Options) (base.Library, error) {
	opts = normalizeOptions(opts)
	candidates := providers(opts)

	if opts.Backend != BackendAuto {
		for _, p := range candidates {
			if p.Name() == opts.Backend {
				return p.Library(), nil
			}
		}
		return nil, fmt.Errorf("unknown backend %q (want one of %s)", opts.Backend, strings.Join(Backends(), ", "))
	}

	for _, p := range candidates {
		if p.Detect() {
			opts.Logger.Debug("selected backend", "backend", p.Name())
			return p.Library(), nil
		}
	}
	fallback := candidates[len(candidates)-1]
	opts.Logger.Debug("no backend detected, falling back", "backend", fallback.Name())
	return fallback.Library(), nil
}

// Backends lists the names accepted by Options.Backend.
func Backends() []string {
	return []string{BackendAuto, BackendAMDSMI, BackendROCmSMI, BackendSysfs}
}
