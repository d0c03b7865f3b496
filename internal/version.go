package internal

import "fmt"

// set at build time via -ldflags "-X github.com/alpindale/gpuprobe/internal.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func FullVersion() string {
	if Version == "dev" && GitCommit != "unknown" && len(GitCommit) >= 8 {
		return "dev+" + GitCommit[:8]
	}
	return Version
}

// VersionLine is what --version prints.
func VersionLine(program string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", program, FullVersion(), GitCommit, BuildDate)
}
