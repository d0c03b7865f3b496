package gpu

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// per-process usage parsed from DRM fdinfo; several fds of one process may
// share a DRM client, so memory is counted once per client id
type drmClient struct {
	pdev     string
	clientID string
	vram     uint64 // bytes
	hasVRAM  bool
}

// scanProcesses walks /proc/<pid>/fdinfo once per Init and groups amdgpu
// clients by PCI address.
func (l *sysfsLibrary) scanProcesses() (map[string][]base.ProcessInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.procsLoaded {
		return l.procs, l.procsErr
	}
	l.procs, l.procsErr = scanFdinfo(l.procRoot)
	l.procsLoaded = true
	if l.procsErr == nil {
		l.logger.Debug("scanned fdinfo", "devices", len(l.procs))
	}
	return l.procs, l.procsErr
}

func scanFdinfo(procRoot string) (map[string][]base.ProcessInfo, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, base.FromOS("process list", err)
	}

	byDevice := make(map[string][]base.ProcessInfo)
	for _, entry := range entries {
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		pidDir := filepath.Join(procRoot, entry.Name())
		clients := readProcessClients(pidDir)
		if len(clients) == 0 {
			continue
		}

		name, _ := readString(filepath.Join(pidDir, "comm"))
		perDevice := make(map[string]*base.ProcessInfo)
		for _, client := range clients {
			proc, ok := perDevice[client.pdev]
			if !ok {
				proc = &base.ProcessInfo{PID: uint32(pid), Name: name}
				perDevice[client.pdev] = proc
			}
			if client.hasVRAM {
				proc.VRAMMem = base.Of(proc.VRAMMem.Or(0) + client.vram)
			}
		}
		for pdev, proc := range perDevice {
			byDevice[pdev] = append(byDevice[pdev], *proc)
		}
	}
	for _, procs := range byDevice {
		sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	}
	return byDevice, nil
}

// readProcessClients collects the distinct amdgpu DRM clients a process
// holds open. Unreadable processes (other users, exited) yield nothing.
func readProcessClients(pidDir string) []drmClient {
	fdinfoDir := filepath.Join(pidDir, "fdinfo")
	entries, err := os.ReadDir(fdinfoDir)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var clients []drmClient
	for _, entry := range entries {
		client, ok := parseFdinfo(filepath.Join(fdinfoDir, entry.Name()))
		if !ok {
			continue
		}
		key := client.pdev + "/" + client.clientID
		if seen[key] {
			continue
		}
		seen[key] = true
		clients = append(clients, client)
	}
	return clients
}

// parseFdinfo reads the drm-* keys of one fdinfo file:
//
//	drm-driver:	amdgpu
//	drm-pdev:	0000:03:00.0
//	drm-client-id:	42
//	drm-memory-vram:	262144 KiB
func parseFdinfo(path string) (drmClient, bool) {
	f, err := os.Open(path)
	if err != nil {
		return drmClient{}, false
	}
	defer f.Close()

	var client drmClient
	var driver string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "drm-driver":
			driver = value
		case "drm-pdev":
			client.pdev = value
		case "drm-client-id":
			client.clientID = value
		case "drm-memory-vram":
			if n, ok := parseMemoryAmount(value); ok {
				client.vram, client.hasVRAM = n, true
			}
		}
	}
	if driver != "amdgpu" || client.pdev == "" {
		return drmClient{}, false
	}
	return client, true
}

// parseMemoryAmount converts "262144 KiB" to bytes.
func parseMemoryAmount(s string) (uint64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	if len(fields) == 1 {
		return n, true
	}
	switch fields[1] {
	case "KiB":
		return n << 10, true
	case "MiB":
		return n << 20, true
	case "GiB":
		return n << 30, true
	}
	return n, true
}
