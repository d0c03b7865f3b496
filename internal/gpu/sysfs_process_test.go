package gpu

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

func fdinfo(pdev, clientID, vram string) string {
	s := "pos:\t0\nflags:\t02100002\ndrm-driver:\tamdgpu\ndrm-pdev:\t" + pdev + "\ndrm-client-id:\t" + clientID + "\n"
	if vram != "" {
		s += "drm-memory-vram:\t" + vram + "\n"
	}
	return s
}

func TestSysfsProcessList(t *testing.T) {
	host := newSyntheticHost(t)
	addSyntheticCard(t, host.sys, "card0", "", testSlot, "amdgpu")
	addSyntheticCard(t, host.sys, "card1", "", "0000:04:00.0", "amdgpu")

	// two fds sharing client 7 count once
	writeSyntheticFile(t, host.proc, "1234/comm", "python3\n")
	writeSyntheticFile(t, host.proc, "1234/fdinfo/3", fdinfo(testSlot, "7", "1048576 KiB"))
	writeSyntheticFile(t, host.proc, "1234/fdinfo/4", fdinfo(testSlot, "7", "1048576 KiB"))
	writeSyntheticFile(t, host.proc, "1234/fdinfo/5", fdinfo(testSlot, "8", "512 MiB"))
	writeSyntheticFile(t, host.proc, "1234/fdinfo/6", fdinfo("0000:04:00.0", "9", "4096"))

	writeSyntheticFile(t, host.proc, "200/comm", "Xorg\n")
	writeSyntheticFile(t, host.proc, "200/fdinfo/10", fdinfo(testSlot, "1", ""))

	writeSyntheticFile(t, host.proc, "555/comm", "glxgears\n")
	writeSyntheticFile(t, host.proc, "555/fdinfo/3", "drm-driver:\ti915\ndrm-pdev:\t0000:00:02.0\n")

	writeSyntheticFile(t, host.proc, "777/comm", "bash\n")
	writeSyntheticFile(t, host.proc, "777/fdinfo/0", "pos:\t0\nflags:\t02\n")

	writeSyntheticFile(t, host.proc, "self/comm", "gpuprobe\n")
	writeSyntheticFile(t, host.proc, "self/fdinfo/3", fdinfo(testSlot, "99", "1 GiB"))

	lib := host.open(t, &fakeRenderNode{})

	procs, err := lib.ProcessList(0)
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, uint32(200), procs[0].PID)
	assert.Equal(t, "Xorg", procs[0].Name)
	assert.False(t, procs[0].VRAMMem.Valid())

	assert.Equal(t, uint32(1234), procs[1].PID)
	assert.Equal(t, "python3", procs[1].Name)
	assert.Equal(t, base.Of(uint64(1536<<20)), procs[1].VRAMMem)
	assert.False(t, procs[1].GFX.Valid())
	assert.False(t, procs[1].Enc.Valid())

	other, err := lib.ProcessList(1)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, base.Of(uint64(4096)), other[0].VRAMMem)

	// callers get their own copy of the cached scan
	procs[0].Name = "changed"
	again, err := lib.ProcessList(0)
	require.NoError(t, err)
	assert.Equal(t, "Xorg", again[0].Name)
}

func TestSysfsProcessListWithoutProcfs(t *testing.T) {
	host := newSyntheticHost(t)
	addSyntheticCard(t, host.sys, "card0", "", testSlot, "amdgpu")
	lib := host.open(t, &fakeRenderNode{})

	_, err := lib.ProcessList(0)
	assert.True(t, base.IsNotSupported(err))
}

func TestParseMemoryAmount(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"4096", 4096, true},
		{"262144 KiB", 262144 << 10, true},
		{"3 MiB", 3 << 20, true},
		{"2 GiB", 2 << 30, true},
		{"", 0, false},
		{"lots KiB", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseMemoryAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFdinfoRequiresAmdgpu(t *testing.T) {
	dir := t.TempDir()
	writeSyntheticFile(t, dir, "fd", "drm-pdev:\t"+testSlot+"\ndrm-client-id:\t3\n")

	_, ok := parseFdinfo(filepath.Join(dir, "fd"))
	assert.False(t, ok)

	writeSyntheticFile(t, dir, "fd2", fdinfo(testSlot, "3", "8 KiB"))
	client, ok := parseFdinfo(filepath.Join(dir, "fd2"))
	require.True(t, ok)
	assert.Equal(t, drmClient{pdev: testSlot, clientID: "3", vram: 8192, hasVRAM: true}, client)
}
