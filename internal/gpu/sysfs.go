package gpu

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// AMDGPU_INFO_SENSOR sub-queries from include/uapi/drm/amdgpu_drm.h
const (
	sensorGFXSCLK     = 0x1 // MHz
	sensorGFXMCLK     = 0x2 // MHz
	sensorGPUTemp     = 0x3 // millidegrees C
	sensorGPULoad     = 0x4 // percent
	sensorGPUAvgPower = 0x5 // W
	sensorVDDNB       = 0x6 // mV
	sensorVDDGFX      = 0x7 // mV
)

// the subset of struct drm_amdgpu_info_device the report needs
type deviceInfo struct {
	cuActive     uint32
	vramType     uint32
	vramBitWidth uint32
}

// reads the amdgpu kernel driver directly: sysfs and hwmon attributes for
// static data and most metrics, procfs fdinfo for per-process usage, and
// the DRM sensor ioctl on the render node for whatever sysfs lacks
type SysfsProvider struct {
	SysRoot  string
	ProcRoot string
	DevRoot  string
	Logger   *slog.Logger
}

func (p SysfsProvider) Name() string {
	return BackendSysfs
}

func (p SysfsProvider) Detect() bool {
	cards, err := scanCards(p.SysRoot, p.DevRoot)
	return err == nil && len(cards) > 0
}

func (p SysfsProvider) Library() base.Library {
	return newSysfsLibrary(p)
}

type sysfsCard struct {
	name       string
	devicePath string
	hwmonPath  string
	renderNode string

	bdf            string
	vendorID       string
	deviceID       string
	subsysVendorID string

	opened  bool
	fd      uintptr
	closeFD func() error
	fdErr   error
}

type sysfsLibrary struct {
	sysRoot  string
	procRoot string
	devRoot  string
	logger   *slog.Logger

	// swapped out in tests
	openNode   func(path string) (uintptr, func() error, error)
	sensor     func(fd uintptr, sensor uint32) (uint32, error)
	deviceInfo func(fd uintptr) (deviceInfo, error)

	mu          sync.Mutex
	initialized bool
	cards       []*sysfsCard
	procs       map[string][]base.ProcessInfo
	procsErr    error
	procsLoaded bool
}

func newSysfsLibrary(p SysfsProvider) *sysfsLibrary {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sysfsLibrary{
		sysRoot:    p.SysRoot,
		procRoot:   p.ProcRoot,
		devRoot:    p.DevRoot,
		logger:     logger.With("backend", BackendSysfs),
		openNode:   openRenderNode,
		sensor:     querySensor,
		deviceInfo: queryDeviceInfo,
	}
}

func (l *sysfsLibrary) Name() string {
	return BackendSysfs
}

func (l *sysfsLibrary) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cards, err := scanCards(l.sysRoot, l.devRoot)
	if err != nil {
		return base.NewError(base.StatusInitFailed, "init", err)
	}
	l.cards = cards
	l.procs, l.procsErr, l.procsLoaded = nil, nil, false
	l.initialized = true
	l.logger.Debug("enumerated amdgpu cards", "count", len(cards))
	return nil
}

func (l *sysfsLibrary) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, c := range l.cards {
		if c.closeFD == nil {
			continue
		}
		if err := c.closeFD(); err != nil && firstErr == nil {
			firstErr = base.NewError(base.StatusIO, "shutdown", err)
		}
		c.closeFD = nil
	}
	l.cards = nil
	l.initialized = false
	return firstErr
}

func (l *sysfsLibrary) ProcessorHandles() ([]base.ProcessorHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, base.ErrNotInit
	}
	handles := make([]base.ProcessorHandle, len(l.cards))
	for i := range l.cards {
		handles[i] = base.ProcessorHandle(i)
	}
	return handles, nil
}

func (l *sysfsLibrary) card(h base.ProcessorHandle) (*sysfsCard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, base.ErrNotInit
	}
	if int(h) < 0 || int(h) >= len(l.cards) {
		return nil, base.Errorf(base.StatusNotFound, "handle", "no device for handle %d", h)
	}
	return l.cards[h], nil
}

// readSensor issues an AMDGPU_INFO_SENSOR query on the card's render node,
// opening the node on first use.
func (l *sysfsLibrary) readSensor(c *sysfsCard, sensor uint32) (uint32, error) {
	fd, err := l.renderFD(c)
	if err != nil {
		return 0, err
	}
	return l.sensor(fd, sensor)
}

func (l *sysfsLibrary) readDeviceInfo(c *sysfsCard) (deviceInfo, error) {
	fd, err := l.renderFD(c)
	if err != nil {
		return deviceInfo{}, err
	}
	return l.deviceInfo(fd)
}

func (l *sysfsLibrary) renderFD(c *sysfsCard) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c.renderNode == "" {
		return 0, base.Errorf(base.StatusNotSupported, "render node", "%s has no render node", c.name)
	}
	if !c.opened {
		c.fd, c.closeFD, c.fdErr = l.openNode(c.renderNode)
		c.opened = true
		if c.fdErr != nil {
			l.logger.Debug("render node unavailable", "card", c.name, "error", c.fdErr)
		}
	}
	return c.fd, c.fdErr
}

// scanCards lists the DRM cards bound to amdgpu in card-number order.
func scanCards(sysRoot, devRoot string) ([]*sysfsCard, error) {
	drmBase := filepath.Join(sysRoot, "class/drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return nil, fmt.Errorf("failed to list DRM devices: %w", err)
	}

	var cards []*sysfsCard
	for _, entry := range entries {
		name := entry.Name()
		if !isCardDevice(name) {
			continue
		}
		devicePath := filepath.Join(drmBase, name, "device")
		if readDriverName(devicePath) != "amdgpu" {
			continue
		}

		c := &sysfsCard{
			name:       name,
			devicePath: devicePath,
			hwmonPath:  findHwmon(devicePath),
			renderNode: renderNodeForDevice(devicePath, sysRoot, devRoot),
		}
		parsePCIUevent(c)
		cards = append(cards, c)
	}

	sort.Slice(cards, func(i, j int) bool {
		return cardNumber(cards[i].name) < cardNumber(cards[j].name)
	})
	return cards, nil
}

// matches card0, card1, ... but not connectors (card0-DP-1) or render nodes
func isCardDevice(name string) bool {
	suffix, ok := strings.CutPrefix(name, "card")
	if !ok || suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cardNumber(name string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(name, "card"))
	return n
}

func readDriverName(devicePath string) string {
	link, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

func findHwmon(devicePath string) string {
	matches, _ := filepath.Glob(filepath.Join(devicePath, "hwmon", "hwmon*"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// renderNodeForDevice finds the renderD* node backed by the same PCI device
// as the card; card and render indices do not necessarily line up.
func renderNodeForDevice(devicePath, sysRoot, devRoot string) string {
	cardPCIPath, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return ""
	}

	drmBase := filepath.Join(sysRoot, "class/drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "renderD") {
			continue
		}
		renderPCIPath, err := filepath.EvalSymlinks(filepath.Join(drmBase, name, "device"))
		if err != nil {
			continue
		}
		if renderPCIPath == cardPCIPath {
			return filepath.Join(devRoot, "dri", name)
		}
	}
	return ""
}

// parsePCIUevent fills in PCI identity from the device uevent file:
//
//	PCI_ID=1002:744C
//	PCI_SUBSYS_ID=1DA2:E471
//	PCI_SLOT_NAME=0000:03:00.0
func parsePCIUevent(c *sysfsCard) {
	data, err := os.ReadFile(filepath.Join(c.devicePath, "uevent"))
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "PCI_ID":
			if vendor, device, ok := strings.Cut(value, ":"); ok {
				c.vendorID = strings.ToLower(vendor)
				c.deviceID = strings.ToLower(device)
			}
		case "PCI_SUBSYS_ID":
			if vendor, _, ok := strings.Cut(value, ":"); ok {
				c.subsysVendorID = strings.ToLower(vendor)
			}
		case "PCI_SLOT_NAME":
			c.bdf = value
		}
	}
}

func pciVendorName(vendorID string) string {
	switch vendorID {
	case "":
		return ""
	case "1002":
		return "Advanced Micro Devices Inc. [AMD/ATI]"
	case "1043":
		return "ASUSTeK Computer Inc."
	case "1458":
		return "Gigabyte Technology Co., Ltd"
	case "1462":
		return "Micro-Star International Co., Ltd. [MSI]"
	case "148c":
		return "Tul Corporation / PowerColor"
	case "1682":
		return "XFX Limited"
	case "1849":
		return "ASRock Incorporation"
	case "1da2":
		return "Sapphire Technology Limited"
	}
	return "0x" + vendorID
}

func (c *sysfsCard) attr(name string) string {
	return filepath.Join(c.devicePath, name)
}

func (c *sysfsCard) hwmonAttr(name string) (string, error) {
	if c.hwmonPath == "" {
		return "", base.Errorf(base.StatusNotSupported, name, "%s has no hwmon interface", c.name)
	}
	return filepath.Join(c.hwmonPath, name), nil
}

func (c *sysfsCard) hwmonUint(name string) (uint64, error) {
	path, err := c.hwmonAttr(name)
	if err != nil {
		return 0, err
	}
	return readUint(path)
}

// hwmonChannel finds the channel (e.g. "temp2") of a hwmon sensor by label.
func (c *sysfsCard) hwmonChannel(kind, label string) (string, error) {
	if c.hwmonPath == "" {
		return "", base.Errorf(base.StatusNotSupported, label, "%s has no hwmon interface", c.name)
	}
	matches, _ := filepath.Glob(filepath.Join(c.hwmonPath, kind+"*_label"))
	sort.Strings(matches)
	for _, m := range matches {
		if got, err := readString(m); err == nil && got == label {
			return strings.TrimSuffix(filepath.Base(m), "_label"), nil
		}
	}
	return "", base.Errorf(base.StatusNotSupported, label, "no %s sensor labelled %q", kind, label)
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", base.FromOS(filepath.Base(path), err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", base.Errorf(base.StatusNotSupported, filepath.Base(path), "empty attribute")
	}
	return s, nil
}

func readUint(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, base.NewError(base.StatusUnexpectedData, filepath.Base(path), err)
	}
	return v, nil
}

func readInt(path string) (int64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, base.NewError(base.StatusUnexpectedData, filepath.Base(path), err)
	}
	return v, nil
}
