//go:build linux

package gpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/alpindale/gpuprobe/internal/gpu/base"
)

// DRM_IOCTL_AMDGPU_INFO: _IOW('d', 0x45, sizeof(struct drm_amdgpu_info))
const ioctlAMDGPUInfo = 0x40406445

// AMDGPU_INFO query types from include/uapi/drm/amdgpu_drm.h
const (
	amdgpuInfoDevInfo = 0x16
	amdgpuInfoSensor  = 0x1D
)

// byte offsets into struct drm_amdgpu_info_device
const (
	devInfoCUActiveOffset     = 48
	devInfoVRAMTypeOffset     = 176
	devInfoVRAMBitWidthOffset = 180
	devInfoSize               = 192
)

// mirrors struct drm_amdgpu_info; 8 + 4 + 4 + 48 bytes
type drmAMDGPUInfoRequest struct {
	returnPointer uint64
	returnSize    uint32
	query         uint32
	unionData     [48]byte
}

func amdgpuInfo(fd uintptr, request *drmAMDGPUInfoRequest) error {
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		fd,
		uintptr(ioctlAMDGPUInfo),
		uintptr(unsafe.Pointer(request)),
	)
	switch errno {
	case 0:
		return nil
	case unix.EACCES, unix.EPERM:
		return base.NewError(base.StatusNoPermission, "amdgpu info", errno)
	case unix.EINVAL, unix.EOPNOTSUPP, unix.ENOTTY:
		return base.NewError(base.StatusNotSupported, "amdgpu info", errno)
	}
	return base.NewError(base.StatusIO, "amdgpu info", errno)
}

func querySensor(fd uintptr, sensor uint32) (uint32, error) {
	var result uint32

	var request drmAMDGPUInfoRequest
	request.returnPointer = uint64(uintptr(unsafe.Pointer(&result)))
	request.returnSize = 4
	request.query = amdgpuInfoSensor
	binary.LittleEndian.PutUint32(request.unionData[:4], sensor)

	if err := amdgpuInfo(fd, &request); err != nil {
		return 0, fmt.Errorf("sensor query 0x%x: %w", sensor, err)
	}
	return result, nil
}

func queryDeviceInfo(fd uintptr) (deviceInfo, error) {
	var buf [devInfoSize]byte

	var request drmAMDGPUInfoRequest
	request.returnPointer = uint64(uintptr(unsafe.Pointer(&buf[0])))
	request.returnSize = devInfoSize
	request.query = amdgpuInfoDevInfo

	if err := amdgpuInfo(fd, &request); err != nil {
		return deviceInfo{}, fmt.Errorf("device info query: %w", err)
	}
	return deviceInfo{
		cuActive:     binary.LittleEndian.Uint32(buf[devInfoCUActiveOffset:]),
		vramType:     binary.LittleEndian.Uint32(buf[devInfoVRAMTypeOffset:]),
		vramBitWidth: binary.LittleEndian.Uint32(buf[devInfoVRAMBitWidthOffset:]),
	}, nil
}

func openRenderNode(path string) (uintptr, func() error, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, nil, base.FromOS("open render node", fmt.Errorf("%s: %w", path, err))
	}
	return uintptr(fd), func() error { return unix.Close(fd) }, nil
}
