//go:build !linux

package gpu

import "github.com/alpindale/gpuprobe/internal/gpu/base"

func querySensor(fd uintptr, sensor uint32) (uint32, error) {
	return 0, base.Errorf(base.StatusNotSupported, "sensor", "amdgpu ioctls require linux")
}

func queryDeviceInfo(fd uintptr) (deviceInfo, error) {
	return deviceInfo{}, base.Errorf(base.StatusNotSupported, "device info", "amdgpu ioctls require linux")
}

func openRenderNode(path string) (uintptr, func() error, error) {
	return 0, nil, base.Errorf(base.StatusNotSupported, "open render node", "%s: render nodes require linux", path)
}
