package profiler

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// DeviceInfo describes the host a profile was recorded on.
type DeviceInfo struct {
	OSName        string `json:"name"`
	OSVersion     string `json:"version"`
	KernelVersion string `json:"kernel_version,omitempty"`
	Architecture  string `json:"architecture"`
	Model         string `json:"model,omitempty"`
	CPUCount      int    `json:"processor_count,omitempty"`
	MemoryTotal   uint64 `json:"memory_size,omitempty"`
	Virtualized   bool   `json:"is_emulator"`
}

// CollectDeviceInfo queries the host. Fields that cannot be read are left
// empty.
func CollectDeviceInfo(ctx context.Context) DeviceInfo {
	info := DeviceInfo{
		OSName:       runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		if h.Platform != "" {
			info.OSName = h.Platform
		}
		info.OSVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.Virtualized = h.VirtualizationRole == "guest"
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = n
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.Model = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	}
	return info
}
