package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// MemoryStat is a single atomic read of the virtual memory counters.
type MemoryStat struct {
	Total       uint64
	Available   uint64
	Used        uint64
	UsedPercent float64
}

// Partition describes one mounted volume as enumerated by the host.
type Partition struct {
	Device     string
	Mountpoint string
	FSType     string
}

// VolumeUsage is the usage of a single mounted volume.
type VolumeUsage struct {
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// NetCounters holds the cumulative byte counters of one interface.
type NetCounters struct {
	Name      string
	BytesSent uint64
	BytesRecv uint64
}

// HostSource reads raw counters from the operating system.
// Implementations must be safe for concurrent use.
type HostSource interface {
	// CPUPercent blocks for window and returns the system-wide utilization
	// observed during that time.
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	VirtualMemory(ctx context.Context) (*MemoryStat, error)
	Partitions(ctx context.Context) ([]Partition, error)
	Usage(ctx context.Context, mountpoint string) (*VolumeUsage, error)
	// NetCounters returns one entry per interface. An empty slice means the
	// host exposes no counters.
	NetCounters(ctx context.Context) ([]NetCounters, error)
	Info(ctx context.Context) (*SystemInfo, error)
}

// GopsutilSource is the HostSource backed by gopsutil. It works on Linux,
// macOS and Windows.
type GopsutilSource struct{}

// NewGopsutilSource returns the default host source.
func NewGopsutilSource() *GopsutilSource {
	return &GopsutilSource{}
}

var errNoCPUSample = errors.New("host returned no cpu sample")

// CPUPercent implements HostSource.
func (GopsutilSource) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errNoCPUSample
	}
	return pcts[0], nil
}

// VirtualMemory implements HostSource.
func (GopsutilSource) VirtualMemory(ctx context.Context) (*MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &MemoryStat{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		UsedPercent: vm.UsedPercent,
	}, nil
}

// Partitions implements HostSource. Only physical devices are returned.
func (GopsutilSource) Partitions(ctx context.Context) ([]Partition, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]Partition, 0, len(parts))
	for _, p := range parts {
		out = append(out, Partition{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			FSType:     p.Fstype,
		})
	}
	return out, nil
}

// Usage implements HostSource.
func (GopsutilSource) Usage(ctx context.Context, mountpoint string) (*VolumeUsage, error) {
	u, err := disk.UsageWithContext(ctx, mountpoint)
	if err != nil {
		return nil, err
	}
	return &VolumeUsage{
		Total:       u.Total,
		Used:        u.Used,
		Free:        u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

// NetCounters implements HostSource.
func (GopsutilSource) NetCounters(ctx context.Context) ([]NetCounters, error) {
	stats, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]NetCounters, 0, len(stats))
	for _, s := range stats {
		out = append(out, NetCounters{
			Name:      s.Name,
			BytesSent: s.BytesSent,
			BytesRecv: s.BytesRecv,
		})
	}
	return out, nil
}

// Info implements HostSource.
func (GopsutilSource) Info(ctx context.Context) (*SystemInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	info := &SystemInfo{
		Platform:        hi.OS,
		PlatformRelease: hi.KernelVersion,
		PlatformVersion: hi.PlatformVersion,
		Architecture:    hi.KernelArch,
	}
	// The processor name is best effort; some virtualised hosts hide it.
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.Processor = cpus[0].ModelName
	}
	return info, nil
}
