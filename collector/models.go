package collector

import "time"

// DiskUsage holds usage figures for a single mounted volume.
type DiskUsage struct {
	Mountpoint string  `json:"mountpoint" yaml:"mountpoint"`
	Total      uint64  `json:"total" yaml:"total"`     // bytes
	Used       uint64  `json:"used" yaml:"used"`       // bytes
	Free       uint64  `json:"free" yaml:"free"`       // bytes
	Percent    float64 `json:"percent" yaml:"percent"` // as reported by the host
	FSType     string  `json:"fstype" yaml:"fstype"`   // e.g. "ext4", "NTFS"
}

// Snapshot is the result of a single collection cycle.
// It is created once by a Collector and never mutated afterwards.
type Snapshot struct {
	ID        int64     `json:"id" yaml:"id"` // assigned by the store on append
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`

	MemoryTotal     uint64  `json:"memory_total" yaml:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available" yaml:"memory_available"`
	MemoryUsed      uint64  `json:"memory_used" yaml:"memory_used"`
	MemoryPercent   float64 `json:"memory_percent" yaml:"memory_percent"`

	// DiskUsage is keyed by device identifier (e.g. "/dev/sda1" or "C:").
	DiskUsage map[string]DiskUsage `json:"disk_usage" yaml:"disk_usage"`

	// Cumulative byte counters since boot, summed across all interfaces.
	NetworkSent uint64 `json:"network_sent" yaml:"network_sent"`
	NetworkRecv uint64 `json:"network_recv" yaml:"network_recv"`
}

// WithID returns a copy of the snapshot carrying the given store identifier.
// The disk map is copied too so the original stays untouched.
func (s Snapshot) WithID(id int64) Snapshot {
	s.ID = id
	if s.DiskUsage != nil {
		disks := make(map[string]DiskUsage, len(s.DiskUsage))
		for dev, u := range s.DiskUsage {
			disks[dev] = u
		}
		s.DiskUsage = disks
	}
	return s
}

// SystemInfo describes the host the collector runs on.
type SystemInfo struct {
	Platform        string `json:"platform" yaml:"platform"`                 // e.g. "linux", "windows"
	PlatformRelease string `json:"platform_release" yaml:"platform_release"` // kernel version
	PlatformVersion string `json:"platform_version" yaml:"platform_version"`
	Architecture    string `json:"architecture" yaml:"architecture"`
	Processor       string `json:"processor" yaml:"processor"`
}
