package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultWindow is the CPU sampling window. A zero-length sample is
	// unreliable on most platforms, so every collection blocks this long.
	DefaultWindow = time.Second
	// DefaultTimeout bounds a whole collection, window included.
	DefaultTimeout = 10 * time.Second
)

// ErrCollection matches every *CollectionError via errors.Is.
var ErrCollection = errors.New("error collecting system metrics")

// ErrReadStalled is wrapped when an earlier host read that timed out has
// not returned yet.
var ErrReadStalled = errors.New("previous host read still running")

// states of one background read
const (
	readRunning int32 = iota
	readDone
	readAbandoned
)

// CollectionError reports a failure that prevented a well-formed snapshot
// from being assembled. No partial snapshot accompanies it.
type CollectionError struct {
	Stage string // cpu, memory, disk, network or timeout
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCollection, e.Stage, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCollection.
func (e *CollectionError) Is(target error) bool { return target == ErrCollection }

// Collector is the public contract any snapshot source must satisfy.
type Collector interface {
	// Collect reads the host state and returns a new snapshot stamped
	// with the moment the data was retrieved. It never writes anywhere.
	Collect(ctx context.Context) (*Snapshot, error)
}

// HostCollector implements Collector on top of a HostSource.
// It keeps no mutable state and may be used from several goroutines.
type HostCollector struct {
	Source  HostSource    // injected for testability
	Window  time.Duration // CPU sampling window (0 -> DefaultWindow)
	Timeout time.Duration // whole collection bound (0 -> DefaultTimeout)
	Log     *zap.Logger
	Now     func() time.Time // optional, defaults to time.Now

	stalled atomic.Int32 // abandoned reads that have not returned
}

// NewHostCollector returns a collector reading from src.
func NewHostCollector(src HostSource, log *zap.Logger) *HostCollector {
	if log == nil {
		log = zap.NewNop()
	}
	return &HostCollector{
		Source:  src,
		Window:  DefaultWindow,
		Timeout: DefaultTimeout,
		Log:     log,
	}
}

// Collect implements the Collector interface.
//
// Host calls are not guaranteed to honour ctx, so the read runs in its own
// goroutine and Collect gives up once the timeout expires. While such an
// abandoned read is still blocked, Collect fails fast with ErrReadStalled
// instead of starting another one.
func (c *HostCollector) Collect(ctx context.Context) (*Snapshot, error) {
	if n := c.stalled.Load(); n > 0 {
		collectFailures.Inc()
		c.Log.Warn("skipping collection, host read still blocked", zap.Int32("stalled", n))
		return nil, &CollectionError{Stage: "timeout", Err: ErrReadStalled}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		snap *Snapshot
		err  error
	}
	// buffered so the reader never blocks on send after a timeout
	done := make(chan result, 1)
	var state atomic.Int32
	start := time.Now()
	go func() {
		s, err := c.collect(ctx)
		done <- result{snap: s, err: err}
		if !state.CompareAndSwap(readRunning, readDone) {
			c.stalled.Add(-1)
			c.Log.Info("stalled host read returned", zap.Duration("after", time.Since(start)))
		}
	}()

	select {
	case r := <-done:
		collectDuration.Observe(time.Since(start).Seconds())
		if r.err != nil {
			collectFailures.Inc()
			return nil, r.err
		}
		lastCPUPercent.Set(r.snap.CPUPercent)
		lastMemoryPercent.Set(r.snap.MemoryPercent)
		return r.snap, nil
	case <-ctx.Done():
		collectFailures.Inc()
		c.stalled.Add(1)
		if !state.CompareAndSwap(readRunning, readAbandoned) {
			// finished in the meantime
			c.stalled.Add(-1)
		}
		return nil, &CollectionError{Stage: "timeout", Err: ctx.Err()}
	}
}

func (c *HostCollector) collect(ctx context.Context) (*Snapshot, error) {
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}

	cpuPct, err := c.Source.CPUPercent(ctx, window)
	if err != nil {
		return nil, &CollectionError{Stage: "cpu", Err: err}
	}

	vm, err := c.Source.VirtualMemory(ctx)
	if err != nil {
		return nil, &CollectionError{Stage: "memory", Err: err}
	}
	if vm == nil {
		return nil, &CollectionError{Stage: "memory", Err: errors.New("host returned no memory counters")}
	}

	disks, err := c.diskUsage(ctx)
	if err != nil {
		return nil, &CollectionError{Stage: "disk", Err: err}
	}

	counters, err := c.Source.NetCounters(ctx)
	if err != nil {
		return nil, &CollectionError{Stage: "network", Err: err}
	}
	var sent, recv uint64
	for _, nc := range counters {
		sent += nc.BytesSent
		recv += nc.BytesRecv
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	return &Snapshot{
		Timestamp:       now(),
		CPUPercent:      round2(cpuPct),
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
		MemoryUsed:      vm.Used,
		MemoryPercent:   round2(vm.UsedPercent),
		DiskUsage:       disks,
		NetworkSent:     sent,
		NetworkRecv:     recv,
	}, nil
}

// volumeResult is the outcome of reading a single volume.
type volumeResult struct {
	device string
	usage  DiskUsage
	err    error
}

func (c *HostCollector) readVolume(ctx context.Context, p Partition) volumeResult {
	u, err := c.Source.Usage(ctx, p.Mountpoint)
	if err != nil {
		return volumeResult{device: p.Device, err: err}
	}
	if u == nil {
		return volumeResult{device: p.Device, err: errors.New("no usage reported")}
	}
	return volumeResult{
		device: p.Device,
		usage: DiskUsage{
			Mountpoint: p.Mountpoint,
			Total:      u.Total,
			Used:       u.Used,
			Free:       u.Free,
			Percent:    u.UsedPercent,
			FSType:     p.FSType,
		},
	}
}

// diskUsage enumerates volumes and reads each one. Only a failed
// enumeration is an error; unreadable volumes are left out.
func (c *HostCollector) diskUsage(ctx context.Context) (map[string]DiskUsage, error) {
	parts, err := c.Source.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	disks := make(map[string]DiskUsage, len(parts))
	for _, p := range parts {
		// CD-ROM drives and other mounts without a filesystem
		if p.FSType == "" {
			continue
		}
		r := c.readVolume(ctx, p)
		if r.err != nil {
			skippedVolumes.Inc()
			c.Log.Debug("skipping unreadable volume",
				zap.String("device", p.Device),
				zap.String("mountpoint", p.Mountpoint),
				zap.Error(r.err))
			continue
		}
		disks[r.device] = r.usage
	}
	return disks, nil
}

// SystemInfo returns static information about the host.
func (c *HostCollector) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	info, err := c.Source.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("read system info: %w", err)
	}
	return info, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
