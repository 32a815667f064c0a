package collector

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu sync.Mutex

	cpu       float64
	cpuErr    error
	cpuBlock  chan struct{}
	gotWindow time.Duration

	mem    *MemoryStat
	memErr error

	parts    []Partition
	partsErr error
	usage    map[string]*VolumeUsage
	usageErr map[string]error

	net    []NetCounters
	netErr error

	info    *SystemInfo
	infoErr error
}

func (f *fakeSource) CPUPercent(_ context.Context, window time.Duration) (float64, error) {
	f.mu.Lock()
	f.gotWindow = window
	block := f.cpuBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.cpu, f.cpuErr
}

func (f *fakeSource) VirtualMemory(context.Context) (*MemoryStat, error) {
	return f.mem, f.memErr
}

func (f *fakeSource) Partitions(context.Context) ([]Partition, error) {
	return f.parts, f.partsErr
}

func (f *fakeSource) Usage(_ context.Context, mountpoint string) (*VolumeUsage, error) {
	if err := f.usageErr[mountpoint]; err != nil {
		return nil, err
	}
	return f.usage[mountpoint], nil
}

func (f *fakeSource) NetCounters(context.Context) ([]NetCounters, error) {
	return f.net, f.netErr
}

func (f *fakeSource) Info(context.Context) (*SystemInfo, error) {
	return f.info, f.infoErr
}

func healthySource() *fakeSource {
	return &fakeSource{
		cpu: 12.3456,
		mem: &MemoryStat{
			Total:       16 << 30,
			Available:   6 << 30,
			Used:        10 << 30,
			UsedPercent: 62.5049,
		},
		parts: []Partition{
			{Device: "/dev/sda1", Mountpoint: "/", FSType: "ext4"},
			{Device: "/dev/sda2", Mountpoint: "/home", FSType: "ext4"},
			{Device: "/dev/sdb1", Mountpoint: "/data", FSType: "xfs"},
		},
		usage: map[string]*VolumeUsage{
			"/":     {Total: 100, Used: 40, Free: 60, UsedPercent: 40},
			"/home": {Total: 200, Used: 50, Free: 150, UsedPercent: 25},
			"/data": {Total: 400, Used: 400, Free: 0, UsedPercent: 100},
		},
		net: []NetCounters{
			{Name: "lo", BytesSent: 100, BytesRecv: 100},
			{Name: "eth0", BytesSent: 1000, BytesRecv: 5000},
		},
	}
}

func newTestCollector(src HostSource) *HostCollector {
	c := NewHostCollector(src, zap.NewNop())
	c.Window = 10 * time.Millisecond
	return c
}

func TestCollect_AssemblesSnapshot(t *testing.T) {
	src := healthySource()
	c := newTestCollector(src)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return fixed }

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, fixed, snap.Timestamp)
	assert.Equal(t, 12.35, snap.CPUPercent)
	assert.Equal(t, uint64(16<<30), snap.MemoryTotal)
	assert.Equal(t, uint64(6<<30), snap.MemoryAvailable)
	assert.Equal(t, uint64(10<<30), snap.MemoryUsed)
	assert.Equal(t, 62.5, snap.MemoryPercent)
	assert.Equal(t, uint64(1100), snap.NetworkSent)
	assert.Equal(t, uint64(5100), snap.NetworkRecv)
	assert.Zero(t, snap.ID)

	require.Len(t, snap.DiskUsage, 3)
	assert.Equal(t, DiskUsage{
		Mountpoint: "/home", Total: 200, Used: 50, Free: 150, Percent: 25, FSType: "ext4",
	}, snap.DiskUsage["/dev/sda2"])

	assert.Equal(t, 10*time.Millisecond, src.gotWindow)
}

func TestCollect_SkipsUnreadableVolume(t *testing.T) {
	src := healthySource()
	src.usageErr = map[string]error{"/home": fs.ErrPermission}

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.DiskUsage, 2)
	assert.Contains(t, snap.DiskUsage, "/dev/sda1")
	assert.Contains(t, snap.DiskUsage, "/dev/sdb1")
	assert.NotContains(t, snap.DiskUsage, "/dev/sda2")
}

func TestCollect_SkipsVolumesWithoutFilesystem(t *testing.T) {
	src := healthySource()
	src.parts = append(src.parts, Partition{Device: "/dev/sr0", Mountpoint: "/media/cdrom"})

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, snap.DiskUsage, "/dev/sr0")
	assert.Len(t, snap.DiskUsage, 3)
}

func TestCollect_AllVolumesUnreadable(t *testing.T) {
	src := healthySource()
	src.usageErr = map[string]error{
		"/":     errors.New("i/o error"),
		"/home": fs.ErrPermission,
		"/data": fs.ErrPermission,
	}

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.DiskUsage)
	assert.Empty(t, snap.DiskUsage)
}

func TestCollect_NoNetworkCounters(t *testing.T) {
	src := healthySource()
	src.net = nil

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.NetworkSent)
	assert.Zero(t, snap.NetworkRecv)
}

func TestCollect_CPUBurstPassesThrough(t *testing.T) {
	src := healthySource()
	src.cpu = 103.2

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 103.2, snap.CPUPercent)
}

func TestCollect_MemoryQuirksPassThrough(t *testing.T) {
	src := healthySource()
	src.mem = &MemoryStat{Total: 100, Available: 150, Used: 120, UsedPercent: 80}

	snap, err := newTestCollector(src).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(150), snap.MemoryAvailable)
	assert.Equal(t, uint64(120), snap.MemoryUsed)
}

func TestCollect_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		mutate func(*fakeSource)
		stage  string
	}{
		{"cpu", func(f *fakeSource) { f.cpuErr = boom }, "cpu"},
		{"memory", func(f *fakeSource) { f.memErr = boom }, "memory"},
		{"memory nil", func(f *fakeSource) { f.mem = nil }, "memory"},
		{"partitions", func(f *fakeSource) { f.partsErr = boom }, "disk"},
		{"network", func(f *fakeSource) { f.netErr = boom }, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := healthySource()
			tt.mutate(src)

			snap, err := newTestCollector(src).Collect(context.Background())
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrCollection)

			var ce *CollectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.stage, ce.Stage)
			if tt.name != "memory nil" {
				assert.ErrorIs(t, err, boom)
			}
		})
	}
}

func TestCollect_Timeout(t *testing.T) {
	src := healthySource()
	src.cpuBlock = make(chan struct{})
	t.Cleanup(func() { close(src.cpuBlock) })

	c := newTestCollector(src)
	c.Timeout = 50 * time.Millisecond

	snap, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrCollection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCollect_StalledReadIsNotDuplicated(t *testing.T) {
	src := healthySource()
	src.cpuBlock = make(chan struct{})

	c := newTestCollector(src)
	c.Timeout = 50 * time.Millisecond

	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The first read is still blocked; no second one may start.
	start := time.Now()
	snap, err := c.Collect(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrCollection)
	assert.ErrorIs(t, err, ErrReadStalled)
	assert.Less(t, time.Since(start), c.Timeout)

	close(src.cpuBlock)
	assert.Eventually(t, func() bool {
		_, err := c.Collect(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.stalled.Load())
}

func TestCollect_Concurrent(t *testing.T) {
	c := newTestCollector(healthySource())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Collect(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSystemInfo(t *testing.T) {
	src := healthySource()
	src.info = &SystemInfo{Platform: "linux", Architecture: "x86_64"}

	info, err := newTestCollector(src).SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "linux", info.Platform)

	src.infoErr = errors.New("no host")
	_, err = newTestCollector(src).SystemInfo(context.Background())
	assert.Error(t, err)
}

func TestSnapshotWithID(t *testing.T) {
	orig := Snapshot{DiskUsage: map[string]DiskUsage{"/dev/sda1": {Total: 1}}}
	cp := orig.WithID(7)

	cp.DiskUsage["/dev/sdz"] = DiskUsage{}
	assert.Equal(t, int64(7), cp.ID)
	assert.Zero(t, orig.ID)
	assert.Len(t, orig.DiskUsage, 1)
}
