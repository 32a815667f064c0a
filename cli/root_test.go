package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"monitor/collector"
	"monitor/query"
	"monitor/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type stubSource struct {
	cpuErr error
}

func (s *stubSource) CPUPercent(context.Context, time.Duration) (float64, error) {
	return 17.256, s.cpuErr
}

func (s *stubSource) VirtualMemory(context.Context) (*collector.MemoryStat, error) {
	return &collector.MemoryStat{Total: 8 << 30, Available: 6 << 30, Used: 2 << 30, UsedPercent: 25}, nil
}

func (s *stubSource) Partitions(context.Context) ([]collector.Partition, error) {
	return []collector.Partition{{Device: "/dev/sda1", Mountpoint: "/", FSType: "ext4"}}, nil
}

func (s *stubSource) Usage(context.Context, string) (*collector.VolumeUsage, error) {
	return &collector.VolumeUsage{Total: 100 << 30, Used: 40 << 30, Free: 60 << 30, UsedPercent: 40}, nil
}

func (s *stubSource) NetCounters(context.Context) ([]collector.NetCounters, error) {
	return []collector.NetCounters{{Name: "eth0", BytesSent: 10, BytesRecv: 20}}, nil
}

func (s *stubSource) Info(context.Context) (*collector.SystemInfo, error) {
	return &collector.SystemInfo{
		Platform:        "linux",
		PlatformRelease: "6.8.0",
		PlatformVersion: "24.04",
		Architecture:    "x86_64",
		Processor:       "Test CPU",
	}, nil
}

// newTestRoot returns a root command backed by an in-memory store and a
// stub host, writing command output to the returned buffer.
func newTestRoot(t *testing.T) (*RootCommand, *bytes.Buffer, storage.Store) {
	t.Helper()
	root := NewRootCommand()
	st := storage.NewMemory()
	root.store = st
	root.source = &stubSource{}
	root.logOut = io.Discard

	buf := &bytes.Buffer{}
	root.SetOutputWriter(buf)
	root.cmd.SetErr(io.Discard)
	return root, buf, st
}

func run(t *testing.T, root *RootCommand, args ...string) error {
	t.Helper()
	root.cmd.SetArgs(append([]string{"--db-driver", "memory"}, args...))
	return root.ExecuteContext(context.Background())
}

func seed(t *testing.T, st storage.Store, age time.Duration, cpu, mem float64) {
	t.Helper()
	_, err := st.Append(context.Background(), &storage.Snapshot{
		Timestamp:     time.Now().Add(-age),
		CPUPercent:    cpu,
		MemoryPercent: mem,
	})
	require.NoError(t, err)
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()
	require.NotNil(t, root.Command())
	assert.NotNil(t, root.OutputOptions())

	var names []string
	for _, c := range root.Command().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "collect", "list", "latest", "get", "stats", "info", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	root, _, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "--log-level", "debug", "--db-path", "/tmp/x.db", "latest"))

	cfg := root.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, time.Minute, cfg.CollectInterval)
}

func TestRootCommand_UnknownOutputFormat(t *testing.T) {
	root, _, _ := newTestRoot(t)
	err := run(t, root, "-o", "xml", "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	root, _, _ := newTestRoot(t)
	err := run(t, root, "--log-level", "loud", "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestCollectCommand(t *testing.T) {
	root, buf, st := newTestRoot(t)
	require.NoError(t, run(t, root, "collect", "-o", "json"))

	var snap collector.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.ID)
	assert.Equal(t, 17.26, snap.CPUPercent)
	assert.Equal(t, 25.0, snap.MemoryPercent)
	assert.Equal(t, uint64(10), snap.NetworkSent)
	assert.Equal(t, uint64(20), snap.NetworkRecv)
	require.Contains(t, snap.DiskUsage, "/dev/sda1")
	assert.Equal(t, "/", snap.DiskUsage["/dev/sda1"].Mountpoint)

	stored, err := st.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCollectCommand_Failure(t *testing.T) {
	root, _, st := newTestRoot(t)
	root.source = &stubSource{cpuErr: errors.New("boom")}

	err := run(t, root, "collect")
	require.Error(t, err)
	assert.ErrorIs(t, err, collector.ErrCollection)

	stored, err := st.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestListCommand(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 30*time.Hour, 10, 40)
	seed(t, st, 2*time.Hour, 20, 50)

	require.NoError(t, run(t, root, "list", "--hours", "24", "-o", "json"))

	var snaps []collector.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, 20.0, snaps[0].CPUPercent)
}

func TestListCommand_AllNewestFirst(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 30*time.Hour, 10, 40)
	seed(t, st, 2*time.Hour, 20, 50)

	require.NoError(t, run(t, root, "list", "--hours", "abc", "-o", "json"))

	var snaps []collector.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, 20.0, snaps[0].CPUPercent)
	assert.Equal(t, 10.0, snaps[1].CPUPercent)
}

func TestListCommand_Table(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, time.Hour, 12.5, 40)

	require.NoError(t, run(t, root, "list"))
	assert.Contains(t, buf.String(), "CPU%")
	assert.Contains(t, buf.String(), "12.50")
}

func TestLatestCommand_Empty(t *testing.T) {
	root, buf, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "latest"))
	assert.Equal(t, msgNoMetrics+"\n", buf.String())
}

func TestLatestCommand_EmptyJSON(t *testing.T) {
	root, buf, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "latest", "-o", "json"))
	assert.JSONEq(t, `{"message":"No metrics available"}`, buf.String())
}

func TestLatestCommand(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 2*time.Hour, 10, 40)
	seed(t, st, time.Hour, 30, 60)

	require.NoError(t, run(t, root, "latest", "-o", "yaml"))

	var snap collector.Snapshot
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, int64(2), snap.ID)
	assert.Equal(t, 30.0, snap.CPUPercent)
}

func TestGetCommand(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 2*time.Hour, 10, 40)
	seed(t, st, time.Hour, 30, 60)

	require.NoError(t, run(t, root, "get", "1", "-o", "json"))

	var snap collector.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.ID)
	assert.Equal(t, 10.0, snap.CPUPercent)
}

func TestGetCommand_Missing(t *testing.T) {
	root, buf, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "get", "7"))
	assert.Equal(t, msgNotFound+"\n", buf.String())
}

func TestGetCommand_BadID(t *testing.T) {
	root, _, _ := newTestRoot(t)
	err := run(t, root, "get", "seven")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid snapshot id")
}

func TestStatsCommand(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 3*time.Hour, 10, 40)
	seed(t, st, 2*time.Hour, 20, 50)
	seed(t, st, time.Hour, 30, 60)
	seed(t, st, 48*time.Hour, 90, 90)

	require.NoError(t, run(t, root, "stats", "-o", "json"))

	var summary query.Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summary))
	assert.Equal(t, query.DefaultStatsHours, summary.TimeRangeHours)
	assert.Equal(t, 3, summary.TotalSamples)
	assert.Equal(t, query.Aggregate{Average: 20, Maximum: 30, Minimum: 10}, summary.CPU)
	assert.Equal(t, query.Aggregate{Average: 50, Maximum: 60, Minimum: 40}, summary.Memory)
}

func TestStatsCommand_NoDataInRange(t *testing.T) {
	root, buf, st := newTestRoot(t)
	seed(t, st, 48*time.Hour, 90, 90)

	require.NoError(t, run(t, root, "stats", "--hours", "1"))
	assert.Equal(t, msgNoMetricsInRange+"\n", buf.String())
}

func TestInfoCommand(t *testing.T) {
	root, buf, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "info", "-o", "yaml"))

	var info collector.SystemInfo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, "linux", info.Platform)
	assert.Equal(t, "x86_64", info.Architecture)
	assert.Equal(t, "Test CPU", info.Processor)
}

func TestVersionCommand(t *testing.T) {
	root, buf, _ := newTestRoot(t)
	require.NoError(t, run(t, root, "version"))
	assert.Contains(t, buf.String(), "monitor version "+GetVersion())

	root, buf, _ = newTestRoot(t)
	require.NoError(t, run(t, root, "version", "-o", "json"))
	var info map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, GetVersion(), info["version"])
	assert.Equal(t, GetGitCommit(), info["gitCommit"])
	assert.Equal(t, GetBuildDate(), info["buildDate"])
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	root, _, st := newTestRoot(t)
	root.cmd.SetArgs([]string{"--db-driver", "memory", "serve", "--listen", "127.0.0.1:0", "--interval", "1h"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	// The first tick runs immediately.
	assert.Eventually(t, func() bool {
		snaps, err := st.Query(context.Background(), storage.Filter{})
		return err == nil && len(snaps) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
