package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"monitor/collector"

	"go.uber.org/zap"
)

// ErrInvalidSnapshot is returned by Append for records that break the
// structural invariants of a snapshot.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Filter narrows a Query. The zero value matches every snapshot.
type Filter struct {
	Since *time.Time // inclusive lower bound on Timestamp
}

// Store abstracts an append-only persistence back-end for snapshots.
type Store interface {
	// Append validates and persists one snapshot, returning the identifier
	// assigned to it. Each snapshot becomes visible to readers as a whole
	// or not at all.
	Append(ctx context.Context, snap *Snapshot) (int64, error)

	// Query returns the snapshots matching f, newest first. Ties on
	// Timestamp are broken by insertion order, most recent first.
	Query(ctx context.Context, f Filter) ([]Snapshot, error)

	// MostRecent returns the newest snapshot, or nil when the store is empty.
	MostRecent(ctx context.Context) (*Snapshot, error)

	// Get returns the snapshot with the given identifier, or nil when there
	// is none.
	Get(ctx context.Context, id int64) (*Snapshot, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}

// Snapshot is re-exported here so callers do not need to import
// the collector package just to call Store.Append().
type Snapshot = collector.Snapshot

// Validate checks the invariants that can be verified on a single record.
// Counters are unsigned and need no check.
func Validate(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSnapshot)
	}
	if !validPercent(snap.CPUPercent) {
		return fmt.Errorf("%w: cpu_percent %v", ErrInvalidSnapshot, snap.CPUPercent)
	}
	if !validPercent(snap.MemoryPercent) {
		return fmt.Errorf("%w: memory_percent %v", ErrInvalidSnapshot, snap.MemoryPercent)
	}
	for dev, u := range snap.DiskUsage {
		if dev == "" {
			return fmt.Errorf("%w: disk entry without device", ErrInvalidSnapshot)
		}
		if !validPercent(u.Percent) {
			return fmt.Errorf("%w: disk %s percent %v", ErrInvalidSnapshot, dev, u.Percent)
		}
	}
	return nil
}

func validPercent(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Supported drivers for Open.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the store selected by driver. path is ignored by the
// memory driver.
func Open(driver, path string, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(path, log)
	case DriverMemory:
		log.Warn("using in-memory store, snapshots will not survive a restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
