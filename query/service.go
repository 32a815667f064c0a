// Package query answers read requests over the persisted snapshots:
// history listing, the most recent sample and windowed statistics.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"monitor/storage"

	"go.uber.org/zap"
)

// DefaultStatsHours is the window used by Stats when none (or garbage) is given.
const DefaultStatsHours = 24

var (
	// ErrNoData reports that there is nothing to return. It is an
	// outcome, not a failure.
	ErrNoData = errors.New("no metrics available")
	// ErrNoDataInRange is ErrNoData for a window with no samples.
	ErrNoDataInRange = fmt.Errorf("%w for the specified time range", ErrNoData)
)

// Aggregate holds min/max/mean over one field, rounded to 2 decimals.
type Aggregate struct {
	Average float64 `json:"average" yaml:"average"`
	Maximum float64 `json:"maximum" yaml:"maximum"`
	Minimum float64 `json:"minimum" yaml:"minimum"`
}

// Summary is computed fresh on every Stats call and never stored.
type Summary struct {
	TimeRangeHours int       `json:"time_range_hours" yaml:"time_range_hours"`
	TotalSamples   int       `json:"total_samples" yaml:"total_samples"`
	CPU            Aggregate `json:"cpu" yaml:"cpu"`
	Memory         Aggregate `json:"memory" yaml:"memory"`
}

// Service is stateless; every call is a pure function of the store
// contents and the arguments.
type Service struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService returns a Service reading from store.
func NewService(store storage.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// ParseHours parses a time range given in hours, ignoring surrounding
// whitespace. ok is false for empty or non-numeric input. Negative values
// are valid and put the window start in the future.
func ParseHours(raw string) (hours int, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	h, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return h, true
}

func (s *Service) since(hours int) time.Time {
	return s.now().Add(-time.Duration(hours) * time.Hour)
}

// List returns snapshots newest first. When hours parses, only snapshots
// from the last hours are returned; otherwise nothing is filtered out.
func (s *Service) List(ctx context.Context, hours string) ([]storage.Snapshot, error) {
	var f storage.Filter
	if h, ok := ParseHours(hours); ok {
		since := s.since(h)
		f.Since = &since
	} else if hours != "" {
		s.log.Debug("ignoring invalid time range", zap.String("hours", hours))
	}

	snaps, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Latest returns the most recent snapshot or ErrNoData.
func (s *Service) Latest(ctx context.Context) (*storage.Snapshot, error) {
	snap, err := s.store.MostRecent(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, ErrNoData
	}
	return snap, nil
}

// Get returns the snapshot stored under id or ErrNoData.
func (s *Service) Get(ctx context.Context, id int64) (*storage.Snapshot, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	if snap == nil {
		return nil, ErrNoData
	}
	return snap, nil
}

// Stats aggregates CPU and memory utilization over the last hours
// (DefaultStatsHours when hours does not parse). An empty window yields
// ErrNoDataInRange.
func (s *Service) Stats(ctx context.Context, hours string) (*Summary, error) {
	h, ok := ParseHours(hours)
	if !ok {
		if hours != "" {
			s.log.Debug("ignoring invalid time range", zap.String("hours", hours))
		}
		h = DefaultStatsHours
	}

	since := s.since(h)
	snaps, err := s.store.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	if len(snaps) == 0 {
		return nil, ErrNoDataInRange
	}

	cpu := make([]float64, len(snaps))
	memory := make([]float64, len(snaps))
	for i, snap := range snaps {
		cpu[i] = snap.CPUPercent
		memory[i] = snap.MemoryPercent
	}

	return &Summary{
		TimeRangeHours: h,
		TotalSamples:   len(snaps),
		CPU:            aggregate(cpu),
		Memory:         aggregate(memory),
	}, nil
}

// aggregate returns zeros for an empty input.
func aggregate(values []float64) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	sum, hi, lo := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	return Aggregate{
		Average: round2(sum / float64(len(values))),
		Maximum: round2(hi),
		Minimum: round2(lo),
	}
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
