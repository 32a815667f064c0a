// Package scheduler triggers collections on a fixed interval and
// persists every snapshot it gets back.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"monitor/collector"
	"monitor/storage"

	"go.uber.org/zap"
)

// Scheduler owns the collect -> append pipeline. Only one collection is
// in flight at a time: manual runs wait for their turn, ticks that find
// a collection running are skipped.
type Scheduler struct {
	collector collector.Collector
	store     storage.Store
	interval  time.Duration
	log       *zap.Logger

	running sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]chan storage.Snapshot
	nextSub int
}

// New returns a scheduler that samples every interval.
func New(c collector.Collector, store storage.Store, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		collector: c,
		store:     store,
		interval:  interval,
		log:       log,
		subs:      make(map[int]chan storage.Snapshot),
	}
}

// RunOnce collects one snapshot, appends it and returns the stored record.
func (s *Scheduler) RunOnce(ctx context.Context) (*storage.Snapshot, error) {
	s.running.Lock()
	defer s.running.Unlock()
	return s.collectAndStore(ctx)
}

func (s *Scheduler) collectAndStore(ctx context.Context) (*storage.Snapshot, error) {
	snap, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Append(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	stored := snap.WithID(id)
	s.publish(stored)
	return &stored, nil
}

// Run collects immediately and then on every tick until ctx is done.
// Failed collections are logged; they never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		s.log.Warn("previous collection still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	snap, err := s.collectAndStore(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("scheduled collection failed", zap.Error(err))
		return
	}
	s.log.Debug("scheduled collection stored",
		zap.Int64("id", snap.ID),
		zap.Float64("cpu_percent", snap.CPUPercent),
		zap.Float64("memory_percent", snap.MemoryPercent))
}

// Subscribe returns a channel receiving every snapshot stored from now on
// and a function that cancels the subscription. Slow subscribers miss
// snapshots rather than block collection.
func (s *Scheduler) Subscribe() (<-chan storage.Snapshot, func()) {
	ch := make(chan storage.Snapshot, 8)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Scheduler) publish(snap storage.Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- snap.WithID(snap.ID):
		default:
			s.log.Debug("subscriber lagging, dropping snapshot", zap.Int("subscriber", id))
		}
	}
}
