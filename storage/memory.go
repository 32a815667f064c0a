package storage

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps snapshots in process memory. It is used by tests and by
// short-lived runs that do not need persistence.
type Memory struct {
	mu     sync.RWMutex
	snaps  []Snapshot
	nextID int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Append(_ context.Context, snap *Snapshot) (int64, error) {
	if err := Validate(snap); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.snaps = append(m.snaps, snap.WithID(id))
	return id, nil
}

func (m *Memory) Query(_ context.Context, f Filter) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		if f.Since != nil && s.Timestamp.Before(*f.Since) {
			continue
		}
		out = append(out, s.WithID(s.ID))
	}
	slices.SortStableFunc(out, newestFirst)
	return out, nil
}

func (m *Memory) MostRecent(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Snapshot
	for i := range m.snaps {
		if best == nil || newestFirst(m.snaps[i], *best) < 0 {
			best = &m.snaps[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := best.WithID(best.ID)
	return &cp, nil
}

func (m *Memory) Get(_ context.Context, id int64) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// IDs are assigned in append order starting at 1.
	if id < 1 || id > int64(len(m.snaps)) {
		return nil, nil
	}
	cp := m.snaps[id-1].WithID(id)
	return &cp, nil
}

func (m *Memory) Close() error { return nil }

func newestFirst(a, b Snapshot) int {
	switch {
	case a.Timestamp.After(b.Timestamp):
		return -1
	case a.Timestamp.Before(b.Timestamp):
		return 1
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
