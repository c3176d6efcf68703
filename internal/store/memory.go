package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tanq16/vdl/internal/types"
)

// Memory keeps records in a map. It backs tests and the "memory" driver.
type Memory struct {
	mu      sync.RWMutex
	records map[string]types.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]types.Record)}
}

func (m *Memory) GetAll(_ context.Context) ([]types.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task.CreatedAt.Equal(out[j].Task.CreatedAt) {
			return out[i].Task.ID < out[j].Task.ID
		}
		return out[i].Task.CreatedAt.Before(out[j].Task.CreatedAt)
	})
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (types.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return types.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Put(_ context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Snapshot.TaskID = rec.Task.ID
	m.records[rec.Task.ID] = rec.Clone()
	return nil
}

func (m *Memory) Save(_ context.Context, snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[snap.TaskID]
	if !ok {
		return ErrNotFound
	}
	if !accepts(rec.Snapshot, snap) {
		return nil
	}
	rec.Snapshot = snap
	m.records[snap.TaskID] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) Close() error { return nil }
