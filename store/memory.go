package store

import (
	"context"
	"sync"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/slices"
)

// MemoryStore keeps finished runs in memory, in the order they were saved
type MemoryStore struct {
	mu      sync.RWMutex
	records []types.RunRecord
}

var _ types.ResultStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]types.RunRecord, 0)}
}

func (m *MemoryStore) SaveRun(_ context.Context, record types.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.records, func(r types.RunRecord) bool { return r.ID == record.ID })
	if i >= 0 {
		m.records[i] = record
		return nil
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (types.RunRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return types.RunRecord{}, false, nil
}

// Records returns the saved runs of an experiment
func (m *MemoryStore) Records(experiment string) []types.RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.RunRecord, 0)
	for _, r := range m.records {
		if r.Experiment == experiment {
			out = append(out, r)
		}
	}
	return out
}
