package repository

import (
	"context"
	"sort"
	"sync"
)

// MemorySetStore is a process-local SetStore used when REDIS_URL is unset.
// Queued orphans are lost on restart, so it is meant for development only.
type MemorySetStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func NewMemorySetStore() *MemorySetStore {
	return &MemorySetStore{sets: make(map[string]map[string]struct{})}
}

func (m *MemorySetStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemorySetStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *MemorySetStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}
