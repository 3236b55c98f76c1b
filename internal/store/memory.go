package store

import (
	"sync"
	"time"

	"github.com/aresgw/gateway/internal/model"
)

// Memory is the in-memory authoritative backing used when no persistent
// store is configured, matching the reference gateway's own fallback:
// same operations, same semantics, just not crash-durable.
type Memory struct {
	mu         sync.Mutex
	idempotent map[string]time.Time
	hosts      map[string]model.HostState
}

func NewMemory() *Memory {
	return &Memory{
		idempotent: make(map[string]time.Time),
		hosts:      make(map[string]model.HostState),
	}
}

func (m *Memory) Seen(eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.idempotent[eventID]
	return ok, nil
}

func (m *Memory) Mark(eventID string, firstSeenUTC time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idempotent[eventID]; !ok {
		m.idempotent[eventID] = firstSeenUTC
	}
	return nil
}

func (m *Memory) GCIdempotency(ttl time.Duration, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-ttl)
	var n int64
	for k, t := range m.idempotent {
		if t.Before(cutoff) {
			delete(m.idempotent, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetHostState(host string) (model.HostState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.hosts[host]; ok {
		return s, nil
	}
	return model.HostState{Host: host}, nil
}

func (m *Memory) UpsertHostState(state model.HostState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[state.Host] = state
	return nil
}
