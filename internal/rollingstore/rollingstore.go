// Package rollingstore keeps a bounded, time-windowed history of recent
// events per host in memory, so the correlator can evaluate sliding-
// window rules without touching the persistent store.
package rollingstore

import (
	"sync"
	"time"

	"github.com/aresgw/gateway/internal/model"
)

// hostHistory is the per-host bucket of recent events, guarded by its
// own mutex so hosts never contend with each other.
type hostHistory struct {
	mu     sync.Mutex
	events []model.EventRecord
}

// Store is a sharded-by-host rolling window of recent events. Each host
// is trimmed to events received within window of the latest add/read,
// matching the teacher corpus's per-key-mutex-behind-a-map idiom.
type Store struct {
	window time.Duration

	mu     sync.RWMutex
	hosts  map[string]*hostHistory
}

func New(window time.Duration) *Store {
	return &Store{
		window: window,
		hosts:  make(map[string]*hostHistory),
	}
}

func (s *Store) histFor(host string) *hostHistory {
	s.mu.RLock()
	h, ok := s.hosts[host]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.hosts[host]; ok {
		return h
	}
	h = &hostHistory{}
	s.hosts[host] = h
	return h
}

// Add appends an event to its host's history and trims anything now
// outside the window, measured against the event's own received time.
func (s *Store) Add(ev model.EventRecord) {
	h := s.histFor(ev.Host)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)
	h.events = trim(h.events, ev.ReceivedTimeUTC, s.window)
}

// GetRecent returns the events kept for host, trimmed against now
// before being returned so callers never see stale tail entries even if
// no Add has happened recently.
func (s *Store) GetRecent(host string, now time.Time) []model.EventRecord {
	h := s.histFor(host)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = trim(h.events, now, s.window)

	out := make([]model.EventRecord, len(h.events))
	copy(out, h.events)
	return out
}

func trim(events []model.EventRecord, now time.Time, window time.Duration) []model.EventRecord {
	cutoff := now.Add(-window)
	i := 0
	for i < len(events) && events[i].ReceivedTimeUTC.Before(cutoff) {
		i++
	}
	if i == 0 {
		return events
	}
	remaining := make([]model.EventRecord, len(events)-i)
	copy(remaining, events[i:])
	return remaining
}
