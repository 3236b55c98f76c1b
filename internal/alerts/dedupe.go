package alerts

import (
	"sync"
	"time"
)

// dedupeKey identifies one (rule, host, user, src_ip) suppression bucket.
type dedupeKey struct {
	rule   string
	host   string
	user   string
	srcIP  string
}

// Deduper implements the "leaky bucket of size one" suppression rule
// from spec.md §9(c): on first-seen of a key it admits and records the
// timestamp; any further admit within ttl is suppressed; once ttl
// elapses, exactly one more admit succeeds and the timestamp resets.
type Deduper struct {
	mu       sync.Mutex
	lastEmit map[dedupeKey]time.Time
	ttl      time.Duration
}

func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{lastEmit: make(map[dedupeKey]time.Time), ttl: ttl}
}

// ShouldEmit returns true and records now as the key's last-emit instant
// iff there was no prior emit, or the prior emit is at least ttl old.
func (d *Deduper) ShouldEmit(rule, host, user, srcIP string, now time.Time) bool {
	key := dedupeKey{rule: rule, host: host, user: user, srcIP: srcIP}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastEmit[key]
	if ok && now.Sub(last) < d.ttl {
		return false
	}
	d.lastEmit[key] = now
	return true
}
