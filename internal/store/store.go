// Package store implements the durable persistence layer for the
// idempotency set and host policy table. It opens a local SQLite
// database in WAL mode (crash-consistent on commit, concurrent readers,
// serialised writers), matching the reference implementation's own
// choice of a local embedded database for a local-first SIEM. Writes
// are wrapped in a circuit breaker, adapted from the teacher's
// resilience package, so a failing disk surfaces promptly as a
// PersistenceError instead of hanging past the request timeout.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aresgw/gateway/internal/circuitbreaker"
	"github.com/aresgw/gateway/internal/errs"
	"github.com/aresgw/gateway/internal/model"
)

// Store is the persistent backing for idempotency and host_policy.
// A nil *Store is never constructed; when no persistent store is
// configured, callers use the in-memory Memory type instead, per
// spec.md §4.6's "in-memory structures are authoritative" fallback.
type Store struct {
	db      *sql.DB
	breaker *circuitbreaker.CircuitBreaker
}

// Open creates (if needed) and opens the SQLite database at path,
// applying WAL journaling and NORMAL synchronous mode, then ensures the
// two logical tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, errs.Wrap(errs.CodeConfig, "unreadable_persistent_store", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.CodeConfig, "unreadable_persistent_store", err)
	}

	s := &Store{db: db, breaker: circuitbreaker.New(circuitbreaker.StoreBreakerConfig())}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.exec(`
		CREATE TABLE IF NOT EXISTS idempotency (
			event_id TEXT PRIMARY KEY,
			first_seen_utc TEXT NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.exec(`
		CREATE TABLE IF NOT EXISTS host_policy (
			host TEXT PRIMARY KEY,
			cooldown_until_utc TEXT,
			quarantine INTEGER NOT NULL DEFAULT 0,
			updated_utc TEXT NOT NULL
		)`)
	return err
}

func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.Exec(query, args...)
	})
	if err != nil {
		return nil, errs.PersistenceErrorf("persistent_store_write_failed", err)
	}
	return v.(sql.Result), nil
}

func (s *Store) queryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(query, args...)
}

func (s *Store) Close() error { return s.db.Close() }

// Seen reports whether event_id has already been recorded.
func (s *Store) Seen(eventID string) (bool, error) {
	var dummy int
	err := s.queryRow(`SELECT 1 FROM idempotency WHERE event_id = ? LIMIT 1`, eventID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.PersistenceErrorf("persistent_store_read_failed", err)
	}
	return true, nil
}

// Mark records event_id as seen, insert-if-absent.
func (s *Store) Mark(eventID string, firstSeenUTC time.Time) error {
	_, err := s.exec(`INSERT OR IGNORE INTO idempotency(event_id, first_seen_utc) VALUES(?, ?)`,
		eventID, firstSeenUTC.Format(time.RFC3339Nano))
	return err
}

// GCIdempotency deletes idempotency rows older than ttl, returning the
// count deleted.
func (s *Store) GCIdempotency(ttl time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-ttl).Format(time.RFC3339Nano)
	res, err := s.exec(`DELETE FROM idempotency WHERE first_seen_utc < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetHostState returns the persisted state for host, or a fresh Normal
// state if none exists yet.
func (s *Store) GetHostState(host string) (model.HostState, error) {
	var cooldown sql.NullString
	var quarantine int
	var updated string
	err := s.queryRow(`SELECT cooldown_until_utc, quarantine, updated_utc FROM host_policy WHERE host = ?`, host).
		Scan(&cooldown, &quarantine, &updated)
	if err == sql.ErrNoRows {
		return model.HostState{Host: host}, nil
	}
	if err != nil {
		return model.HostState{}, errs.PersistenceErrorf("persistent_store_read_failed", err)
	}

	state := model.HostState{Host: host, Quarantined: quarantine != 0}
	if cooldown.Valid && cooldown.String != "" {
		if t, perr := time.Parse(time.RFC3339Nano, cooldown.String); perr == nil {
			state.CooldownUntilUTC = &t
		}
	}
	if t, perr := time.Parse(time.RFC3339Nano, updated); perr == nil {
		state.UpdatedUTC = t
	}
	return state, nil
}

// UpsertHostState writes state through to the host_policy table.
func (s *Store) UpsertHostState(state model.HostState) error {
	var cooldown any
	if state.CooldownUntilUTC != nil {
		cooldown = state.CooldownUntilUTC.Format(time.RFC3339Nano)
	}
	quarantine := 0
	if state.Quarantined {
		quarantine = 1
	}
	_, err := s.exec(`
		INSERT INTO host_policy(host, cooldown_until_utc, quarantine, updated_utc)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			cooldown_until_utc = excluded.cooldown_until_utc,
			quarantine = excluded.quarantine,
			updated_utc = excluded.updated_utc`,
		state.Host, cooldown, quarantine, state.UpdatedUTC.Format(time.RFC3339Nano))
	return err
}
