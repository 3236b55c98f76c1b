// Package admission implements the ordered pre-correlation gate:
// signature verification, parse/schema validation, replay window,
// idempotency check, rate limit, then marking the event idempotent.
// Grounded on the teacher's security.SecurityManager.ValidateHandshake
// (an ordered chain of checks) and webhooks.Registry's HMAC signing
// convention, adapted to verification.
package admission

import (
	"context"
	"time"

	"github.com/aresgw/gateway/internal/errs"
	"github.com/aresgw/gateway/internal/model"
)

// IdempotencyStore is satisfied by both store.Store and store.Memory.
type IdempotencyStore interface {
	Seen(eventID string) (bool, error)
	Mark(eventID string, firstSeenUTC time.Time) error
	GCIdempotency(ttl time.Duration, now time.Time) (int64, error)
}

// Config holds the chain's tunables. Defaults match spec.md §6.
type Config struct {
	SharedSecret       string
	ReplayWindow       time.Duration
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReplayWindow:       120 * time.Second,
		RateLimitPerMinute: 300,
		IdempotencyTTL:     7 * 24 * time.Hour,
	}
}

// Outcome is the result of a successful admission: the normalised event
// and the raw body's SHA-256 hash for the audit trail.
type Outcome struct {
	Event    model.EventRecord
	BodyHash string
}

// Chain runs the ordered admission steps over a single in-memory
// rate-limiter; Redis-backed rate limiting is wired in by the caller
// when configured (see Chain.redisLimiter).
type Chain struct {
	cfg          Config
	idempotency  IdempotencyStore
	rateLimiter  *RateLimiter
	redisLimiter *RedisRateLimiter
}

func NewChain(cfg Config, idempotency IdempotencyStore, redisLimiter *RedisRateLimiter) *Chain {
	return &Chain{
		cfg:          cfg,
		idempotency:  idempotency,
		rateLimiter:  NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		redisLimiter: redisLimiter,
	}
}

// Admit runs the full chain against raw request bytes and the inbound
// signature header, with now as the server clock reference. On any
// failure it returns the typed *errs.Error from the step that rejected
// it (the body hash is always returned so the caller can audit the
// rejection even on failure).
func (c *Chain) Admit(ctx context.Context, raw []byte, sigHeader string, now time.Time) (Outcome, *errs.Error) {
	bodyHash := SHA256Hex(raw)

	if c.cfg.SharedSecret == "" {
		return Outcome{BodyHash: bodyHash}, errs.ConfigError("missing_shared_secret")
	}

	if err := verifySignature([]byte(c.cfg.SharedSecret), raw, sigHeader); err != nil {
		return Outcome{BodyHash: bodyHash}, err
	}

	event, err := parseAndValidate(raw)
	if err != nil {
		return Outcome{BodyHash: bodyHash}, err
	}

	delta := now.Sub(event.SentTimeUTC)
	if delta < 0 {
		delta = -delta
	}
	if delta > c.cfg.ReplayWindow {
		return Outcome{BodyHash: bodyHash}, errs.ReplayError("replay_window_exceeded")
	}

	seen, serr := c.idempotency.Seen(event.EventID)
	if serr != nil {
		return Outcome{BodyHash: bodyHash}, errs.PersistenceErrorf("persistent_store_read_failed", serr)
	}
	if seen {
		return Outcome{BodyHash: bodyHash}, errs.DuplicateError("duplicate_event_id")
	}

	allowed, rerr := c.allowRate(ctx, event.Host, now)
	if rerr != nil {
		return Outcome{BodyHash: bodyHash}, errs.PersistenceErrorf("rate_limit_backend_failed", rerr)
	}
	if !allowed {
		return Outcome{BodyHash: bodyHash}, errs.RateLimitError("rate_limited")
	}

	event.ReceivedTimeUTC = now
	if merr := c.idempotency.Mark(event.EventID, now); merr != nil {
		return Outcome{BodyHash: bodyHash}, errs.PersistenceErrorf("persistent_store_write_failed", merr)
	}

	return Outcome{Event: event, BodyHash: bodyHash}, nil
}

func (c *Chain) allowRate(ctx context.Context, host string, now time.Time) (bool, error) {
	if c.redisLimiter != nil {
		return c.redisLimiter.Allow(ctx, host)
	}
	return c.rateLimiter.Allow(host, now), nil
}

// GC opportunistically garbage-collects idempotency entries older than
// the configured TTL.
func (c *Chain) GC(now time.Time) (int64, error) {
	return c.idempotency.GCIdempotency(c.cfg.IdempotencyTTL, now)
}

// CleanupRateLimiter evicts idle rate-limit windows; intended to be run
// periodically by the caller's background ticker.
func (c *Chain) CleanupRateLimiter(now time.Time) {
	c.rateLimiter.Cleanup(now)
}
