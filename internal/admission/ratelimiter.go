package admission

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed by host. Adapted from the
// teacher's middleware.RateLimiter: the key's window is looked up under
// a read lock first, and every count update or window rotation then
// happens under the write lock.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	limit   int
	window  time.Duration
}

type window struct {
	start time.Time
	count int
}

func NewRateLimiter(limit int, windowSize time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
	}
}

// Allow reports whether key may proceed under the fixed-window limit,
// as of now.
func (r *RateLimiter) Allow(key string, now time.Time) bool {
	r.mu.RLock()
	w, ok := r.windows[key]
	r.mu.RUnlock()

	if ok && now.Sub(w.start) < r.window {
		r.mu.Lock()
		defer r.mu.Unlock()
		// Re-check after acquiring the write lock in case another
		// goroutine rotated the window first.
		w, ok = r.windows[key]
		if ok && now.Sub(w.start) < r.window {
			if w.count >= r.limit {
				return false
			}
			w.count++
			return true
		}
		r.windows[key] = &window{start: now, count: 1}
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[key] = &window{start: now, count: 1}
	return true
}

// Cleanup evicts windows that have been idle for more than 2x the
// window size, bounding memory for hosts that stop sending events.
func (r *RateLimiter) Cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, w := range r.windows {
		if now.Sub(w.start) > 2*r.window {
			delete(r.windows, k)
		}
	}
}

// RedisRateLimiter backs the same fixed-window contract with Redis
// INCR/EXPIRE, so the counter survives process restarts. Adapted from
// the teacher's infra.GoRedisAdapter connect-then-verify pattern;
// constructed only when a Redis address is configured
// (ARES_REDIS_ADDR or rate_limit.redis_addr), with the caller
// falling back to the in-memory RateLimiter if the ping fails.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(addr, password string, db, limit int, windowSize time.Duration) (*RedisRateLimiter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: windowSize}, nil
}

func (r *RedisRateLimiter) Close() error { return r.rdb.Close() }

// Allow increments the counter for key's current window, creating it
// with the configured TTL on first use.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Incr(ctx, "ares:ratelimit:"+key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		r.rdb.Expire(ctx, "ares:ratelimit:"+key, r.window)
	}
	return n <= int64(r.limit), nil
}
