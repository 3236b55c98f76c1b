package admission

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aresgw/gateway/internal/errs"
	"github.com/aresgw/gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBody(eventID string, sentTime time.Time) []byte {
	b, _ := json.Marshal(map[string]any{
		"event_type":    "sec.event.v1",
		"event_id":      eventID,
		"source":        "edr-agent",
		"host":          "h1",
		"timestamp_utc": sentTime.Format(time.RFC3339),
		"category":      "auth",
		"action":        "login_failed",
		"severity":      5,
	})
	return b
}

func newChain(secret string) *Chain {
	cfg := DefaultConfig()
	cfg.SharedSecret = secret
	return NewChain(cfg, store.NewMemory(), nil)
}

func TestSignatureTamperRejectsWithMismatch(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	body := validBody("evt-00000001", now)

	sig := computeSignature([]byte("s3cret"), body)
	// flip one hex digit
	flipped := "0"
	if sig[0] == '0' {
		flipped = "1"
	}
	tampered := "sha256=" + flipped + sig[1:]

	_, err := c.Admit(context.Background(), body, tampered, now)
	require.NotNil(t, err)
	assert.Equal(t, errs.CodeAuth, err.Code())
	assert.Equal(t, "signature_mismatch", err.Reason())
}

func TestMissingSignature(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	body := validBody("evt-00000002", now)

	_, err := c.Admit(context.Background(), body, "", now)
	require.NotNil(t, err)
	assert.Equal(t, "missing_signature", err.Reason())
}

func sign(secret string, body []byte) string {
	return "sha256=" + computeSignature([]byte(secret), body)
}

func TestReplayWindowExceeded(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	stale := now.Add(-9999 * time.Second)
	body := validBody("evt-00000003", stale)

	_, err := c.Admit(context.Background(), body, sign("s3cret", body), now)
	require.NotNil(t, err)
	assert.Equal(t, "replay_window_exceeded", err.Reason())
}

func TestReplayWindowRejectsFutureTimestampsToo(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	future := now.Add(9999 * time.Second)
	body := validBody("evt-00000004", future)

	_, err := c.Admit(context.Background(), body, sign("s3cret", body), now)
	require.NotNil(t, err)
	assert.Equal(t, "replay_window_exceeded", err.Reason())
}

func TestDuplicateEventRejected(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	body := validBody("evt-00000005", now)

	_, err := c.Admit(context.Background(), body, sign("s3cret", body), now)
	require.Nil(t, err)

	_, err = c.Admit(context.Background(), body, sign("s3cret", body), now.Add(time.Second))
	require.NotNil(t, err)
	assert.Equal(t, errs.CodeDuplicate, err.Code())
	assert.Equal(t, "duplicate_event_id", err.Reason())
}

func TestRateLimitBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SharedSecret = "s3cret"
	cfg.RateLimitPerMinute = 2
	c := NewChain(cfg, store.NewMemory(), nil)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		eid := "evt-rate-0000" + string(rune('0'+i))
		body := validBody(eid, now)
		_, err := c.Admit(context.Background(), body, sign("s3cret", body), now)
		require.Nil(t, err)
	}

	third := validBody("evt-rate-00002", now)
	_, err := c.Admit(context.Background(), third, sign("s3cret", third), now)
	require.NotNil(t, err)
	assert.Equal(t, errs.CodeRateLimit, err.Code())

	nextWindow := validBody("evt-rate-00003", now.Add(time.Minute+time.Second))
	_, err = c.Admit(context.Background(), nextWindow, sign("s3cret", nextWindow), now.Add(time.Minute+time.Second))
	assert.Nil(t, err)
}

func TestMissingSharedSecretIsConfigError(t *testing.T) {
	c := newChain("")
	now := time.Now().UTC()
	body := validBody("evt-00000006", now)
	_, err := c.Admit(context.Background(), body, sign("anything", body), now)
	require.NotNil(t, err)
	assert.Equal(t, errs.CodeConfig, err.Code())
}

func TestUnknownFieldRejected(t *testing.T) {
	c := newChain("s3cret")
	now := time.Now().UTC()
	body, _ := json.Marshal(map[string]any{
		"event_type":    "sec.event.v1",
		"event_id":      "evt-00000007",
		"source":        "edr-agent",
		"host":          "h1",
		"timestamp_utc": now.Format(time.RFC3339),
		"category":      "auth",
		"action":        "login_failed",
		"severity":      5,
		"unexpected":    "field",
	})
	_, err := c.Admit(context.Background(), body, sign("s3cret", body), now)
	require.NotNil(t, err)
	assert.Equal(t, "schema_validation_failed", err.Reason())
}
