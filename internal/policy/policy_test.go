package policy

import (
	"testing"
	"time"

	"github.com/aresgw/gateway/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestQuarantineStickyUntilCleared(t *testing.T) {
	e := New(nil, DefaultConfig())
	now := time.Now().UTC()

	rec := model.EventRecord{EventID: "e1", Host: "h1", Severity: 5, ReceivedTimeUTC: now}
	corr := model.CorrelationDecision{Decision: model.DecisionBlock, Reasons: []string{"ingest_storm", "brute_force_suspected"}}

	first := e.Evaluate(rec, corr)
	assert.Equal(t, model.DecisionBlock, first.Decision)
	assert.Equal(t, []string{"quarantine_activated"}, first.Reasons)

	// Subsequent event, even with an ALLOW correlation, stays blocked.
	again := e.Evaluate(model.EventRecord{EventID: "e2", Host: "h1", Severity: 5, ReceivedTimeUTC: now.Add(time.Minute)},
		model.CorrelationDecision{Decision: model.DecisionAllow})
	assert.Equal(t, model.DecisionBlock, again.Decision)
	assert.Equal(t, []string{"host_quarantined"}, again.Reasons)

	e.ClearQuarantine("h1")
	cleared := e.Evaluate(model.EventRecord{EventID: "e3", Host: "h1", Severity: 5, ReceivedTimeUTC: now.Add(2 * time.Minute)},
		model.CorrelationDecision{Decision: model.DecisionAllow})
	assert.Equal(t, model.DecisionAllow, cleared.Decision)
}

func TestBruteForceAloneThrottlesDoesNotQuarantine(t *testing.T) {
	e := New(nil, DefaultConfig())
	now := time.Now().UTC()

	corr := model.CorrelationDecision{Decision: model.DecisionThrottle, Reasons: []string{"brute_force_suspected"}}
	d := e.Evaluate(model.EventRecord{EventID: "e1", Host: "h1", Severity: 5, ReceivedTimeUTC: now}, corr)

	assert.Equal(t, model.DecisionThrottle, d.Decision)
	assert.Equal(t, []string{"suspicious_cooldown_set"}, d.Reasons)
	assert.False(t, e.GetState("h1").Quarantined)
}

func TestCooldownActiveBlocksUntilExpiry(t *testing.T) {
	e := New(nil, DefaultConfig())
	now := time.Now().UTC()

	e.Evaluate(model.EventRecord{EventID: "e1", Host: "h1", Severity: 5, ReceivedTimeUTC: now},
		model.CorrelationDecision{Decision: model.DecisionThrottle, Reasons: []string{"ingest_storm"}})

	within := e.Evaluate(model.EventRecord{EventID: "e2", Host: "h1", Severity: 5, ReceivedTimeUTC: now.Add(10 * time.Second)},
		model.CorrelationDecision{Decision: model.DecisionAllow})
	assert.Equal(t, model.DecisionBlock, within.Decision)
	assert.Equal(t, []string{"cooldown_active"}, within.Reasons)

	after := e.Evaluate(model.EventRecord{EventID: "e3", Host: "h1", Severity: 5, ReceivedTimeUTC: now.Add(200 * time.Second)},
		model.CorrelationDecision{Decision: model.DecisionAllow})
	assert.Equal(t, model.DecisionAllow, after.Decision)
}

func TestSeverityFloorThrottlesRegardlessOfState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeverityFloor = 3
	e := New(nil, cfg)

	d := e.Evaluate(model.EventRecord{EventID: "e1", Host: "h1", Severity: 1, ReceivedTimeUTC: time.Now().UTC()},
		model.CorrelationDecision{Decision: model.DecisionAllow})
	assert.Equal(t, model.DecisionThrottle, d.Decision)
	assert.Equal(t, []string{"below_severity_floor"}, d.Reasons)
}
