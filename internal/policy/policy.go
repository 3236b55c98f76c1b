// Package policy implements the per-host state machine that turns a
// correlation verdict into a final decision, tracking cooldown and
// quarantine state across requests. Structurally grounded on the
// teacher's reputation quarantine manager (config + manager + durable
// state, sticky-until-cleared semantics), generalized from agent
// reputation to host security posture.
package policy

import (
	"sync"
	"time"

	"github.com/aresgw/gateway/internal/model"
)

// HostStateStore is the durable backing for host policy state. The
// in-memory engine hydrates from it on first access and writes through
// on every change, per spec design note on persisted-state coherence.
type HostStateStore interface {
	GetHostState(host string) (model.HostState, error)
	UpsertHostState(state model.HostState) error
}

// Config holds the engine's tunables. Defaults match the reference
// implementation.
type Config struct {
	SeverityFloor   int
	CooldownSeconds int
	QuarantineOn    map[string]struct{}
}

func DefaultConfig() Config {
	return Config{
		SeverityFloor:   0,
		CooldownSeconds: 120,
		QuarantineOn:    map[string]struct{}{"brute_force_suspected": {}},
	}
}

// Engine is the HostPolicyEngine: Normal / Cooldown(until) / Quarantined
// per host.
type Engine struct {
	store HostStateStore
	cfg   Config

	mu     sync.Mutex
	states map[string]model.HostState
}

func New(store HostStateStore, cfg Config) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		states: make(map[string]model.HostState),
	}
}

func (e *Engine) hydrate(host string) model.HostState {
	if s, ok := e.states[host]; ok {
		return s
	}
	if e.store != nil {
		if s, err := e.store.GetHostState(host); err == nil {
			e.states[host] = s
			return s
		}
	}
	s := model.HostState{Host: host}
	e.states[host] = s
	return s
}

func (e *Engine) writeThrough(s model.HostState) {
	e.states[s.Host] = s
	if e.store != nil {
		_ = e.store.UpsertHostState(s)
	}
}

func contains(reasons []string, tag string) bool {
	for _, r := range reasons {
		if r == tag {
			return true
		}
	}
	return false
}

// Evaluate folds the correlation decision into the host's durable
// policy state and returns the final decision. Evaluated in the fixed
// precedence order: severity floor, quarantine, active cooldown, then
// branch on the correlation decision.
func (e *Engine) Evaluate(record model.EventRecord, corr model.CorrelationDecision) model.PolicyDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := record.ReceivedTimeUTC
	context := map[string]any{
		"correlation_decision": string(corr.Decision),
		"correlation_reasons":  corr.Reasons,
	}

	if record.Severity < e.cfg.SeverityFloor {
		return result(record, model.DecisionThrottle, "below_severity_floor", context)
	}

	state := e.hydrate(record.Host)

	if state.Quarantined {
		return result(record, model.DecisionBlock, "host_quarantined", context)
	}

	if state.InCooldown(now) {
		context["cooldown_until_utc"] = state.CooldownUntilUTC.Format(time.RFC3339)
		return result(record, model.DecisionBlock, "cooldown_active", context)
	}

	switch corr.Decision {
	case model.DecisionBlock:
		if anyIn(corr.Reasons, e.cfg.QuarantineOn) {
			state.Quarantined = true
			state.UpdatedUTC = now
			e.writeThrough(state)
			return result(record, model.DecisionBlock, "quarantine_activated", context)
		}
		until := now.Add(time.Duration(e.cfg.CooldownSeconds) * time.Second)
		state.CooldownUntilUTC = &until
		state.UpdatedUTC = now
		e.writeThrough(state)
		return result(record, model.DecisionBlock, "correlation_block", context)

	case model.DecisionThrottle:
		until := now.Add(time.Duration(e.cfg.CooldownSeconds) * time.Second)
		state.CooldownUntilUTC = &until
		state.UpdatedUTC = now
		e.writeThrough(state)
		return result(record, model.DecisionThrottle, "suspicious_cooldown_set", context)

	default:
		return result(record, model.DecisionAllow, "ok", context)
	}
}

func anyIn(reasons []string, set map[string]struct{}) bool {
	for _, r := range reasons {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func result(record model.EventRecord, decision model.Decision, reason string, context map[string]any) model.PolicyDecision {
	return model.PolicyDecision{
		EventID:  record.EventID,
		Host:     record.Host,
		Decision: decision,
		Reasons:  []string{reason},
		Context:  context,
	}
}

// GetState returns the current snapshot of host state for observability.
func (e *Engine) GetState(host string) model.HostState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrate(host)
}

// ListQuarantined returns all hosts currently in the Quarantined state.
func (e *Engine) ListQuarantined() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for host, s := range e.states {
		if s.Quarantined {
			out = append(out, host)
		}
	}
	return out
}

// ClearQuarantine administratively lifts quarantine for a host.
func (e *Engine) ClearQuarantine(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.hydrate(host)
	state.Quarantined = false
	state.UpdatedUTC = time.Now().UTC()
	e.writeThrough(state)
}

// ClearCooldown administratively lifts an active cooldown for a host.
func (e *Engine) ClearCooldown(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.hydrate(host)
	state.CooldownUntilUTC = nil
	state.UpdatedUTC = time.Now().UTC()
	e.writeThrough(state)
}
