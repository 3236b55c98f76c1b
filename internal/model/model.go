// Package model holds the plain data types shared across the ingest and
// decision pipeline: the wire-level event, the two decision records it
// produces, the durable per-host policy state, and the alert shape
// emitted by the correlation layer.
package model

import "time"

// Decision is the three-way verdict produced by both the correlator and
// the host policy engine.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionThrottle Decision = "THROTTLE"
	DecisionBlock    Decision = "BLOCK"
)

// EventRecord is the normalized form of a SecurityEventV1 payload after
// admission has accepted it, plus the server-assigned receipt time.
type EventRecord struct {
	EventID         string         `json:"event_id"`
	Host            string         `json:"host"`
	Category        string         `json:"category"`
	Action          string         `json:"action"`
	User            string         `json:"user,omitempty"`
	SrcIP           string         `json:"src_ip,omitempty"`
	DestIP          string         `json:"dest_ip,omitempty"`
	ProcessName     string         `json:"process_name,omitempty"`
	Severity        int            `json:"severity"`
	SentTimeUTC     time.Time      `json:"sent_time_utc"`
	ReceivedTimeUTC time.Time      `json:"received_time_utc"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// CorrelationDecision is the Correlator's output for one EventRecord.
type CorrelationDecision struct {
	EventID  string         `json:"event_id"`
	Host     string         `json:"host"`
	Decision Decision       `json:"decision"`
	Reasons  []string       `json:"reasons"`
	Context  map[string]any `json:"context"`
}

// PolicyDecision is the HostPolicyEngine's output, folding the
// correlation decision against the host's durable policy state.
type PolicyDecision struct {
	EventID  string         `json:"event_id"`
	Host     string         `json:"host"`
	Decision Decision       `json:"decision"`
	Reasons  []string       `json:"reasons"`
	Context  map[string]any `json:"context"`
}

// HostState is the persisted policy state for one host.
type HostState struct {
	Host             string     `json:"host"`
	CooldownUntilUTC *time.Time `json:"cooldown_until_utc,omitempty"`
	Quarantined      bool       `json:"quarantine"`
	UpdatedUTC       time.Time  `json:"updated_utc"`
}

// InCooldown reports whether the host is presently inside its cooldown
// window, relative to now.
func (h HostState) InCooldown(now time.Time) bool {
	return h.CooldownUntilUTC != nil && now.Before(*h.CooldownUntilUTC)
}

// Alert is a durable record of a correlation rule firing, after
// deduplication. Never mutated after emission.
type Alert struct {
	AlertID         string         `json:"alert_id"`
	RuleID          string         `json:"rule_id"`
	Host            string         `json:"host"`
	Severity        int            `json:"severity"`
	Confidence      float64        `json:"confidence"`
	CreatedTimeUTC  time.Time      `json:"created_time_utc"`
	User            string         `json:"user,omitempty"`
	SrcIP           string         `json:"src_ip,omitempty"`
	EventID         string         `json:"event_id"`
	Reasons         []string       `json:"reasons"`
	Context         map[string]any `json:"context"`
}
