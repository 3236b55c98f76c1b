// Package correlator evaluates the fixed set of sliding-window detection
// rules over a host's recent event history and folds the result into a
// single allow/throttle/block verdict.
package correlator

import (
	"time"

	"github.com/aresgw/gateway/internal/model"
	"github.com/aresgw/gateway/internal/rollingstore"
)

// Config holds the rule thresholds and windows. Defaults match the
// reference correlator exactly.
type Config struct {
	StormWindow    time.Duration
	StormThreshold int

	BruteWindow    time.Duration
	BruteThreshold int

	SprayWindow               time.Duration
	SprayFailThreshold        int
	SprayUniqueUsersThreshold int

	SuccessWindow               time.Duration
	SuccessPriorFailThreshold int
}

func DefaultConfig() Config {
	return Config{
		StormWindow:    30 * time.Second,
		StormThreshold: 50,

		BruteWindow:    60 * time.Second,
		BruteThreshold: 8,

		SprayWindow:               120 * time.Second,
		SprayFailThreshold:        8,
		SprayUniqueUsersThreshold: 5,

		SuccessWindow:             600 * time.Second,
		SuccessPriorFailThreshold: 6,
	}
}

// Correlator is stateless: all history lives in the rolling store it was
// constructed with.
type Correlator struct {
	store *rollingstore.Store
	cfg   Config
}

func New(store *rollingstore.Store, cfg Config) *Correlator {
	return &Correlator{store: store, cfg: cfg}
}

func userOrUnknown(u string) string {
	if u == "" {
		return "unknown"
	}
	return u
}

// Evaluate adds record to the rolling store, then runs the fixed rule
// set against the resulting recent history. Rule evaluation order is
// fixed and every rule writes its diagnostic counters into context
// whether or not it fires.
func (c *Correlator) Evaluate(record model.EventRecord) model.CorrelationDecision {
	c.store.Add(record)
	recent := c.store.GetRecent(record.Host, record.ReceivedTimeUTC)
	now := record.ReceivedTimeUTC

	var reasons []string
	context := make(map[string]any)

	// Rule 1: ingest_storm
	stormCutoff := now.Add(-c.cfg.StormWindow)
	stormCount := 0
	for _, e := range recent {
		if !e.ReceivedTimeUTC.Before(stormCutoff) {
			stormCount++
		}
	}
	context["storm_count"] = stormCount
	context["storm_window_seconds"] = int(c.cfg.StormWindow.Seconds())
	if stormCount > c.cfg.StormThreshold {
		reasons = append(reasons, "ingest_storm")
	}

	// Rule 2: brute_force_suspected
	bruteCutoff := now.Add(-c.cfg.BruteWindow)
	user := userOrUnknown(record.User)
	failCount := 0
	for _, e := range recent {
		if e.ReceivedTimeUTC.Before(bruteCutoff) {
			continue
		}
		if e.Category == "auth" && e.Action == "login_failed" && userOrUnknown(e.User) == user {
			failCount++
		}
	}
	context["brute_user"] = user
	context["login_failed_count"] = failCount
	context["brute_window_seconds"] = int(c.cfg.BruteWindow.Seconds())
	if failCount >= c.cfg.BruteThreshold {
		reasons = append(reasons, "brute_force_suspected")
	}

	// Rule 3: password_spray_suspected
	if record.SrcIP != "" {
		sprayCutoff := now.Add(-c.cfg.SprayWindow)
		sprayFailCount := 0
		users := make(map[string]struct{})
		for _, e := range recent {
			if e.ReceivedTimeUTC.Before(sprayCutoff) {
				continue
			}
			if e.Category == "auth" && e.Action == "login_failed" && e.SrcIP == record.SrcIP {
				sprayFailCount++
				users[userOrUnknown(e.User)] = struct{}{}
			}
		}
		context["spray_src_ip"] = record.SrcIP
		context["spray_fail_count"] = sprayFailCount
		context["spray_unique_users"] = len(users)
		context["spray_window_seconds"] = int(c.cfg.SprayWindow.Seconds())
		if sprayFailCount >= c.cfg.SprayFailThreshold && len(users) >= c.cfg.SprayUniqueUsersThreshold {
			reasons = append(reasons, "password_spray_suspected")
		}
	} else {
		context["spray_src_ip"] = ""
		context["spray_fail_count"] = 0
		context["spray_unique_users"] = 0
		context["spray_window_seconds"] = int(c.cfg.SprayWindow.Seconds())
	}

	// Rule 4: success_after_failures
	successCutoff := now.Add(-c.cfg.SuccessWindow)
	priorFails := 0
	for _, e := range recent {
		if e.ReceivedTimeUTC.Before(successCutoff) {
			continue
		}
		if e.Category == "auth" && e.Action == "login_failed" && userOrUnknown(e.User) == user {
			priorFails++
		}
	}
	context["success_prior_fail_count"] = priorFails
	context["success_window_seconds"] = int(c.cfg.SuccessWindow.Seconds())
	if record.Category == "auth" && record.Action == "login_success" && priorFails >= c.cfg.SuccessPriorFailThreshold {
		reasons = append(reasons, "success_after_failures")
	}

	decision := decide(reasons)

	return model.CorrelationDecision{
		EventID:  record.EventID,
		Host:     record.Host,
		Decision: decision,
		Reasons:  reasons,
		Context:  context,
	}
}

func decide(reasons []string) model.Decision {
	has := func(tag string) bool {
		for _, r := range reasons {
			if r == tag {
				return true
			}
		}
		return false
	}

	if has("ingest_storm") && (has("brute_force_suspected") || has("password_spray_suspected")) {
		return model.DecisionBlock
	}
	if len(reasons) > 0 {
		return model.DecisionThrottle
	}
	return model.DecisionAllow
}
