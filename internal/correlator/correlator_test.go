package correlator

import (
	"testing"
	"time"

	"github.com/aresgw/gateway/internal/model"
	"github.com/aresgw/gateway/internal/rollingstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCorrelator() *Correlator {
	store := rollingstore.New(15 * time.Minute)
	return New(store, DefaultConfig())
}

func TestBruteForceBoundarySevenVsEight(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	var last model.CorrelationDecision
	for i := 0; i < 7; i++ {
		last = c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h1", Category: "auth", Action: "login_failed",
			User: "alice", ReceivedTimeUTC: base.Add(time.Duration(i) * time.Second),
		})
	}
	assert.NotContains(t, last.Reasons, "brute_force_suspected")

	eighth := c.Evaluate(model.EventRecord{
		EventID: "e8", Host: "h1", Category: "auth", Action: "login_failed",
		User: "alice", ReceivedTimeUTC: base.Add(7 * time.Second),
	})
	assert.Contains(t, eighth.Reasons, "brute_force_suspected")
	assert.Equal(t, model.DecisionThrottle, eighth.Decision)
}

func TestPasswordSprayRequiresBothThresholds(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	// 8 fails from the same src_ip, but only one user: fail count alone isn't enough.
	var last model.CorrelationDecision
	for i := 0; i < 8; i++ {
		last = c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h1", Category: "auth", Action: "login_failed",
			User: "alice", SrcIP: "1.2.3.4", ReceivedTimeUTC: base.Add(time.Duration(i) * time.Second),
		})
	}
	assert.NotContains(t, last.Reasons, "password_spray_suspected")
}

func TestPasswordSprayFiresWithBothThresholds(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	users := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var last model.CorrelationDecision
	for i, u := range users {
		last = c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h1", Category: "auth", Action: "login_failed",
			User: u, SrcIP: "1.2.3.4", ReceivedTimeUTC: base.Add(time.Duration(i) * time.Second),
		})
	}
	assert.Contains(t, last.Reasons, "password_spray_suspected")
}

func TestSuccessAfterFailures(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	for i := 0; i < 6; i++ {
		c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h3", Category: "auth", Action: "login_failed",
			User: "bob", ReceivedTimeUTC: base.Add(time.Duration(i) * time.Second),
		})
	}

	success := c.Evaluate(model.EventRecord{
		EventID: "success", Host: "h3", Category: "auth", Action: "login_success",
		User: "bob", ReceivedTimeUTC: base.Add(7 * time.Second),
	})
	assert.Contains(t, success.Reasons, "success_after_failures")
}

func TestIngestStormAlonethrottlesNotBlocks(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	var last model.CorrelationDecision
	for i := 0; i < 51; i++ {
		last = c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h2", Category: "net", Action: "connect",
			ReceivedTimeUTC: base.Add(time.Duration(i) * 50 * time.Millisecond),
		})
	}
	require.Contains(t, last.Reasons, "ingest_storm")
	assert.Equal(t, model.DecisionThrottle, last.Decision)
}

func TestStormPlusBruteForceBlocks(t *testing.T) {
	c := newCorrelator()
	base := time.Now().UTC()

	var last model.CorrelationDecision
	for i := 0; i < 51; i++ {
		last = c.Evaluate(model.EventRecord{
			EventID: "e", Host: "h2", Category: "auth", Action: "login_failed",
			User: "mallory", ReceivedTimeUTC: base.Add(time.Duration(i) * 50 * time.Millisecond),
		})
	}
	assert.Contains(t, last.Reasons, "ingest_storm")
	assert.Contains(t, last.Reasons, "brute_force_suspected")
	assert.Equal(t, model.DecisionBlock, last.Decision)
}
