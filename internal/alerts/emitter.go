package alerts

import (
	"time"

	"github.com/google/uuid"

	"github.com/aresgw/gateway/internal/model"
)

// Emitter composes the deduper, the fixed rule mapping table, and the
// durable sink: for each correlation reason present in a decision, it
// builds and (if the deduper admits it) appends exactly one Alert.
type Emitter struct {
	dedup *Deduper
	sink  *Sink
}

func NewEmitter(dedup *Deduper, sink *Sink) *Emitter {
	return &Emitter{dedup: dedup, sink: sink}
}

// Emit evaluates every reason in corr against the rule table and the
// deduper, returning the alerts actually appended to the sink. Sink
// failures are swallowed per spec.md §7 (observability only); the
// caller may inspect the returned error slice for metrics.
func (e *Emitter) Emit(corr model.CorrelationDecision, user, srcIP string, now time.Time) ([]model.Alert, []error) {
	var emitted []model.Alert
	var sinkErrs []error

	for _, reason := range corr.Reasons {
		info, ok := reasonToRule[reason]
		if !ok {
			continue
		}
		if !e.dedup.ShouldEmit(info.RuleID, corr.Host, user, srcIP, now) {
			continue
		}

		alert := model.Alert{
			AlertID:        uuid.NewString(),
			RuleID:         info.RuleID,
			Host:           corr.Host,
			Severity:       info.Severity,
			Confidence:     info.Confidence,
			CreatedTimeUTC: now,
			User:           user,
			SrcIP:          srcIP,
			EventID:        corr.EventID,
			Reasons:        []string{reason},
			Context:        corr.Context,
		}
		if err := e.sink.Append(alert); err != nil {
			sinkErrs = append(sinkErrs, err)
			continue
		}
		emitted = append(emitted, alert)
	}

	return emitted, sinkErrs
}
