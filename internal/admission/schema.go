package admission

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/aresgw/gateway/internal/errs"
	"github.com/aresgw/gateway/internal/model"
)

// wireEvent mirrors the SecurityEventV1 schema exactly (spec.md §6).
// DisallowUnknownFields on the decoder rejects unknown top-level fields.
type wireEvent struct {
	EventType    string         `json:"event_type"`
	EventID      string         `json:"event_id"`
	Source       string         `json:"source"`
	Host         string         `json:"host"`
	TimestampUTC string         `json:"timestamp_utc"`
	Category     string         `json:"category"`
	Action       string         `json:"action"`
	Severity     *int           `json:"severity"`
	User         string         `json:"user,omitempty"`
	SrcIP        string         `json:"src_ip,omitempty"`
	DestIP       string         `json:"dest_ip,omitempty"`
	ProcessName  string         `json:"process_name,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

func strLen(s string, min, max int) bool {
	n := len(s)
	return n >= min && n <= max
}

// parseAndValidate decodes raw into a wireEvent, rejects unknown fields,
// and checks every field against the SecurityEventV1 contract. On
// success it returns a normalised EventRecord with ReceivedTimeUTC left
// zero (the caller stamps it).
func parseAndValidate(raw []byte) (model.EventRecord, *errs.Error) {
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return model.EventRecord{}, errs.ValidationError("invalid_json")
	}

	if w.EventType != "sec.event.v1" {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if !strLen(w.EventID, 8, 128) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if !strLen(w.Source, 1, 64) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if !strLen(w.Host, 1, 128) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if !strLen(w.Category, 1, 64) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if !strLen(w.Action, 1, 64) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if w.Severity == nil || *w.Severity < 0 || *w.Severity > 10 {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if w.User != "" && !strLen(w.User, 1, 128) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if w.SrcIP != "" && !strLen(w.SrcIP, 1, 64) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if w.DestIP != "" && !strLen(w.DestIP, 1, 64) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}
	if w.ProcessName != "" && !strLen(w.ProcessName, 1, 256) {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}

	ts, err := time.Parse(time.RFC3339, w.TimestampUTC)
	if err != nil {
		return model.EventRecord{}, errs.ValidationError("schema_validation_failed")
	}

	return model.EventRecord{
		EventID:     w.EventID,
		Host:        w.Host,
		Category:    w.Category,
		Action:      w.Action,
		User:        w.User,
		SrcIP:       w.SrcIP,
		DestIP:      w.DestIP,
		ProcessName: w.ProcessName,
		Severity:    *w.Severity,
		SentTimeUTC: ts,
		Attributes:  w.Attributes,
	}, nil
}
