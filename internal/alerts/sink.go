// Package alerts implements alert deduplication and the durable
// append-only JSON-lines alert sink, plus the fixed correlation-reason
// to alert-rule mapping table.
package alerts

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/aresgw/gateway/internal/model"
)

// ruleInfo is the fixed mapping table from spec.md §4.5.
type ruleInfo struct {
	RuleID     string
	Severity   int
	Confidence float64
}

var reasonToRule = map[string]ruleInfo{
	"brute_force_suspected":   {RuleID: "BRUTE_FORCE_V1", Severity: 7, Confidence: 0.75},
	"password_spray_suspected": {RuleID: "PASSWORD_SPRAY_V1", Severity: 8, Confidence: 0.80},
	"success_after_failures":  {RuleID: "SUCCESS_AFTER_FAILURES_V1", Severity: 8, Confidence: 0.70},
	"ingest_storm":            {RuleID: "INGEST_STORM_V1", Severity: 5, Confidence: 0.60},
}

// Sink appends Alert records as compact JSON, one per line, to a
// configured file path. Matches the teacher's append-only evidence
// store discipline: open-append-close per write, parent directories
// created on initialisation.
type Sink struct {
	mu   sync.Mutex
	path string
}

func NewSink(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Sink{path: path}, nil
}

// Recent returns up to limit most-recently-appended alerts, newest
// first. Reads the whole file; the sink is a local JSONL append log,
// not an indexed store, so this is a linear scan by design.
func (s *Sink) Recent(limit int) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var all []model.Alert
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var a model.Alert
		if err := json.Unmarshal(line, &a); err != nil {
			continue
		}
		all = append(all, a)
	}

	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]model.Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

// Append writes one alert as a single JSON line. Per spec.md §7, sink
// failures must never propagate into the request path; callers should
// log and count failures rather than fail the response.
func (s *Sink) Append(alert model.Alert) error {
	line, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}
