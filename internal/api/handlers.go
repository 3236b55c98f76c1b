package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aresgw/gateway/internal/admission"
	"github.com/aresgw/gateway/internal/audit"
	"github.com/aresgw/gateway/internal/errs"
	"github.com/aresgw/gateway/internal/webhooks"
)

const maxIngestBodyBytes = 1 << 20 // 1 MiB

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ares-gateway"})
}

// handleIngest runs the full pipeline: admission -> correlation ->
// policy -> alert emission -> webhook fan-out, writing an audit record
// at each stage.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := start.UTC()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBodyBytes+1))
	if err != nil {
		writeError(w, errs.ValidationError("body_read_failed"))
		return
	}
	if len(raw) > maxIngestBodyBytes {
		writeError(w, errs.ValidationError("body_too_large"))
		return
	}

	sigHeader := r.Header.Get(admission.SignatureHeader)
	outcome, aerr := s.admission.Admit(r.Context(), raw, sigHeader, now)
	if aerr != nil {
		s.recordRejection(r, aerr, outcome.BodyHash, now)
		if s.metrics != nil {
			s.metrics.RecordAdmission("rejected", time.Since(start).Seconds())
		}
		writeError(w, aerr)
		return
	}

	s.writeAudit(audit.Record{
		Type:            audit.KindGatewayAccept,
		ReceivedTimeUTC: now,
		EventID:         outcome.Event.EventID,
		Host:            outcome.Event.Host,
		ClientIP:        clientIP(r),
		BodySHA256:      outcome.BodyHash,
	})
	if s.metrics != nil {
		s.metrics.RecordAdmission("accepted", time.Since(start).Seconds())
	}

	corr := s.correlator.Evaluate(outcome.Event)
	s.writeAudit(audit.Record{
		Type:            audit.KindCorrelationDecision,
		ReceivedTimeUTC: now,
		EventID:         corr.EventID,
		Host:            corr.Host,
		Decision:        string(corr.Decision),
		Reasons:         corr.Reasons,
		Context:         corr.Context,
	})
	if s.metrics != nil {
		s.metrics.RecordCorrelation(string(corr.Decision), corr.Reasons)
	}

	pol := s.policy.Evaluate(outcome.Event, corr)
	s.writeAudit(audit.Record{
		Type:            audit.KindPolicyDecision,
		ReceivedTimeUTC: now,
		EventID:         pol.EventID,
		Host:            pol.Host,
		Decision:        string(pol.Decision),
		Reasons:         pol.Reasons,
		Context:         pol.Context,
	})
	if s.metrics != nil {
		s.metrics.RecordPolicy(string(pol.Decision))
	}

	alertsEmitted, _ := s.alertEmit.Emit(corr, outcome.Event.User, outcome.Event.SrcIP, now)
	for _, a := range alertsEmitted {
		s.writeAudit(audit.Record{
			Type:            audit.KindAlertEmitted,
			ReceivedTimeUTC: now,
			EventID:         a.EventID,
			Host:            a.Host,
			Context:         map[string]any{"rule_id": a.RuleID, "alert_id": a.AlertID},
		})
		if s.metrics != nil {
			s.metrics.RecordAlert(a.RuleID, true)
		}
		if s.dispatcher != nil {
			s.dispatcher.EmitAlert(map[string]interface{}{
				"alert_id": a.AlertID,
				"rule_id":  a.RuleID,
				"host":     a.Host,
				"severity": a.Severity,
			})
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Accepted      bool   `json:"accepted"`
		EventID       string `json:"event_id"`
		GatewayReason string `json:"gateway_reason"`
		Correlation   any    `json:"correlation"`
		Policy        any    `json:"policy"`
		FinalDecision string `json:"final_decision"`
	}{
		Accepted:      true,
		EventID:       outcome.Event.EventID,
		GatewayReason: "ok",
		Correlation:   corr,
		Policy:        pol,
		FinalDecision: string(pol.Decision),
	})
}

// recordRejection audits an admission failure. ConfigError reflects a
// gateway misconfiguration rather than a rejected event, so it is
// recorded as a server error, not a gateway_reject.
func (s *Server) recordRejection(r *http.Request, aerr *errs.Error, bodyHash string, now time.Time) {
	if aerr.Code() == errs.CodeConfig {
		s.writeAudit(audit.Record{
			Type:            audit.KindServerError,
			ReceivedTimeUTC: now,
			ClientIP:        clientIP(r),
			BodySHA256:      bodyHash,
			Detail:          aerr.Error(),
		})
		return
	}
	s.writeAudit(audit.Record{
		Type:               audit.KindGatewayReject,
		ReceivedTimeUTC:    now,
		ClientIP:           clientIP(r),
		VerificationStatus: "rejected",
		VerificationReason: aerr.Reason(),
		BodySHA256:         bodyHash,
		Detail:             aerr.Error(),
	})
}

func (s *Server) writeAudit(r audit.Record) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Write(r); err != nil {
		s.logger.Warn("audit write failed", "error", err, "type", r.Type)
	}
}

func (s *Server) handleHostState(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	writeJSON(w, http.StatusOK, s.policy.GetState(host))
}

func (s *Server) handleHostClear(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	s.policy.ClearQuarantine(host)
	s.policy.ClearCooldown(host)
	writeJSON(w, http.StatusOK, s.policy.GetState(host))
}

const (
	minAlertsRecentLimit = 1
	maxAlertsRecentLimit = 200
)

func (s *Server) handleAlertsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < minAlertsRecentLimit {
		limit = minAlertsRecentLimit
	}
	if limit > maxAlertsRecentLimit {
		limit = maxAlertsRecentLimit
	}

	recent, err := s.alertSink.Recent(limit)
	if err != nil {
		writeError(w, errs.PersistenceErrorf("alert_sink_read_failed", err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Alerts any `json:"alerts"`
	}{recent})
}

func (s *Server) handleWebhookRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ValidationError("invalid_payload"))
		return
	}
	sub := &webhooks.Subscription{URL: req.URL, Secret: req.Secret}
	if err := s.webhookReg.Register(sub); err != nil {
		writeError(w, errs.ValidationError(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleWebhookUnregister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.webhookReg.Unregister(id); err != nil {
		writeError(w, errs.ValidationError(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *errs.Error) {
	writeJSON(w, errs.HTTPStatus(err.Code()), map[string]string{
		"error":  string(err.Code()),
		"detail": err.Reason(),
	})
}
