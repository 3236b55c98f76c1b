package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aresgw/gateway/internal/admission"
	"github.com/aresgw/gateway/internal/alerts"
	"github.com/aresgw/gateway/internal/audit"
	"github.com/aresgw/gateway/internal/config"
	"github.com/aresgw/gateway/internal/correlator"
	"github.com/aresgw/gateway/internal/policy"
	"github.com/aresgw/gateway/internal/rollingstore"
	"github.com/aresgw/gateway/internal/store"
	"github.com/aresgw/gateway/internal/webhooks"
)

const testSecret = "test-shared-secret"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	mem := store.NewMemory()
	admCfg := admission.DefaultConfig()
	admCfg.SharedSecret = testSecret
	chain := admission.NewChain(admCfg, mem, nil)

	corr := correlator.New(rollingstore.New(600*time.Second), correlator.DefaultConfig())
	pol := policy.New(mem, policy.DefaultConfig())

	sink, err := alerts.NewSink(filepath.Join(dir, "alerts.jsonl"))
	require.NoError(t, err)
	emitter := alerts.NewEmitter(alerts.NewDeduper(300*time.Second), sink)

	auditLogger, err := audit.NewLogger(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)

	cfg := &config.Config{}

	reg := webhooks.NewRegistry()

	return NewServer(cfg, chain, corr, pol, emitter, sink, auditLogger, nil, reg, nil)
}

func validEventBody(eventID, host string, sentTime time.Time) []byte {
	body := map[string]any{
		"event_type":    "sec.event.v1",
		"event_id":      eventID,
		"source":        "test-source",
		"host":          host,
		"timestamp_utc": sentTime.Format(time.RFC3339),
		"category":      "auth",
		"action":        "login_failed",
		"severity":      3,
		"user":          "alice",
		"src_ip":        "10.0.0.5",
	}
	b, _ := json.Marshal(body)
	return b
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestAcceptsValidSignedEvent(t *testing.T) {
	srv := newTestServer(t)
	body := validEventBody("evt-00000001", "host-a", time.Now().UTC())

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req.Header.Set(admission.SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t)
	body := validEventBody("evt-00000002", "host-a", time.Now().UTC())

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req.Header.Set(admission.SignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestRejectsDuplicateEvent(t *testing.T) {
	srv := newTestServer(t)
	body := validEventBody("evt-00000003", "host-a", time.Now().UTC())

	req1 := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req1.Header.Set(admission.SignatureHeader, sign(body))
	rec1 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req2.Header.Set(admission.SignatureHeader, sign(body))
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestHostStateAndClearRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/hosts/host-b/state", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	clearReq := httptest.NewRequest(http.MethodPost, "/hosts/host-b/clear", nil)
	clearRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(clearRec, clearReq)
	assert.Equal(t, http.StatusOK, clearRec.Code)
}

func TestWebhookRegisterAndUnregister(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"url": "http://example.invalid/hook"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub webhooks.Subscription
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sub))

	delReq := httptest.NewRequest(http.MethodDelete, "/webhooks/"+sub.ID, nil)
	delRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)
}

func TestAlertsRecentReturnsEmptyWithNoAlerts(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts/recent?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
