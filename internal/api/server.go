// Package api wires the HTTP surface: signed event ingest, host policy
// inspection/administration, recent alerts, metrics exposition, and
// webhook subscription management. Shaped after the teacher's
// api.APIServer (mux.NewRouter, CORS middleware, Start(port)).
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aresgw/gateway/internal/admission"
	"github.com/aresgw/gateway/internal/alerts"
	"github.com/aresgw/gateway/internal/audit"
	"github.com/aresgw/gateway/internal/config"
	"github.com/aresgw/gateway/internal/correlator"
	"github.com/aresgw/gateway/internal/obsmetrics"
	"github.com/aresgw/gateway/internal/policy"
	"github.com/aresgw/gateway/internal/webhooks"
)

// Server holds every wired pipeline component and exposes them over HTTP.
type Server struct {
	cfg        *config.Config
	admission  *admission.Chain
	correlator *correlator.Correlator
	policy     *policy.Engine
	alertEmit  *alerts.Emitter
	alertSink  *alerts.Sink
	audit      *audit.Logger
	metrics    *obsmetrics.Metrics
	webhookReg *webhooks.Registry
	dispatcher webhooks.Emitter
	logger     *slog.Logger
}

func NewServer(
	cfg *config.Config,
	admissionChain *admission.Chain,
	corr *correlator.Correlator,
	pol *policy.Engine,
	alertEmit *alerts.Emitter,
	alertSink *alerts.Sink,
	auditLogger *audit.Logger,
	metrics *obsmetrics.Metrics,
	webhookReg *webhooks.Registry,
	dispatcher webhooks.Emitter,
) *Server {
	return &Server{
		cfg:        cfg,
		admission:  admissionChain,
		correlator: corr,
		policy:     pol,
		alertEmit:  alertEmit,
		alertSink:  alertSink,
		audit:      auditLogger,
		metrics:    metrics,
		webhookReg: webhookReg,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "api"),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+admission.SignatureHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/hosts/{host}/state", s.handleHostState).Methods(http.MethodGet)
	r.HandleFunc("/hosts/{host}/clear", s.handleHostClear).Methods(http.MethodPost)
	r.HandleFunc("/alerts/recent", s.handleAlertsRecent).Methods(http.MethodGet)
	r.HandleFunc("/webhooks", s.handleWebhookRegister).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{id}", s.handleWebhookUnregister).Methods(http.MethodDelete)

	if s.cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Start runs the HTTP server on the configured port until it errors or
// the process is killed.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.GetPort())
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}
	s.logger.Info("gateway listening", "addr", addr)
	return srv.ListenAndServe()
}
