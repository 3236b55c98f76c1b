package main

import (
	"log"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/aresgw/gateway/internal/admission"
	"github.com/aresgw/gateway/internal/alerts"
	"github.com/aresgw/gateway/internal/api"
	"github.com/aresgw/gateway/internal/audit"
	"github.com/aresgw/gateway/internal/config"
	"github.com/aresgw/gateway/internal/correlator"
	"github.com/aresgw/gateway/internal/obsmetrics"
	"github.com/aresgw/gateway/internal/policy"
	"github.com/aresgw/gateway/internal/rollingstore"
	"github.com/aresgw/gateway/internal/store"
	"github.com/aresgw/gateway/internal/webhooks"
)

const maxCorrelationWindow = 600 * time.Second // success_after_failures

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, continuing with process environment")
	}

	cfg := config.Get()
	log.Printf("starting ares-gateway in %s mode on port %s", cfg.Server.Env, cfg.GetPort())

	idempotency, hostStates := openStore(cfg)

	admCfg := admission.Config{
		SharedSecret:       cfg.Security.SharedSecret,
		ReplayWindow:       time.Duration(cfg.Admission.ReplayWindowSeconds) * time.Second,
		RateLimitPerMinute: cfg.RateLimit.PerMinute,
		IdempotencyTTL:     time.Duration(cfg.Admission.IdempotencyTTLHours) * time.Hour,
	}

	var redisLimiter *admission.RedisRateLimiter
	if cfg.RateLimit.RedisAddr != "" {
		rl, err := admission.NewRedisRateLimiter(cfg.RateLimit.RedisAddr, "", 0, cfg.RateLimit.PerMinute, time.Minute)
		if err != nil {
			slog.Warn("redis rate limiter unavailable, falling back to in-memory", "error", err)
		} else {
			redisLimiter = rl
		}
	}
	admissionChain := admission.NewChain(admCfg, idempotency, redisLimiter)

	corrCfg := correlator.DefaultConfig()
	corr := correlator.New(rollingstore.New(maxCorrelationWindow), corrCfg)

	polCfg := policy.DefaultConfig()
	polCfg.CooldownSeconds = cfg.Policy.CooldownSeconds
	polCfg.SeverityFloor = cfg.Policy.SeverityFloor
	pol := policy.New(hostStates, polCfg)

	sink, err := alerts.NewSink(cfg.Alerts.SinkPath)
	if err != nil {
		log.Fatalf("failed to open alert sink: %v", err)
	}
	emitter := alerts.NewEmitter(alerts.NewDeduper(time.Duration(cfg.Alerts.DedupSeconds)*time.Second), sink)

	auditLogger, err := audit.NewLogger(cfg.Audit.Path)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}

	var metrics *obsmetrics.Metrics
	if cfg.Metrics.Enabled {
		metrics = obsmetrics.NewMetrics()
	}

	registry := webhooks.NewRegistry()
	dispatcher := webhooks.NewDispatcher(registry, cfg.Webhook.WorkerCount)
	defer dispatcher.Shutdown()

	server := api.NewServer(cfg, admissionChain, corr, pol, emitter, sink, auditLogger, metrics, registry, dispatcher)

	go runMaintenance(admissionChain)

	if err := server.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// openStore opens the SQLite-backed persistent store when configured,
// falling back to the in-memory store for local/dev runs. Both
// store.Store and store.Memory satisfy admission.IdempotencyStore and
// policy.HostStateStore, so the same instance backs both pipelines.
func openStore(cfg *config.Config) (admission.IdempotencyStore, policy.HostStateStore) {
	if cfg.Store.UsePersistent == nil || !*cfg.Store.UsePersistent {
		mem := store.NewMemory()
		return mem, mem
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open persistent store at %s: %v", cfg.Store.Path, err)
	}
	return s, s
}

// runMaintenance periodically garbage-collects idempotency entries and
// idle rate-limit windows.
func runMaintenance(chain *admission.Chain) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for now := range ticker.C {
		if _, err := chain.GC(now.UTC()); err != nil {
			slog.Warn("idempotency GC failed", "error", err)
		}
		chain.CleanupRateLimiter(now.UTC())
	}
}
