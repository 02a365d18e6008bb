package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wegroup/pulse/internal/alert"
	"github.com/wegroup/pulse/internal/api"
	"github.com/wegroup/pulse/internal/bus"
	"github.com/wegroup/pulse/internal/config"
	"github.com/wegroup/pulse/internal/ingest"
	"github.com/wegroup/pulse/internal/sampler"
	"github.com/wegroup/pulse/internal/store"
	"github.com/wegroup/pulse/internal/webhook"
	"github.com/wegroup/pulse/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("pulsed starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"store_driver", cfg.Store.Driver,
		"bus_tick", cfg.Bus.Tick,
		"queue_size", cfg.Bus.QueueSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Webhook dispatcher and the bus that feeds it.
	dispatcher := webhook.New(st)
	eventBus := bus.New(dispatcher, bus.Options{
		Tick:      cfg.Bus.Tick,
		QueueSize: cfg.Bus.QueueSize,
	})
	go eventBus.Run(ctx)

	// Alert rule cache and evaluator.
	ruleCache := alert.NewCache(st)
	evaluator := alert.NewEvaluator(ruleCache, st, eventBus)
	ingestor := ingest.New(st, evaluator)

	// Seed rules and endpoints from config, then load the cache.
	seed(ctx, st, cfg)
	if err := ruleCache.Refresh(ctx); err != nil {
		slog.Warn("initial rule load failed, starting with empty cache", "err", err)
	}
	go ruleCache.Run(ctx, cfg.Alerts.RefreshInterval)

	// Periodic sampling: runtime gauges, scrape targets, cert probes.
	smp := sampler.New(ingestor, cfg.Sampler)
	go smp.Run(ctx)

	// WebSocket hub broadcasting live status to UI clients.
	hub := ws.New(st, eventBus, 5*time.Second)
	go hub.Run(ctx)

	// Config reload: re-seed rules and endpoints, then refresh the cache so
	// the evaluator picks the changes up without a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			seed(ctx, st, next)
			if err := ruleCache.Refresh(ctx); err != nil {
				slog.Error("rule refresh after reload failed", "err", err)
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API, Prometheus metrics, WebSocket hub.
	apiHandler := api.New(st, eventBus, ingestor, ruleCache)
	apiHandler = api.WithInstrumentation(apiHandler, ingestor, cfg.Sampler.Tenant)
	apiHandler = api.WithAPIKey(apiHandler,
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("pulsed shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// openStore builds the configured persistence driver. The memory driver also
// starts its background TTL eviction loop.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DSN())
	default:
		mem := store.NewMemory(cfg.Store.MetricTTL)
		go mem.Run(ctx)
		return mem, nil
	}
}

// seed upserts the configured alert rules and webhook endpoints. Stored
// trigger state and delivery statistics survive re-seeding.
func seed(ctx context.Context, st store.Store, cfg *config.Config) {
	for _, rc := range cfg.Alerts.Rules {
		if err := st.UpsertRule(ctx, rc.Rule()); err != nil {
			slog.Error("seed rule failed", "rule", rc.ID, "err", err)
		}
	}
	for _, ec := range cfg.Webhooks.Endpoints {
		if err := st.UpsertEndpoint(ctx, ec.Endpoint(cfg.Webhooks.DefaultTimeout)); err != nil {
			slog.Error("seed endpoint failed", "endpoint", ec.ID, "err", err)
		}
	}
	slog.Info("seeded from config",
		"rules", len(cfg.Alerts.Rules),
		"endpoints", len(cfg.Webhooks.Endpoints),
	)
}
