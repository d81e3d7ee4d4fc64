package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	hmhttp "github.com/Strob0t/Hivemind/internal/adapter/http"
	"github.com/Strob0t/Hivemind/internal/adapter/localdispatch"
	"github.com/Strob0t/Hivemind/internal/adapter/memstore"
	hmnats "github.com/Strob0t/Hivemind/internal/adapter/nats"
	"github.com/Strob0t/Hivemind/internal/adapter/natsdispatch"
	"github.com/Strob0t/Hivemind/internal/adapter/natskv"
	"github.com/Strob0t/Hivemind/internal/adapter/otel"
	"github.com/Strob0t/Hivemind/internal/adapter/postgres"
	"github.com/Strob0t/Hivemind/internal/adapter/ristretto"
	"github.com/Strob0t/Hivemind/internal/adapter/storecache"
	"github.com/Strob0t/Hivemind/internal/adapter/tiered"
	"github.com/Strob0t/Hivemind/internal/adapter/ws"
	"github.com/Strob0t/Hivemind/internal/config"
	"github.com/Strob0t/Hivemind/internal/logger"
	"github.com/Strob0t/Hivemind/internal/port/auditlog"
	"github.com/Strob0t/Hivemind/internal/port/cache"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
	"github.com/Strob0t/Hivemind/internal/port/store"
	"github.com/Strob0t/Hivemind/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"postgres", cfg.Postgres.DSN != "",
		"nats", cfg.NATS.URL != "",
	)

	ctx := context.Background()

	shutdownOtel, err := otel.Init(ctx, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---
	var (
		st  store.Store
		log auditlog.Log
	)
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		st = postgres.NewStore(pool)
		log = postgres.NewAuditLog(pool)
	} else {
		slog.Info("no postgres dsn, using in-memory store")
		st = memstore.New()
		log = memstore.NewAuditLog()
	}

	// --- Messaging and dispatch ---
	var (
		queue   *hmnats.Queue
		gateway dispatch.Gateway
	)
	if cfg.NATS.URL != "" {
		queue, err = hmnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()
		gateway = natsdispatch.New(queue.Conn())
	} else {
		slog.Info("no nats url, using in-process dispatch gateway")
		gateway = localdispatch.New()
	}

	// --- Cache ---
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	var c cache.Cache = l1
	if queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L1TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		c = tiered.New(l1, natskv.New(kv), cfg.Cache.L1TTL)
	}
	st = storecache.New(st, c, cfg.Cache.L1TTL)

	// --- Services ---
	hub := ws.NewHub()

	var q messagequeue.Queue
	if queue != nil {
		q = queue
	}
	items := service.NewWorkItemService(st, log, q, hub)
	health := service.NewHealthService(st, log, q, hub, metrics, cfg.Breaker, cfg.Weights)
	registry := service.NewRegistryService(st, health)
	consensus := service.NewConsensusService(st, log, items, registry, health, gateway, q, hub, metrics, cfg.Consensus)
	router := service.NewRouterService(items, registry, health, consensus, gateway, metrics, cfg.Router, cfg.Consensus)
	ingest := service.NewIngestService(items)

	// --- HTTP ---
	handlers := &hmhttp.Handlers{
		Items:     items,
		Registry:  registry,
		Router:    router,
		Consensus: consensus,
		Ingest:    ingest,
	}

	r := chi.NewRouter()
	r.Use(hmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hmhttp.RequestID)
	r.Use(hmhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	hmhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
