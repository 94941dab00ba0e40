// Command api is the Scoracle Live broadcast server: the command/query API
// for live fixtures and the WebSocket push channel.
//
// Usage:
//
//	scoracle-live
//	LIVE_PERSISTENCE=memory API_PORT=8080 scoracle-live
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

	"github.com/joho/godotenv"

	"github.com/albapepper/scoracle-live/internal/api"
	"github.com/albapepper/scoracle-live/internal/api/handler"
	"github.com/albapepper/scoracle-live/internal/broadcast"
	"github.com/albapepper/scoracle-live/internal/cache"
	"github.com/albapepper/scoracle-live/internal/config"
	"github.com/albapepper/scoracle-live/internal/db"
	"github.com/albapepper/scoracle-live/internal/engine"
	"github.com/albapepper/scoracle-live/internal/listener"
	"github.com/albapepper/scoracle-live/internal/maintenance"
	"github.com/albapepper/scoracle-live/internal/relay"
	"github.com/albapepper/scoracle-live/internal/store"
	"github.com/albapepper/scoracle-live/internal/subscription"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Persistence
	var (
		persist store.Persistence
		pinger  handler.Pinger
		purger  maintenance.Purger
	)
	switch cfg.Persistence {
	case config.PersistencePostgres:
		if cfg.AutoMigrate {
			logger.Info("Applying migrations...")
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				logger.Error("Migration failed", "error", err)
				os.Exit(1)
			}
		}
		logger.Info("Connecting to database...")
		pool, err := db.New(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
		pg := store.NewPGPersistence(pool.Pool)
		persist, pinger, purger = pg, pool, pg
	default:
		logger.Warn("Running with in-memory persistence; state is lost on restart")
		persist = store.NewMemoryPersistence()
	}

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Event relay (optional)
	var regOpts []subscription.Option
	var hubOpts []broadcast.Option
	if cfg.AMQPURL != "" {
		rl, err := relay.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("Failed to connect event relay", "error", err)
			os.Exit(1)
		}
		defer rl.Close()
		rl.Start(ctx)
		regOpts = append(regOpts, subscription.WithMirror(rl))
		hubOpts = append(hubOpts, broadcast.WithMirror(rl))
	} else {
		logger.Info("Event relay disabled (no AMQP_URL)")
	}

	// Core components
	st := store.New(persist, store.Options{Timeout: cfg.StoreTimeout}, logger)
	registry := subscription.New(logger, regOpts...)
	hub := broadcast.NewHub(registry, logger, hubOpts...)
	eng := engine.New(st, hub, registry, engine.Options{
		TickInterval:    cfg.ClockTickInterval,
		TickMinutes:     cfg.ClockTickMinutes,
		MinuteTolerance: cfg.EventMinuteTolerance,
		MaxCheer:        cfg.MaxCheerPerRequest,
	}, logger)
	defer eng.Close()

	if err := eng.Recover(ctx); err != nil {
		logger.Error("Failed to recover live fixtures", "error", err)
		os.Exit(1)
	}

	// Operator commands from liveops (postgres only)
	if cfg.Persistence == config.PersistencePostgres {
		go listener.Start(ctx, cfg.DatabaseURL, eng, logger)
	}

	// Start maintenance tickers (archive retry, eviction, purge)
	go maintenance.New(st, appCache, purger, maintenance.FromAppConfig(cfg), logger).Start(ctx)

	// Create router
	h := handler.New(eng, registry, appCache, cfg, pinger, logger)
	router := api.NewRouter(h, cfg)

	// Create HTTP server. No WriteTimeout: WebSocket writes carry their own deadline.
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Scoracle Live API",
			"addr", addr,
			"environment", cfg.Environment,
			"persistence", cfg.Persistence)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
