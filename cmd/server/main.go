package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeevibe/ale/internal/cache"
	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/events"
	"github.com/jeevibe/ale/internal/httpapi"
	"github.com/jeevibe/ale/internal/irt"
	"github.com/jeevibe/ale/internal/jobs"
	"github.com/jeevibe/ale/internal/logger"
	"github.com/jeevibe/ale/internal/metrics"
	"github.com/jeevibe/ale/internal/questionindex"
	"github.com/jeevibe/ale/internal/scheduler"
	"github.com/jeevibe/ale/internal/secrets"
	"github.com/jeevibe/ale/internal/selection"
	"github.com/jeevibe/ale/internal/session"
	"github.com/jeevibe/ale/internal/snapshot"
	"github.com/jeevibe/ale/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.New(&cfg.Logging)
	log.Infof("Starting Adaptive Learning Engine")

	// Initialize metrics
	metricsInstance := metrics.New()

	// Initialize database
	db, err := database.New(&cfg.Database, metricsInstance, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// Initialize Redis cache
	redisClient, err := cache.New(&cfg.Redis, metricsInstance, log)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize cron-secret resolver (Vault-backed in production,
	// plain env var otherwise)
	resolver, err := secrets.New(cfg.Vault)
	if err != nil {
		log.Fatalf("Failed to initialize secrets resolver: %v", err)
	}

	// Initialize Kafka event publisher
	emitter := events.New(cfg.Kafka, log)

	// Initialize question index and selection planner
	index := questionindex.New(db.DB, redisClient)
	planner := selection.New(index)

	// Initialize snapshot writer
	snap := snapshot.New(db)

	irtParams := irt.Params{
		MaxIterations: cfg.IRT.MaxIterations,
		Epsilon:       cfg.IRT.ConvergenceEpsilon,
		Bounds: irt.Bounds{
			ThetaMin: cfg.IRT.ThetaMin,
			ThetaMax: cfg.IRT.ThetaMax,
			SEMin:    cfg.IRT.SEMin,
			SEMax:    cfg.IRT.SEMax,
		},
	}

	// Initialize session coordinator
	coord := session.New(db, cfg.Session, cfg.Tier, irtParams, snap, emitter)

	// Initialize scheduled-job runner
	jobRunner := jobs.New(db, snap, emitter, cfg.Scheduler, cfg.Tier, log)

	// Initialize HTTP surface
	srv := httpapi.New(httpapi.Deps{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Index:    index,
		Planner:  planner,
		Coord:    coord,
		Snapshot: snap,
		Jobs:     jobRunner,
		Emitter:  emitter,
		Resolver: resolver,
		Metrics:  metricsInstance,
		Log:      log,
	})

	// Local/dev in-process scheduler, gated off by default: a real
	// deployment drives /internal/jobs/* from its own external cron
	// caller instead (spec.md §6).
	var localTicker *scheduler.Ticker
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	defer tickerCancel()
	if cfg.Scheduler.LocalTickerEnabled {
		localTicker = scheduler.New(jobRunner, cfg.Scheduler.LocalTickerInterval, log)
		go localTicker.Start(tickerCtx)
	}

	// Start HTTP server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if localTicker != nil {
		tickerCancel()
		localTicker.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// Close database connections
	if err := db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	// Close Redis connections
	if err := redisClient.Close(); err != nil {
		log.Errorf("Error closing Redis: %v", err)
	}

	log.Infof("Server shutdown complete")
}
