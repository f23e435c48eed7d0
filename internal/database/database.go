package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/config"
	applogger "github.com/jeevibe/ale/internal/logger"
	"github.com/jeevibe/ale/internal/metrics"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrTransient marks a transaction conflict that exhausted its retry
// budget; callers translate this to apperr.Transient.
var ErrTransient = errors.New("transaction conflict: retry budget exhausted")

// DB wraps the database connection with additional functionality
type DB struct {
	*gorm.DB
	metrics *metrics.Metrics
	logger  *applogger.Logger
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, metrics *metrics.Metrics, log *applogger.Logger) (*DB, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Info,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Open database connection
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established successfully")

	return &DB{
		DB:      db,
		metrics: metrics,
		logger:  log,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database health
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Stats returns database statistics
func (db *DB) Stats() sql.DBStats {
	sqlDB, _ := db.DB.DB()
	stats := sqlDB.Stats()

	// Update metrics
	db.metrics.DBConnections.Set(float64(stats.OpenConnections))

	return stats
}

// WithMetrics wraps database operations with metrics
func (db *DB) WithMetrics(operation string) *gorm.DB {
	// Return a session that can be used for operations
	// Metrics will be recorded manually when needed
	return db.DB.Session(&gorm.Session{})
}

// RecordOperation records metrics for a database operation
func (db *DB) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	db.metrics.RecordDBOperation(operation, status, duration)
}

// RetryTransaction runs fn inside a GORM transaction, retrying on
// serialization/deadlock conflicts with exponential backoff and
// jitter per spec.md §4.7 ("retry with exponential backoff up to 5
// attempts, base 100ms, jitter ±25%"). fn must be idempotent on
// retry: it always starts from a fresh read inside the transaction.
func (db *DB) RetryTransaction(ctx context.Context, cfg config.SessionConfig, operation string, fn func(tx *gorm.DB) error) error {
	var lastErr error
	backoff := cfg.RetryBaseBackoff
	for attempt := 0; attempt <= cfg.TransactionMaxRetries; attempt++ {
		start := time.Now()
		lastErr = db.DB.WithContext(ctx).Transaction(fn)
		db.RecordOperation(operation, time.Since(start), lastErr)
		if lastErr == nil {
			return nil
		}
		if !isRetryableConflict(lastErr) {
			return lastErr
		}
		if attempt == cfg.TransactionMaxRetries {
			break
		}
		jitter := 1 + (rand.Float64()*2-1)*cfg.RetryJitterFraction
		sleep := time.Duration(float64(backoff) * jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	db.logger.WithContext(ctx).WithField("operation", operation).Warn("transaction retry budget exhausted")
	return fmt.Errorf("%s: %w: %v", operation, ErrTransient, lastErr)
}

func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	// Domain rejections (STATE_CONFLICT, NOT_FOUND, VALIDATION, ...)
	// are total function results, not transient store conflicts — a
	// retry can never resolve them. Only genuine store-level conflicts
	// (serialization failures, deadlocks, connection hiccups) surface
	// as plain gorm/driver errors and are worth retrying.
	if apperr.IsDomain(err) {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidTransaction) {
		return false
	}
	return true
}
