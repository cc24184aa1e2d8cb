package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/logger"
)

const pingTimeout = 5 * time.Second

// NewConnection opens the pool and keeps pinging until the database answers or
// cfg.ConnectAttempts is exhausted.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logg *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	if err := pingWithBackoff(ctx, db, attempts, cfg.ConnectBackoff, logg); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func pingWithBackoff(ctx context.Context, db *sql.DB, attempts int, backoff time.Duration, logg *logger.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()

		if lastErr == nil {
			return nil
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{"attempt": attempt, "max_attempts": attempts})
			logg.Warn(logCtx, "database ping failed")
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(backoff + jitter(backoff)):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return fmt.Errorf("ping database after %d attempts: %w", attempts, lastErr)
}
