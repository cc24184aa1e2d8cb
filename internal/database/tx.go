package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/multierr"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       false,
		MaxRetries:     3,
	}
}

func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithRetry runs fn in a fresh transaction per attempt and retries only the
// transient classes reported by ClassifyError.
func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tx, err := db.BeginTx(ctx, &sql.TxOptions{
			Isolation: opts.IsolationLevel,
			ReadOnly:  opts.ReadOnly,
		})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
			err = fmt.Errorf("commit transaction: %w", err)
		} else {
			err = rollback(tx, err)
		}

		if !IsRetryable(err) {
			return err
		}
		if attempt == opts.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err)
		}

		lastErr = err

		select {
		case <-time.After(backoff + jitter(backoff)):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
	}

	return lastErr
}

func rollback(tx *sql.Tx, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		return multierr.Append(cause, fmt.Errorf("rollback failed: %w", rbErr))
	}
	return cause
}

func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d / 4)))
}
