// Package postgres opens the lib/pq pool shared by the index, API key and
// analytics stores and keeps their schema current.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/resilience"
)

// migrationLock serialises Migrate across services starting together.
const migrationLock = 0x6d7369 // "msi"

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and waits for the server to answer, retrying while it
// is still starting. Bad credentials or a missing database fail at once.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		DB:     db,
		logger: slog.Default().With("component", "postgres", "host", cfg.Host, "database", cfg.Database),
	}
	retry := resilience.RetryConfig{Attempts: 5, Backoff: resilience.Backoff{Initial: 500 * time.Millisecond}}
	err = resilience.Retry(ctx, "postgres connect", retry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			if isFatal(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	c.logger.Info("connected to postgres")
	return c, nil
}

// isFatal reports server errors that waiting will not fix: authentication
// failures (class 28) and unknown databases (3D000).
func isFatal(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping backs the readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn in a transaction, committing if it returns nil and rolling
// back otherwise, including when fn panics.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Error("rollback failed", "error", rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Migrate applies the schema under a transaction-scoped advisory lock.
func (c *Client) Migrate(ctx context.Context) error {
	start := time.Now()
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	c.logger.Info("schema up to date", "statements", len(schema), "took", time.Since(start).Round(time.Millisecond))
	return nil
}
