// Package postgres wraps a lib/pq connection pool. Every statement runs
// inside InTx or ReadTx, and Retriable tells transient failures apart from
// ones a retry cannot fix.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/resilience"
)

// connectRetry is how long Connect keeps trying while the server comes up.
var connectRetry = resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}

type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// Connect opens the pool and waits for the server to answer a ping. Errors
// the server returns on purpose, such as a rejected password, are not
// retried.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		db:     db,
		logger: slog.Default().With("component", "postgres", "host", cfg.Host, "database", cfg.Database),
	}
	err = resilience.Retry(ctx, "postgres-connect", connectRetry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := c.Ping(pingCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// Only this attempt timed out.
			return err
		}
		return Classify(err)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	c.logger.Info("connected to postgres")
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Ping checks that a connection can still be obtained.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}
	return nil
}

// InTx runs fn in a read-write transaction, committing on success and
// rolling back when fn fails.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.run(ctx, nil, fn)
}

// ReadTx runs fn in a read-only transaction on one repeatable-read snapshot,
// so a long scan sees no concurrent writes.
func (c *Client) ReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (c *Client) run(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Retriable reports whether err looks transient: a dropped or refused
// connection, or a server error in a class that clears up by itself.
// Context errors, rejected statements and scan failures are not.
func Retriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback: serialization failure, deadlock
			"53", // insufficient resources
			"57": // operator intervention: shutdown, cannot connect now
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}

// Classify marks err as permanent for resilience.Retry unless it is
// Retriable.
func Classify(err error) error {
	if err == nil || Retriable(err) {
		return err
	}
	return resilience.Permanent(err)
}
