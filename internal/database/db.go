package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier runs statements. A pool, a connection and a transaction all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolConfig holds pool sizing.
type PoolConfig struct {
	URL             string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

var (
	pool     *pgxpool.Pool
	poolMu   sync.RWMutex
	poolOnce sync.Once
)

// Connect creates the shared connection pool (safe for concurrent use)
func Connect(ctx context.Context, cfg PoolConfig) error {
	var initErr error
	poolOnce.Do(func() {
		config, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			initErr = fmt.Errorf("error parsing database config: %w", err)
			return
		}

		if cfg.MaxConnections > 0 {
			config.MaxConns = int32(cfg.MaxConnections)
		}
		if cfg.MinConnections > 0 {
			config.MinConns = int32(cfg.MinConnections)
		}
		if cfg.MaxConnLifetime > 0 {
			config.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			config.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
		config.HealthCheckPeriod = 1 * time.Minute

		newPool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			initErr = fmt.Errorf("error creating connection pool: %w", err)
			return
		}

		if err := newPool.Ping(ctx); err != nil {
			newPool.Close()
			initErr = fmt.Errorf("error connecting to database: %w", err)
			return
		}

		poolMu.Lock()
		pool = newPool
		poolMu.Unlock()
	})

	if initErr != nil {
		poolOnce = sync.Once{} // reset on failure
		return initErr
	}
	return nil
}

// Close closes the database connection pool
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
	poolOnce = sync.Once{}
}

// Pool returns the connection pool
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

// Status pings the database
func Status(ctx context.Context) error {
	p := Pool()
	if p == nil {
		return fmt.Errorf("database not initialized")
	}
	return p.Ping(ctx)
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func WithTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
