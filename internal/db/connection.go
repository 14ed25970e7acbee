package db

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/logging"
)

// Options configures a pool.
type Options struct {
	URL string
	// MaxConns defaults to 4: a table view needs at most a count, a page and
	// a few option catalogs at once.
	MaxConns int
	// StatementTimeout is sent as the session's statement_timeout. Zero
	// leaves the server default.
	StatementTimeout time.Duration
	Logger           *zap.Logger
}

// DB is a pool tagged with application_name=gridsync.
type DB struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens the pool described by opts and pings it.
func Connect(ctx context.Context, opts Options) (*DB, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection URL: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	config.MaxConns = int32(maxConns)
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	params := config.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = "gridsync"
	}
	if opts.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	logger := logging.OrNop(opts.Logger)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("database connected",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database),
		zap.Int32("max_conns", config.MaxConns))
	return &DB{pool: pool, logger: logger}, nil
}

// Close releases every connection. Later calls are no-ops.
func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.pool == nil {
		return
	}
	st := db.pool.Stat()
	db.logger.Debug("closing database pool",
		zap.Int64("acquires", st.AcquireCount()),
		zap.Duration("acquire_wait", st.AcquireDuration()))
	db.pool.Close()
	db.pool = nil
}

func (db *DB) acquirePool() (*pgxpool.Pool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.pool == nil {
		return nil, ErrClosed
	}
	return db.pool, nil
}

// Query runs sql outside a transaction.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := db.acquirePool()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// WithTx runs fn in a read-write transaction and commits when it returns
// nil. A panic in fn rolls back and re-panics.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.inTx(ctx, pgx.TxOptions{}, fn)
}

// WithReadTx runs fn in a read-only repeatable-read transaction, so a count
// and the page it describes see the same snapshot.
func (db *DB) WithReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.inTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, fn)
}

func (db *DB) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	pool, err := db.acquirePool()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
