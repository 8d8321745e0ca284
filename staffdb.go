package staffdb

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/papersync/staffdb/hooks"
)

// DB owns exactly one lazily-created PostgreSQL connection. The handle is
// opened on first use, reused across calls while open, and transparently
// re-established after Close. All operations are safe for concurrent use;
// a single mutex guards the handle and the implicit transaction.
type DB struct {
	mu       sync.Mutex
	resolver *Resolver
	cfg      *Config // resolved config, set once on first connect
	bun      *bun.DB
	tx       *bun.Tx // implicit transaction, at most one
}

// queryer is the execution target for a statement: the implicit
// transaction when one is open, otherwise the connection handle.
type queryer interface {
	NewRaw(query string, args ...any) *bun.RawQuery
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ queryer = (*bun.DB)(nil)
	_ queryer = (*bun.Tx)(nil)
)

// New creates a DB using the given base configuration. No connection is
// opened until the first operation needs one; connection parameters are
// resolved at that point (environment > config file > opt-in fallback).
func New(cfg Config) *DB {
	return NewWithResolver(NewResolver(cfg))
}

// NewWithResolver creates a DB with a custom Resolver.
func NewWithResolver(r *Resolver) *DB {
	return &DB{resolver: r}
}

// Connect ensures a live connection exists. It is a no-op when the handle
// is already open and responding; a dead handle is dropped and re-dialed.
// On failure the handle is left unset and a connection error is returned.
func (db *DB) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.bun != nil {
		if err := db.bun.PingContext(ctx); err == nil {
			return nil
		}
		// Handle reports dead: drop and re-establish.
		db.log().Warn("database handle is dead, reconnecting")
		db.closeLocked()
	}

	return db.connectLocked(ctx)
}

// connectLocked opens the single connection. Callers hold db.mu.
func (db *DB) connectLocked(ctx context.Context) error {
	if db.bun != nil {
		return nil
	}

	if db.cfg == nil {
		cfg, err := db.resolver.Resolve()
		if err != nil {
			return err
		}
		db.cfg = &cfg
	}
	cfg := *db.cfg

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN()),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
		pgdriver.WithWriteTimeout(cfg.WriteTimeout),
	)

	sqlDB := sql.OpenDB(connector)

	// One handle, never a pool.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	bunDB := bun.NewDB(sqlDB, pgdialect.New())

	if cfg.Logger != nil && (cfg.LogQueries || cfg.LogSlowQueries > 0) {
		bunDB.AddQueryHook(hooks.NewLoggerHook(cfg.Logger, cfg.LogQueries, cfg.LogSlowQueries))
	}
	if cfg.MetricsRegistry != nil {
		hook, err := hooks.NewMetricsHook(cfg.MetricsRegistry)
		if err != nil {
			_ = bunDB.Close()
			return &Error{
				Code:    CodeConnectionFailed,
				Message: "failed to create metrics hook",
				Op:      "Connect",
				Cause:   err,
			}
		}
		bunDB.AddQueryHook(hook)
	}
	if cfg.Tracer != nil {
		bunDB.AddQueryHook(hooks.NewTracingHook(cfg.Tracer))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := bunDB.PingContext(pingCtx); err != nil {
		_ = bunDB.Close()
		// Diagnostics carry everything except the password.
		db.log().Error("failed to connect to PostgreSQL",
			"host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User, "error", err)
		return &Error{
			Code:    CodeConnectionFailed,
			Message: "failed to connect to database at " + cfg.Addr(),
			Op:      "Connect",
			Cause:   err,
		}
	}

	db.bun = bunDB
	db.log().Info("connected to PostgreSQL",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User)
	return nil
}

// ensureLocked returns the execution target, auto-connecting when allowed.
// Callers hold db.mu.
func (db *DB) ensureLocked(ctx context.Context, op string) (queryer, error) {
	if db.tx != nil {
		return db.tx, nil
	}
	if db.bun == nil {
		if db.resolver.base.DisableAutoConnect {
			return nil, &Error{
				Code:    CodeNotConnected,
				Message: "no active connection and auto-connect is disabled",
				Op:      op,
			}
		}
		if err := db.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return db.bun, nil
}

// Handle returns the live connection handle for direct access,
// auto-connecting when necessary. It bypasses the implicit transaction.
func (db *DB) Handle(ctx context.Context) (*bun.DB, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.bun == nil {
		if db.resolver.base.DisableAutoConnect {
			return nil, &Error{
				Code:    CodeNotConnected,
				Message: "no active connection and auto-connect is disabled",
				Op:      "Handle",
			}
		}
		if err := db.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return db.bun, nil
}

// Connected reports whether a connection handle is currently open. It does
// not dial and does not verify liveness.
func (db *DB) Connected() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bun != nil
}

// Select executes a read query and scans all rows into dest, which must be
// a pointer to a slice. The query runs on the implicit transaction when
// one is open.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	q, err := db.ensureLocked(ctx, "Select")
	if err != nil {
		return err
	}

	if err := q.NewRaw(query, args...).Scan(ctx, dest); err != nil {
		db.failLocked()
		return wrapError(err, "Select")
	}
	return nil
}

// SelectOne executes a read query expected to yield a single row and scans
// it into dest. A missing row is reported as a not-found error, which does
// not abort the implicit transaction.
func (db *DB) SelectOne(ctx context.Context, dest any, query string, args ...any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	q, err := db.ensureLocked(ctx, "SelectOne")
	if err != nil {
		return err
	}

	if err := q.NewRaw(query, args...).Scan(ctx, dest); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			db.failLocked()
		}
		return wrapError(err, "SelectOne")
	}
	return nil
}

// Exec executes a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	q, err := db.ensureLocked(ctx, "Exec")
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		db.failLocked()
		return 0, wrapError(err, "Exec")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// failLocked rolls back the implicit transaction after an execution
// failure, leaving the manager ready for the next statement. Callers hold
// db.mu.
func (db *DB) failLocked() {
	if db.tx == nil {
		return
	}
	if err := db.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		db.log().Warn("rollback after query failure", "error", err)
	}
	db.tx = nil
}

// Begin starts the implicit transaction. Subsequent statements run inside
// it until Commit or Rollback. Calling Begin inside an open transaction is
// a no-op.
func (db *DB) Begin(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.tx != nil {
		return nil
	}
	if db.bun == nil {
		if db.resolver.base.DisableAutoConnect {
			return &Error{
				Code:    CodeNotConnected,
				Message: "no active connection and auto-connect is disabled",
				Op:      "Begin",
			}
		}
		if err := db.connectLocked(ctx); err != nil {
			return err
		}
	}

	tx, err := db.bun.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return wrapError(err, "Begin")
	}
	db.tx = &tx
	return nil
}

// Commit commits the implicit transaction. It is a no-op when no
// transaction (or no connection) is open.
func (db *DB) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.tx == nil {
		return nil
	}
	err := db.tx.Commit()
	db.tx = nil
	if err != nil {
		return wrapError(err, "Commit")
	}
	return nil
}

// Rollback aborts the implicit transaction. It is a no-op when no
// transaction (or no connection) is open.
func (db *DB) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.tx == nil {
		return nil
	}
	err := db.tx.Rollback()
	db.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return wrapError(err, "Rollback")
	}
	return nil
}

// Close rolls back any open implicit transaction and closes the
// connection. It is idempotent; the next operation re-establishes the
// handle.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closeLocked()
}

// closeLocked releases the handle. Callers hold db.mu.
func (db *DB) closeLocked() error {
	if db.tx != nil {
		if err := db.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			db.log().Warn("rollback on close", "error", err)
		}
		db.tx = nil
	}
	if db.bun == nil {
		return nil
	}
	err := db.bun.Close()
	db.bun = nil
	db.log().Info("database connection closed")
	if err != nil {
		return wrapError(err, "Close")
	}
	return nil
}

// Session runs fn inside a scoped acquisition: connect, begin, and on
// return commit (success) or roll back (error or panic), then close the
// connection.
func (db *DB) Session(ctx context.Context, fn func(db *DB) error) error {
	if err := db.Connect(ctx); err != nil {
		return err
	}
	if err := db.Begin(ctx); err != nil {
		_ = db.Close()
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = db.Rollback()
			_ = db.Close()
			panic(p)
		}
	}()

	if err := fn(db); err != nil {
		_ = db.Rollback()
		_ = db.Close()
		return err
	}

	if err := db.Commit(); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

// log returns the logger for manager diagnostics: the resolved config's
// when available, otherwise the base config's.
func (db *DB) log() *slog.Logger {
	if db.cfg != nil {
		return db.cfg.log()
	}
	return db.resolver.base.log()
}
