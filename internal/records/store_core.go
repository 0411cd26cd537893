package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ingest/internal/config"
)

// Store manages record persistence backed by SQLite or PostgreSQL.
type Store struct {
	db       *sql.DB
	pool     *pgxpool.Pool
	dialect  dialect
	location string
	now      func() time.Time

	maxPollLimit  int
	maxQueryLimit int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 8
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	openTimeout             = 30 * time.Second
)

// PostgreSQL serialization_failure and deadlock_detected.
var retryablePgCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isRetryable(err error) bool {
	if isSQLiteBusy(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgCodes[pgErr.Code]
		return ok
	}
	return false
}

// retryOnBusy retries store contention (locked database, serialization
// failures). It never retries revision conflicts.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// withTx runs fn inside one transaction, committing on success and rolling
// back on any error. fn may run more than once when the store is contended.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Open connects to the configured store and applies pending migrations.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("open store: config is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	var (
		store *Store
		err   error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err = openSQLite(ctx, cfg)
	case config.DriverPostgres:
		store, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("open store: unsupported driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	store.now = func() time.Time { return time.Now().UTC() }
	store.maxPollLimit = cfg.Queue.MaxPollLimit
	store.maxQueryLimit = cfg.Queue.MaxQueryLimit
	store.location = cfg.StoreLocation()
	return store, nil
}

func sqliteDSN(path string, busyTimeoutMS int) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

func openSQLite(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dsn := sqliteDSN(cfg.Store.SQLitePath, cfg.Store.BusyTimeoutMS)
	if err := migrateSQLite(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{db: db, dialect: sqliteDialect}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := migratePostgres(cfg.Store.PostgresDSN); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Store.MaxOpenConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: stdlib.OpenDBFromPool(pool), pool: pool, dialect: postgresDialect}, nil
}

// Close closes the underlying database connections.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Driver reports the store dialect name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Location returns a printable, credential-free description of the store.
func (s *Store) Location() string {
	return s.location
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ensureContext(ctx)); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = func() time.Time { return now().UTC() }
}
