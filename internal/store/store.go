// Package store persists normalized rows and reads back tag aggregates.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Store is a handle on the normalized database.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	retry   RetryPolicy
}

// Option tunes a Store.
type Option func(*options)

type options struct {
	retry        RetryPolicy
	maxOpenConns int
}

// WithRetryPolicy sets the backoff used for connection failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithMaxOpenConns caps the pool size. SQLite always uses one connection.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

func buildOptions(opts []Option) options {
	o := options{retry: DefaultRetryPolicy(), maxOpenConns: 8}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open connects to the database named by driver and dsn and verifies the
// connection, retrying connection failures with backoff.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	o := buildOptions(opts)

	db, err := sqlx.Open(d.Name, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", d.Name)
	}
	s := &Store{db: db, dialect: d, retry: o.retry}

	if d.Name == SQLite.Name {
		// an in-memory database lives only as long as its one connection
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetMaxOpenConns(o.maxOpenConns)
		db.SetMaxIdleConns(o.maxOpenConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if d.Name == SQLite.Name {
		pragmas := []string{`PRAGMA foreign_keys=ON`}
		if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
			pragmas = append(pragmas, `PRAGMA journal_mode=WAL`, `PRAGMA synchronous=NORMAL`)
		}
		for _, p := range pragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, errors.Wrap(err, p)
			}
		}
	}
	return s, nil
}

// New wraps an already open database. driver selects the dialect.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Store{db: sqlx.NewDb(db, d.Name), dialect: d, retry: o.retry}, nil
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the handle for ad-hoc reads.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the connection, retrying connection failures.
func (s *Store) Ping(ctx context.Context) error {
	return WithRetry(ctx, s.retry, "ping", func(ctx context.Context) error {
		return classify(s.db.PingContext(ctx), "ping")
	})
}

// inTx runs fn in a transaction that commits only when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err, "begin")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = classify(tx.Commit(), "commit")
	}()
	return fn(tx)
}
