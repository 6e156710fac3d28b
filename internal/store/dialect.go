package store

import (
	"strings"

	"github.com/pkg/errors"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string
	// LockRows is appended to reads of rows that are about to be merged.
	LockRows string
	// Materialized views need an explicit refresh.
	Materialized bool
	schema       []string
	views        []string
}

var (
	// Postgres is the production backend, reached through pgx.
	Postgres = Dialect{
		Name:         "pgx",
		LockRows:     " FOR UPDATE",
		Materialized: true,
		schema:       postgresSchema,
		views:        postgresViews,
	}
	// SQLite is the embedded backend used for local runs and tests.
	SQLite = Dialect{
		Name:   "sqlite",
		schema: sqliteSchema,
		views:  sqliteViews,
	}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, errors.Errorf("unsupported storage driver %q", driver)
}
