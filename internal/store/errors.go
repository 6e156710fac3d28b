package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tweetnorm/internal/model"
)

// opError tags a storage error with its failure class while keeping the cause.
type opError struct {
	class error
	op    string
	err   error
}

func (e *opError) Error() string {
	return e.op + ": " + e.class.Error() + ": " + e.err.Error()
}

func (e *opError) Unwrap() []error { return []error{e.class, e.err} }

// classify wraps err with model.ErrConstraintViolation or
// model.ErrConnectionFailure when it is one; other errors are only annotated.
func classify(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrConstraintViolation), errors.Is(err, model.ErrConnectionFailure):
		return err
	case isConstraint(err):
		return &opError{class: model.ErrConstraintViolation, op: op, err: err}
	case isConnection(err):
		return &opError{class: model.ErrConnectionFailure, op: op, err: err}
	}
	return errors.Wrap(err, op)
}

func isConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 23: integrity constraint violation
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func isConnection(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; 57P01..03: server shutting down
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsConstraintViolation reports whether err is a rejected write.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, model.ErrConstraintViolation) || isConstraint(err)
}

// IsConnectionFailure reports whether err is a lost or unreachable connection.
func IsConnectionFailure(err error) bool {
	return errors.Is(err, model.ErrConnectionFailure) || isConnection(err)
}
