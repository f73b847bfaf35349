package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	// ErrConnection is returned when the database connection is unusable.
	ErrConnection = errors.New("schemasync: connection unusable")

	// ErrIntrospectionUnsupported is returned when a dialect cannot read part of its catalog.
	ErrIntrospectionUnsupported = errors.New("schemasync: introspection unsupported")

	// ErrNotImplemented is returned when a dialect does not support a primitive.
	ErrNotImplemented = errors.New("schemasync: not implemented by dialect")
)

// ConnectionError reports a connection level failure. It aborts the whole run.
type ConnectionError struct {
	Dialect string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("schemasync: %s connection: %v", e.Dialect, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// IntrospectionUnsupportedError reports that a catalog query is not available
// for a table. The introspector treats it as an empty result.
type IntrospectionUnsupportedError struct {
	Dialect string
	Table   string
	What    string
	Err     error
}

func (e *IntrospectionUnsupportedError) Error() string {
	return fmt.Sprintf("schemasync: %s cannot introspect %s of %q: %v", e.Dialect, e.What, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *IntrospectionUnsupportedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIntrospectionUnsupported.
func (e *IntrospectionUnsupportedError) Is(target error) bool {
	return target == ErrIntrospectionUnsupported
}

// DDLError reports a failed schema mutation.
type DDLError struct {
	Table     string
	Column    string
	Statement string
	Cause     error
}

func (e *DDLError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schemasync: ddl on %s.%s failed: %v", e.Table, e.Column, e.Cause)
	}
	return fmt.Sprintf("schemasync: ddl on %s failed: %v", e.Table, e.Cause)
}

// Unwrap returns the underlying driver error.
func (e *DDLError) Unwrap() error { return e.Cause }

// NotImplementedError reports a primitive the dialect cannot perform.
type NotImplementedError struct {
	Dialect   string
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("schemasync: %s does not implement %s", e.Dialect, e.Operation)
}

// Is reports whether target is ErrNotImplemented.
func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }

// IsNotImplemented returns true if err is or wraps a NotImplementedError.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsDDLError returns true if err is or wraps a DDLError.
func IsDDLError(err error) bool {
	var e *DDLError
	return errors.As(err, &e)
}

func notImplemented(dialect, op string) error {
	return &NotImplementedError{Dialect: dialect, Operation: op}
}

// isConnectionFailure reports driver errors that mean the connection itself is gone.
func isConnectionFailure(err error) bool {
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

// isMissingCatalog reports errors raised when a catalog view or function does not exist.
func isMissingCatalog(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42883", "42704":
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1109 || myErr.Number == 1146
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such function") ||
		strings.Contains(msg, "no such table-valued function")
}

// introspectionError classifies a catalog query failure.
func introspectionError(dialect, table, what string, err error) error {
	if isConnectionFailure(err) {
		return &ConnectionError{Dialect: dialect, Err: err}
	}
	if isMissingCatalog(err) {
		return &IntrospectionUnsupportedError{Dialect: dialect, Table: table, What: what, Err: err}
	}
	return fmt.Errorf("failed to read %s of %s: %w", what, table, err)
}
