package schemasync

import (
	"errors"
	"fmt"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/plan"
)

// Errors reported by the dialect adapters.
var (
	ErrConnection               = db.ErrConnection
	ErrIntrospectionUnsupported = db.ErrIntrospectionUnsupported
	ErrNotImplemented           = db.ErrNotImplemented
)

type (
	ConnectionError               = db.ConnectionError
	IntrospectionUnsupportedError = db.IntrospectionUnsupportedError
	DDLError                      = db.DDLError
	NotImplementedError           = db.NotImplementedError
)

var (
	// ErrTransactionalUnsupported is returned by a transactional Apply on a
	// dialect whose DDL commits implicitly.
	ErrTransactionalUnsupported = errors.New("schemasync: dialect does not support transactional DDL")

	// ErrUnsupportedDialect is returned for a dialect without an adapter.
	ErrUnsupportedDialect = errors.New("schemasync: unsupported dialect")
)

// ApplyError reports the action that stopped an Apply run.
type ApplyError struct {
	Action plan.Action
	Err    error
}

// Error returns the error string.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("schemasync: %s: %v", e.Action, e.Err)
}

// Unwrap returns the adapter error.
func (e *ApplyError) Unwrap() error { return e.Err }

// IsApplyError returns true if the error is an ApplyError.
func IsApplyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ApplyError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred while rolling back a
// transactional run.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("schemasync: rollback: %v", e.Err)
}

// Unwrap returns the rollback error.
func (e *RollbackError) Unwrap() error { return e.Err }

// Warning is an optional action the dialect declined. The run continued
// without it.
type Warning struct {
	Action plan.Action
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("skipped %s: %v", w.Action, w.Err)
}
