package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrRecorderQuery is returned when a Recorder without a backing connection is queried.
var ErrRecorderQuery = errors.New("schemasync: recorder cannot run queries")

// Recorder is an ExecQuerier that captures every statement passed to Exec.
// With a nil Next it executes nothing, which gives a dry run; otherwise
// statements are forwarded and recorded only when they succeed.
type Recorder struct {
	Next ExecQuerier

	mu         sync.Mutex
	statements []string
}

// NewRecorder returns a Recorder forwarding to next, which may be nil.
func NewRecorder(next ExecQuerier) *Recorder {
	return &Recorder{Next: next}
}

type noopResult struct{}

func (noopResult) LastInsertId() (int64, error) { return 0, nil }
func (noopResult) RowsAffected() (int64, error) { return 0, nil }

func (r *Recorder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result = noopResult{}
	if r.Next != nil {
		var err error
		if res, err = r.Next.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	r.statements = append(r.statements, query)
	r.mu.Unlock()
	return res, nil
}

func (r *Recorder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if r.Next == nil {
		return nil, ErrRecorderQuery
	}
	return r.Next.QueryContext(ctx, query, args...)
}

// Statements returns a copy of the recorded statements in execution order.
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}
