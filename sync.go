package schemasync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/introspect"
	"github.com/tordrt/schemasync/internal/plan"
	"github.com/tordrt/schemasync/internal/schema"
)

// ApplyOptions controls an Apply run.
type ApplyOptions struct {
	// DryRun plans and renders every action without touching the database.
	DryRun bool
	// AllowDestructive permits actions that drop stored data.
	AllowDestructive bool
	// Transactional runs the plan inside one transaction. It fails with
	// ErrTransactionalUnsupported on dialects without transactional DDL.
	Transactional bool
}

// Result describes an Apply run.
type Result struct {
	RunID string
	// Planned is the full ordered plan.
	Planned []Action
	// Applied lists the actions that succeeded, in order.
	Applied  []Action
	Warnings []Warning
	// Withheld lists destructive changes left out of the plan.
	Withheld []Withheld
	// Statements is the SQL that ran, or would run for a dry run.
	Statements []string
	DryRun     bool
	// RolledBack is set when a transactional run failed and was rolled back.
	RolledBack bool
}

// run is the state shared by one Diff, Snapshot or Apply call.
type run struct {
	id      string
	log     *slog.Logger
	conn    *sql.Conn
	adapter db.Adapter
}

func (s *Synchronizer) begin(ctx context.Context) (*run, error) {
	id := uuid.NewString()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &db.ConnectionError{Dialect: s.dialect, Err: err}
	}
	adapter, err := s.adapterFor(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &run{
		id:      id,
		log:     s.opts.logger.With("run_id", id, "dialect", s.dialect),
		conn:    conn,
		adapter: adapter,
	}, nil
}

func (r *run) close() {
	if err := r.conn.Close(); err != nil {
		r.log.Warn("schemasync: releasing connection", "error", err)
	}
}

func (s *Synchronizer) adapterFor(conn ExecQuerier) (db.Adapter, error) {
	adapter, err := s.opts.factory(s.dialect, conn, db.Options{SchemaName: s.opts.schemaName})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDialect, err)
	}
	return adapter, nil
}

// Snapshot reads the live schema.
func (s *Synchronizer) Snapshot(ctx context.Context) (*Schema, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.close()
	return s.snapshot(ctx, r)
}

func (s *Synchronizer) snapshot(ctx context.Context, r *run) (*schema.Schema, error) {
	live, err := introspect.New(r.adapter, s.opts.exclude, r.log).Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	r.log.Debug("schemasync: snapshot", "tables", len(live.Tables))
	return live, nil
}

// Diff compares the model with the live schema. An introspection failure
// aborts the call with no partial result.
func (s *Synchronizer) Diff(ctx context.Context) ([]Diff, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.close()

	live, err := s.snapshot(ctx, r)
	if err != nil {
		return nil, err
	}
	diffs := diff.Compute(s.model, live, r.adapter)
	r.log.Info("schemasync: diff computed", "diffs", len(diffs))
	return diffs, nil
}

// Apply plans diffs and executes the actions one at a time. The first failing
// action stops the run: the returned Result lists what was applied before it
// and the error is an *ApplyError. Constraint and index actions the dialect
// cannot perform are skipped and reported in Result.Warnings.
func (s *Synchronizer) Apply(ctx context.Context, diffs []Diff, opts ApplyOptions) (*Result, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.close()

	res := &Result{RunID: r.id, DryRun: opts.DryRun}
	if opts.Transactional && !r.adapter.SupportsTransactionalDDL() {
		return res, fmt.Errorf("%w: %s", ErrTransactionalUnsupported, s.dialect)
	}

	p := plan.New(r.adapter).Plan(ctx, diffs, plan.Options{AllowDestructive: opts.AllowDestructive})
	res.Planned = p.Actions
	res.Withheld = p.Withheld
	for _, w := range p.Withheld {
		r.log.Warn("schemasync: destructive change withheld", "diff", w.Diff.String())
	}

	var (
		target ExecQuerier = r.conn
		tx     *sql.Tx
	)
	switch {
	case opts.DryRun:
		target = nil
	case opts.Transactional:
		if tx, err = r.conn.BeginTx(ctx, nil); err != nil {
			return res, &db.ConnectionError{Dialect: s.dialect, Err: err}
		}
		target = tx
	}

	rec := db.NewRecorder(target)
	exec, err := s.adapterFor(rec)
	if err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		return res, err
	}

	r.log.Info("schemasync: applying plan", "actions", len(p.Actions), "withheld", len(p.Withheld), "dry_run", opts.DryRun)
	for _, a := range p.Actions {
		err := a.Apply(ctx, exec)
		switch {
		case err == nil:
			res.Applied = append(res.Applied, a)
			r.log.Debug("schemasync: applied", "action", a.String())
		case a.Kind.Optional() && db.IsNotImplemented(err):
			res.Warnings = append(res.Warnings, Warning{Action: a, Err: err})
			r.log.Warn("schemasync: action skipped", "action", a.String(), "error", err)
		default:
			res.Statements = rec.Statements()
			applyErr := &ApplyError{Action: a, Err: err}
			r.log.Error("schemasync: action failed", "action", a.String(), "applied", len(res.Applied), "error", err)
			if tx != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					return res, errors.Join(applyErr, &RollbackError{Err: rbErr})
				}
				res.RolledBack = true
			}
			return res, applyErr
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			res.Statements = rec.Statements()
			return res, fmt.Errorf("schemasync: commit: %w", err)
		}
	}
	res.Statements = rec.Statements()
	r.log.Info("schemasync: plan applied", "applied", len(res.Applied), "warnings", len(res.Warnings))
	return res, nil
}
