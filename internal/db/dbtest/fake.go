// Package dbtest provides an in-memory db.Adapter for tests.
package dbtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/schema"
)

// Fake is a scriptable db.Adapter. Reads come from the exported maps; writes
// are recorded in Calls and fail when listed in Fail.
type Fake struct {
	db.TypeMapper

	Name          string
	Transactional bool
	// NoConstraints makes the constraint primitives return NotImplementedError.
	NoConstraints bool
	// Cast overrides CastColumnType. Nil means identical types only.
	Cast func(oldType, newType string) bool

	Tables      []string
	Columns     map[string][]schema.Column
	Indices     map[string][]schema.Index
	ForeignKeys map[string][]schema.ForeignKey
	// Unsupported marks "<what>:<table>" reads as IntrospectionUnsupported.
	Unsupported map[string]bool
	// Fail maps a call as recorded in Calls to the error it returns.
	Fail map[string]error
	// ListErr is returned by ListTables when set.
	ListErr error

	mu    sync.Mutex
	Calls []string
}

// New returns a Fake using the Postgres type mapping.
func New() *Fake {
	return &Fake{
		TypeMapper:  db.NewPostgresAdapter(nil, ""),
		Name:        db.Postgres,
		Columns:     make(map[string][]schema.Column),
		Indices:     make(map[string][]schema.Index),
		ForeignKeys: make(map[string][]schema.ForeignKey),
		Unsupported: make(map[string]bool),
		Fail:        make(map[string]error),
	}
}

// AddTable registers a live table.
func (f *Fake) AddTable(name string, cols ...schema.Column) *Fake {
	f.Tables = append(f.Tables, name)
	f.Columns[name] = cols
	return f
}

func (f *Fake) Dialect() string                { return f.Name }
func (f *Fake) SupportsTransactionalDDL() bool { return f.Transactional }

func (f *Fake) ListTables(context.Context) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]string(nil), f.Tables...), nil
}

func (f *Fake) unsupported(what, table string) error {
	if f.Unsupported[what+":"+table] {
		return &db.IntrospectionUnsupportedError{Dialect: f.Name, Table: table, What: what, Err: fmt.Errorf("no catalog")}
	}
	return nil
}

func (f *Fake) GetColumns(_ context.Context, table string) ([]schema.Column, error) {
	if err := f.unsupported("columns", table); err != nil {
		return nil, err
	}
	return append([]schema.Column(nil), f.Columns[table]...), nil
}

func (f *Fake) GetIndices(_ context.Context, table string) ([]schema.Index, error) {
	if err := f.unsupported("indices", table); err != nil {
		return nil, err
	}
	return append([]schema.Index(nil), f.Indices[table]...), nil
}

func (f *Fake) GetForeignKeys(_ context.Context, table string) ([]schema.ForeignKey, error) {
	if err := f.unsupported("foreign keys", table); err != nil {
		return nil, err
	}
	return append([]schema.ForeignKey(nil), f.ForeignKeys[table]...), nil
}

func (f *Fake) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[call]; err != nil {
		return err
	}
	f.Calls = append(f.Calls, call)
	return nil
}

func (f *Fake) CreateTable(_ context.Context, def schema.TableDef) error {
	return f.record("CreateTable " + def.Name)
}

func (f *Fake) DropTable(_ context.Context, table string) error {
	return f.record("DropTable " + table)
}

func (f *Fake) AddColumn(_ context.Context, table string, def schema.ColumnDef) error {
	return f.record("AddColumn " + table + "." + def.Name)
}

func (f *Fake) RemoveColumn(_ context.Context, table, name string) error {
	return f.record("RemoveColumn " + table + "." + name)
}

func (f *Fake) RenameColumn(_ context.Context, table, oldName, newName string) error {
	return f.record("RenameColumn " + table + "." + oldName + " " + newName)
}

func (f *Fake) ChangeColumnType(_ context.Context, table, name, _ string, def schema.ColumnDef) error {
	return f.record("ChangeColumnType " + table + "." + name + " " + def.Type)
}

func (f *Fake) AddConstraint(_ context.Context, table string, fk schema.ForeignKey) error {
	if f.NoConstraints {
		return &db.NotImplementedError{Dialect: f.Name, Operation: "AddConstraint"}
	}
	return f.record("AddConstraint " + table + "." + fk.Name)
}

func (f *Fake) DropConstraint(_ context.Context, table, name string) error {
	if f.NoConstraints {
		return &db.NotImplementedError{Dialect: f.Name, Operation: "DropConstraint"}
	}
	return f.record("DropConstraint " + table + "." + name)
}

func (f *Fake) AddIndex(_ context.Context, table string, idx schema.Index) error {
	return f.record("AddIndex " + table + "." + idx.Name)
}

func (f *Fake) DropIndex(_ context.Context, table, name string) error {
	return f.record("DropIndex " + table + "." + name)
}

func (f *Fake) CastColumnType(_ context.Context, _, _, oldType, newType string) bool {
	if f.Cast != nil {
		return f.Cast(oldType, newType)
	}
	return f.NormalizeType(oldType) == f.NormalizeType(newType)
}

var _ db.Adapter = (*Fake)(nil)
