// Package plan turns diffs into dependency-ordered schema actions.
package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/schema"
)

// Kind identifies an adapter primitive
type Kind int

const (
	CreateTable Kind = iota
	DropTable
	AddColumn
	RemoveColumn
	RenameColumn
	ChangeColumnType
	AddConstraint
	DropConstraint
	AddIndex
	DropIndex
)

var kindNames = [...]string{
	CreateTable:      "CreateTable",
	DropTable:        "DropTable",
	AddColumn:        "AddColumn",
	RemoveColumn:     "RemoveColumn",
	RenameColumn:     "RenameColumn",
	ChangeColumnType: "ChangeColumnType",
	AddConstraint:    "AddConstraint",
	DropConstraint:   "DropConstraint",
	AddIndex:         "AddIndex",
	DropIndex:        "DropIndex",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Optional reports whether a dialect may decline the primitive. Declined
// optional actions are skipped with a warning instead of failing the run.
func (k Kind) Optional() bool {
	switch k {
	case AddConstraint, DropConstraint, AddIndex, DropIndex:
		return true
	default:
		return false
	}
}

// Action is one schema mutation. Only the fields its Kind needs are set.
type Action struct {
	Kind  Kind
	Table string
	// Column is the affected column; for RenameColumn the current name.
	Column  string
	NewName string
	// OldType is the live type of a ChangeColumnType column.
	OldType string
	// Def is the column to add or the new definition to change to.
	Def schema.ColumnDef
	// Create is the table a CreateTable action creates.
	Create     *schema.TableDef
	ForeignKey *schema.ForeignKey
	Index      *schema.Index
	// Name is the constraint or index a Drop action removes.
	Name string

	// Source is the diff the action resolves.
	Source *diff.Diff

	phase int
}

// Phase returns the execution phase, 1 through 5.
func (a *Action) Phase() int { return a.phase }

// Destructive reports whether the action drops stored data.
func (a *Action) Destructive() bool {
	return a.Kind == RemoveColumn || a.Kind == DropTable
}

// Apply performs the action through adapter. It is the only place that maps
// actions onto adapter primitives.
func (a *Action) Apply(ctx context.Context, adapter db.Adapter) error {
	switch a.Kind {
	case CreateTable:
		return adapter.CreateTable(ctx, *a.Create)
	case DropTable:
		return adapter.DropTable(ctx, a.Table)
	case AddColumn:
		return adapter.AddColumn(ctx, a.Table, a.Def)
	case RemoveColumn:
		return adapter.RemoveColumn(ctx, a.Table, a.Column)
	case RenameColumn:
		return adapter.RenameColumn(ctx, a.Table, a.Column, a.NewName)
	case ChangeColumnType:
		return adapter.ChangeColumnType(ctx, a.Table, a.Column, a.OldType, a.Def)
	case AddConstraint:
		return adapter.AddConstraint(ctx, a.Table, *a.ForeignKey)
	case DropConstraint:
		return adapter.DropConstraint(ctx, a.Table, a.Name)
	case AddIndex:
		return adapter.AddIndex(ctx, a.Table, *a.Index)
	case DropIndex:
		return adapter.DropIndex(ctx, a.Table, a.Name)
	default:
		return fmt.Errorf("unknown action kind %v", a.Kind)
	}
}

func (a Action) String() string {
	switch a.Kind {
	case CreateTable:
		cols := make([]string, len(a.Create.Columns))
		for i, c := range a.Create.Columns {
			cols[i] = c.Name
		}
		return fmt.Sprintf("%s %s (%s)", a.Kind, a.Table, strings.Join(cols, ", "))
	case DropTable:
		return fmt.Sprintf("%s %s", a.Kind, a.Table)
	case AddColumn:
		return fmt.Sprintf("%s %s.%s %s", a.Kind, a.Table, a.Def.Name, a.Def.Type)
	case RenameColumn:
		return fmt.Sprintf("%s %s.%s -> %s", a.Kind, a.Table, a.Column, a.NewName)
	case ChangeColumnType:
		return fmt.Sprintf("%s %s.%s %s -> %s", a.Kind, a.Table, a.Column, a.OldType, a.Def.Type)
	case AddConstraint:
		return fmt.Sprintf("%s %s.%s (%s -> %s.%s)", a.Kind, a.Table, a.ForeignKey.Name, a.ForeignKey.Column, a.ForeignKey.TargetTable, a.ForeignKey.TargetColumn)
	case AddIndex:
		return fmt.Sprintf("%s %s.%s (%s)", a.Kind, a.Table, a.Index.Name, strings.Join(a.Index.Columns, ", "))
	case DropConstraint, DropIndex:
		return fmt.Sprintf("%s %s.%s", a.Kind, a.Table, a.Name)
	default:
		return fmt.Sprintf("%s %s.%s", a.Kind, a.Table, a.Column)
	}
}

// key identifies named constraint and index actions for deduplication.
func (a *Action) key() string {
	switch a.Kind {
	case AddConstraint:
		return a.Kind.String() + " " + a.Table + "." + a.ForeignKey.Name
	case AddIndex:
		return a.Kind.String() + " " + a.Table + "." + a.Index.Name
	case DropConstraint, DropIndex:
		return a.Kind.String() + " " + a.Table + "." + a.Name
	default:
		return ""
	}
}
