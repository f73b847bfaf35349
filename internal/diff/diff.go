// Package diff compares a declared entity model with a live schema snapshot.
package diff

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemasync/internal/model"
	"github.com/tordrt/schemasync/internal/schema"
)

// Kind identifies a discrepancy
type Kind int

const (
	EntityAdded Kind = iota
	EntityRemoved
	FieldAdded
	FieldRemoved
	FieldTypeChanged
	FieldRenamed
	RelationAdded
	RelationRemoved
	IndexAdded
	IndexRemoved
)

var kindNames = [...]string{
	EntityAdded:      "EntityAdded",
	EntityRemoved:    "EntityRemoved",
	FieldAdded:       "FieldAdded",
	FieldRemoved:     "FieldRemoved",
	FieldTypeChanged: "FieldTypeChanged",
	FieldRenamed:     "FieldRenamed",
	RelationAdded:    "RelationAdded",
	RelationRemoved:  "RelationRemoved",
	IndexAdded:       "IndexAdded",
	IndexRemoved:     "IndexRemoved",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Destructive reports whether resolving the discrepancy loses data.
func (k Kind) Destructive() bool {
	return k == EntityRemoved || k == FieldRemoved
}

// Diff is one discrepancy between the model and the live schema
type Diff struct {
	Kind   Kind
	Entity string
	// Field is the declared field, or the live column for FieldRemoved.
	Field string
	// OldField is the live column name of a FieldRenamed.
	OldField string

	// Old and New describe the column before and after FieldTypeChanged and
	// FieldRenamed. New is also set for FieldAdded, Old for FieldRemoved.
	Old *schema.Column
	New *model.Field
	// NewType is the declared native type for FieldAdded and FieldTypeChanged.
	NewType string

	// Definition is the declared entity of an EntityAdded.
	Definition *model.Entity
	// Table is the live table of an EntityRemoved.
	Table *schema.Table

	// ForeignKey is set for RelationAdded and RelationRemoved.
	ForeignKey *schema.ForeignKey
	// Index is set for IndexAdded and IndexRemoved.
	Index *schema.Index

	// Dependents are the constraints and indices tied to a FieldTypeChanged
	// column, needed when the column has to be recreated.
	Dependents *Dependents
}

// Dependents lists what must be dropped before a column is recreated and
// restored afterwards.
type Dependents struct {
	DropForeignKeys []schema.ForeignKey
	DropIndexes     []schema.Index
	AddForeignKeys  []schema.ForeignKey
	AddIndexes      []schema.Index
}

func (d Diff) String() string {
	switch d.Kind {
	case EntityAdded, EntityRemoved:
		return fmt.Sprintf("%s %s", d.Kind, d.Entity)
	case FieldRenamed:
		return fmt.Sprintf("%s %s.%s -> %s", d.Kind, d.Entity, d.OldField, d.Field)
	case FieldTypeChanged:
		return fmt.Sprintf("%s %s.%s %s -> %s", d.Kind, d.Entity, d.Field, d.Old.Type, d.NewType)
	case RelationAdded, RelationRemoved:
		return fmt.Sprintf("%s %s.%s -> %s.%s", d.Kind, d.Entity, d.ForeignKey.Column, d.ForeignKey.TargetTable, d.ForeignKey.TargetColumn)
	case IndexAdded, IndexRemoved:
		return fmt.Sprintf("%s %s.%s (%s)", d.Kind, d.Entity, d.Index.Name, strings.Join(d.Index.Columns, ", "))
	default:
		return fmt.Sprintf("%s %s.%s", d.Kind, d.Entity, d.Field)
	}
}

// ForeignKeyName is the default constraint name for a relation.
func ForeignKeyName(table, column string) string {
	return table + "_" + column + "_fkey"
}

// IndexName is the default name for a declared index.
func IndexName(table string, columns []string, unique bool) string {
	suffix := "_idx"
	if unique {
		suffix = "_key"
	}
	return table + "_" + strings.Join(columns, "_") + suffix
}
