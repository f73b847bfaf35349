package schema

import "sort"

// Type is a dialect-independent column type as declared in an entity model.
type Type string

// Semantic types understood by every dialect adapter.
const (
	TypeString   Type = "string"
	TypeText     Type = "text"
	TypeInteger  Type = "integer"
	TypeBigInt   Type = "bigint"
	TypeFloat    Type = "float"
	TypeDecimal  Type = "decimal"
	TypeBoolean  Type = "boolean"
	TypeDate     Type = "date"
	TypeDateTime Type = "datetime"
	TypeJSON     Type = "json"
	TypeUUID     Type = "uuid"
	TypeBinary   Type = "binary"
)

// Types lists every semantic type in a stable order.
var Types = []Type{
	TypeString, TypeText, TypeInteger, TypeBigInt, TypeFloat, TypeDecimal,
	TypeBoolean, TypeDate, TypeDateTime, TypeJSON, TypeUUID, TypeBinary,
}

// Valid reports whether t is one of the known semantic types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Schema is an immutable snapshot of the live database schema
type Schema struct {
	Tables []Table
	byName map[string]int
}

// New builds a snapshot from tables in the order given.
func New(tables []Table) *Schema {
	s := &Schema{Tables: tables, byName: make(map[string]int, len(tables))}
	for i, t := range tables {
		s.byName[t.Name] = i
	}
	return s
}

// Table returns the live table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.Tables[i], true
}

// TableNames returns the table names in snapshot order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Table represents a database table
type Table struct {
	Name    string
	Columns []Column
	// Indexes maps a column name to every index covering it.
	Indexes map[string][]Index
	// ForeignKeys maps a column name to the foreign key declared on it.
	ForeignKeys map[string]ForeignKey
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key columns in column order.
func (t *Table) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// IndexList returns each index once, sorted by name.
func (t *Table) IndexList() []Index {
	seen := make(map[string]bool)
	var list []Index
	for _, col := range t.Columns {
		for _, idx := range t.Indexes[col.Name] {
			if seen[idx.Name] {
				continue
			}
			seen[idx.Name] = true
			list = append(list, idx)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// ForeignKeyList returns the foreign keys in column order.
func (t *Table) ForeignKeyList() []ForeignKey {
	var list []ForeignKey
	for _, col := range t.Columns {
		if fk, ok := t.ForeignKeys[col.Name]; ok {
			list = append(list, fk)
		}
	}
	return list
}

// Column represents a table column
type Column struct {
	Name string
	// RawType is the type as reported by the catalog.
	RawType string
	// Type is RawType canonicalized by the dialect adapter.
	Type         string
	Nullable     bool
	DefaultValue *string
	PrimaryKey   bool
}

// ForeignKey represents a foreign key constraint on a single column
type ForeignKey struct {
	Name         string
	Column       string
	TargetTable  string
	TargetColumn string
	OnDelete     string
	OnUpdate     string
}

// Index represents a database index
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Covers reports whether the index includes column.
func (i Index) Covers(column string) bool {
	for _, c := range i.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// ColumnDef describes a column to be created or retyped.
type ColumnDef struct {
	Name string
	// Type is the native type for the target dialect.
	Type          string
	Nullable      bool
	Default       *string
	PrimaryKey    bool
	AutoIncrement bool
}

// TableDef describes a table to be created.
type TableDef struct {
	Name        string
	Columns     []ColumnDef
	ForeignKeys []ForeignKey
}

// PrimaryKey returns the primary key column names.
func (d *TableDef) PrimaryKey() []string {
	var pk []string
	for _, c := range d.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}
