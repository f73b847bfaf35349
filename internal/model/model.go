// Package model holds the declared entity model a live schema is synchronized to.
package model

import "github.com/tordrt/schemasync/internal/schema"

// Model is an ordered set of entities
type Model struct {
	Entities []Entity `yaml:"entities"`
}

// Entity is a declared table
type Entity struct {
	Name      string     `yaml:"name"`
	Fields    []Field    `yaml:"fields"`
	Relations []Relation `yaml:"relations,omitempty"`
	Indexes   []Index    `yaml:"indexes,omitempty"`
}

// Field is a declared column
type Field struct {
	Name string      `yaml:"name"`
	Type schema.Type `yaml:"type"`
	// Size bounds string fields. Zero means the dialect default.
	Size          int     `yaml:"size,omitempty"`
	Nullable      bool    `yaml:"nullable,omitempty"`
	Default       *string `yaml:"default,omitempty"`
	PrimaryKey    bool    `yaml:"primary_key,omitempty"`
	Unique        bool    `yaml:"unique,omitempty"`
	AutoIncrement bool    `yaml:"auto_increment,omitempty"`
}

// Relation is a foreign key from Field to Target.TargetField
type Relation struct {
	Field       string `yaml:"field"`
	Target      string `yaml:"target"`
	TargetField string `yaml:"target_field,omitempty"`
	OnDelete    string `yaml:"on_delete,omitempty"`
	OnUpdate    string `yaml:"on_update,omitempty"`
}

// Referenced returns the target column, defaulting to "id".
func (r Relation) Referenced() string {
	if r.TargetField == "" {
		return "id"
	}
	return r.TargetField
}

// Index is a declared, possibly multi-column, index
type Index struct {
	Name   string   `yaml:"name,omitempty"`
	Fields []string `yaml:"fields"`
	Unique bool     `yaml:"unique,omitempty"`
}

// Entity returns the entity with the given name.
func (m *Model) Entity(name string) (*Entity, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i], true
		}
	}
	return nil, false
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Relation returns the relation declared on field, if any.
func (e *Entity) Relation(field string) (*Relation, bool) {
	for i := range e.Relations {
		if e.Relations[i].Field == field {
			return &e.Relations[i], true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key field names in declared order.
func (e *Entity) PrimaryKey() []string {
	var pk []string
	for _, f := range e.Fields {
		if f.PrimaryKey {
			pk = append(pk, f.Name)
		}
	}
	return pk
}
