package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is matched by every error returned from Validate.
var ErrInvalid = errors.New("invalid model")

// ValidationError lists every problem found in a model.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model: %s", strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

var referentialActions = map[string]bool{
	"":            true,
	"CASCADE":     true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"RESTRICT":    true,
	"NO ACTION":   true,
}

// Validate checks the invariants the synchronizer relies on: entity and field
// names are unique, types are known, and relations and indexes reference
// declared fields and entities.
func (m *Model) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	entities := make(map[string]bool, len(m.Entities))
	for _, e := range m.Entities {
		if e.Name == "" {
			add("entity with empty name")
			continue
		}
		if entities[e.Name] {
			add("duplicate entity %q", e.Name)
		}
		entities[e.Name] = true
	}

	for _, e := range m.Entities {
		if len(e.Fields) == 0 {
			add("entity %q has no fields", e.Name)
		}
		fields := make(map[string]bool, len(e.Fields))
		for _, f := range e.Fields {
			switch {
			case f.Name == "":
				add("entity %q: field with empty name", e.Name)
			case fields[f.Name]:
				add("entity %q: duplicate field %q", e.Name, f.Name)
			}
			fields[f.Name] = true
			if !f.Type.Valid() {
				add("entity %q: field %q has unknown type %q", e.Name, f.Name, f.Type)
			}
			if f.Size < 0 {
				add("entity %q: field %q has negative size", e.Name, f.Name)
			}
		}

		for _, r := range e.Relations {
			if !fields[r.Field] {
				add("entity %q: relation on unknown field %q", e.Name, r.Field)
			}
			target, ok := m.Entity(r.Target)
			if !ok {
				add("entity %q: relation %q targets unknown entity %q", e.Name, r.Field, r.Target)
			} else if _, ok := target.Field(r.Referenced()); !ok {
				add("entity %q: relation %q targets unknown field %s.%s", e.Name, r.Field, r.Target, r.Referenced())
			}
			if !referentialActions[strings.ToUpper(r.OnDelete)] || !referentialActions[strings.ToUpper(r.OnUpdate)] {
				add("entity %q: relation %q has an unknown referential action", e.Name, r.Field)
			}
		}

		for i, idx := range e.Indexes {
			if len(idx.Fields) == 0 {
				add("entity %q: index %d has no fields", e.Name, i)
			}
			for _, f := range idx.Fields {
				if !fields[f] {
					add("entity %q: index %d references unknown field %q", e.Name, i, f)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
