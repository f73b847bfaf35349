package db

import (
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
)

// quoter quotes a single identifier for a dialect.
type quoter func(string) string

func joinQuoted(q quoter, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = q(n)
	}
	return strings.Join(quoted, ", ")
}

// foreignKeyClause renders "FOREIGN KEY (...) REFERENCES ..." with referential actions.
func foreignKeyClause(q quoter, target string, fk schema.ForeignKey) string {
	var b strings.Builder
	b.WriteString("FOREIGN KEY (")
	b.WriteString(q(fk.Column))
	b.WriteString(") REFERENCES ")
	b.WriteString(target)
	b.WriteString(" (")
	b.WriteString(q(fk.TargetColumn))
	b.WriteString(")")
	if r := referentialAction(fk.OnDelete); r != "" {
		b.WriteString(" ON DELETE ")
		b.WriteString(r)
	}
	if r := referentialAction(fk.OnUpdate); r != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(r)
	}
	return b.String()
}

// columnClause renders a column definition. autoIncrement is the dialect
// keyword appended for auto-increment columns, if any.
func columnClause(q quoter, def schema.ColumnDef, autoIncrement string) string {
	parts := []string{q(def.Name), def.Type}
	if def.AutoIncrement && autoIncrement != "" {
		parts = append(parts, autoIncrement)
	}
	if !def.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if def.Default != nil {
		parts = append(parts, "DEFAULT "+*def.Default)
	}
	return strings.Join(parts, " ")
}

func indexStatement(q quoter, name, table string, idx schema.Index) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	b.WriteString(name)
	b.WriteString(" ON ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(joinQuoted(q, idx.Columns))
	b.WriteString(")")
	return b.String()
}

// normalizeWith lowercases raw and applies an alias table.
func normalizeWith(raw string, aliases map[string]string) string {
	t := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if a, ok := aliases[t]; ok {
		return a
	}
	return t
}
