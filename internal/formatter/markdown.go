package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/schema"
)

// MarkdownFormatter formats output as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the schema in markdown format
func (f *MarkdownFormatter) Format(s *schema.Schema) error {
	_, _ = fmt.Fprintln(f.writer, "# Database Schema")
	_, _ = fmt.Fprintln(f.writer)

	for _, table := range s.Tables {
		f.FormatTable(table)
	}
	return nil
}

// FormatTable formats a single table (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatTable(table schema.Table) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.Name)

	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)
	for _, col := range table.Columns {
		if flags := columnFlags(col); len(flags) > 0 {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, col.Type, strings.Join(flags, ", "))
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, col.Type)
		}
	}
	_, _ = fmt.Fprintln(f.writer)

	if fks := table.ForeignKeyList(); len(fks) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### References")
		_, _ = fmt.Fprintln(f.writer)
		for _, fk := range fks {
			_, _ = fmt.Fprintf(f.writer, "- %s → %s.%s%s\n", fk.Column, fk.TargetTable, fk.TargetColumn, referentialSuffix(fk))
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if indexes := table.IndexList(); len(indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Indexes")
		_, _ = fmt.Fprintln(f.writer)
		for _, idx := range indexes {
			if idx.Unique {
				_, _ = fmt.Fprintf(f.writer, "- %s on (%s), unique\n", idx.Name, strings.Join(idx.Columns, ", "))
			} else {
				_, _ = fmt.Fprintf(f.writer, "- %s on (%s)\n", idx.Name, strings.Join(idx.Columns, ", "))
			}
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

// FormatDiffs writes diffs grouped by entity.
func (f *MarkdownFormatter) FormatDiffs(diffs []diff.Diff) error {
	_, _ = fmt.Fprintln(f.writer, "# Schema Diff")
	_, _ = fmt.Fprintln(f.writer)
	if len(diffs) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No changes: schema matches the model.")
		return nil
	}
	order, groups := diffsByEntity(diffs)
	for _, entity := range order {
		f.FormatEntityDiffs(entity, groups[entity])
	}
	return nil
}

// FormatEntityDiffs writes the diffs of one entity.
func (f *MarkdownFormatter) FormatEntityDiffs(entity string, diffs []diff.Diff) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", entity)
	for _, d := range diffs {
		if d.Kind.Destructive() {
			_, _ = fmt.Fprintf(f.writer, "- **%s** (destructive)\n", d)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", d)
		}
	}
	_, _ = fmt.Fprintln(f.writer)
}

// FormatReport writes the outcome of an apply run.
func (f *MarkdownFormatter) FormatReport(r *Report) error {
	title := "Apply"
	if r.DryRun {
		title = "Dry Run"
	}
	_, _ = fmt.Fprintf(f.writer, "# %s `%s`\n\n", title, r.RunID)

	if len(r.Applied) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Applied")
		_, _ = fmt.Fprintln(f.writer)
		for i, a := range r.Applied {
			_, _ = fmt.Fprintf(f.writer, "%d. %s\n", i+1, a)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	if len(r.Skipped) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Skipped")
		_, _ = fmt.Fprintln(f.writer)
		for _, s := range r.Skipped {
			_, _ = fmt.Fprintf(f.writer, "- %s: %s\n", s.Action, s.Reason)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	if len(r.Withheld) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Withheld")
		_, _ = fmt.Fprintln(f.writer)
		for _, w := range r.Withheld {
			_, _ = fmt.Fprintf(f.writer, "- %s (%d actions)\n", w.Diff, len(w.Actions))
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	if len(r.Statements) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## SQL")
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "```sql")
		for _, stmt := range r.Statements {
			_, _ = fmt.Fprintf(f.writer, "%s;\n", stmt)
		}
		_, _ = fmt.Fprintln(f.writer, "```")
		_, _ = fmt.Fprintln(f.writer)
	}
	if r.Err != nil {
		rolled := ""
		if r.RolledBack {
			rolled = " (rolled back)"
		}
		_, _ = fmt.Fprintf(f.writer, "**Failed%s:** %v\n", rolled, r.Err)
	}
	return nil
}

var _ Formatter = (*MarkdownFormatter)(nil)
