package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/schema"
)

// TextFormatter formats output as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the schema in compact text format
func (f *TextFormatter) Format(s *schema.Schema) error {
	for i, table := range s.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}
		f.formatTable(table)
	}
	return nil
}

func (f *TextFormatter) formatTable(table schema.Table) {
	// Table header with primary key
	pkStr := ""
	if pk := table.PrimaryKey(); len(pk) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(pk, ", "))
	}
	_, _ = fmt.Fprintf(f.writer, "TABLE %s%s\n", table.Name, pkStr)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", f.formatColumn(col))
	}

	if fks := table.ForeignKeyList(); len(fks) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  RELATIONS:")
		for _, fk := range fks {
			_, _ = fmt.Fprintf(f.writer, "    %s → %s.%s%s\n", fk.Column, fk.TargetTable, fk.TargetColumn, referentialSuffix(fk))
		}
	}

	if indexes := table.IndexList(); len(indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  INDEXES:")
		for _, idx := range indexes {
			unique := ""
			if idx.Unique {
				unique = " UNIQUE"
			}
			_, _ = fmt.Fprintf(f.writer, "    %s (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
		}
	}
}

func (f *TextFormatter) formatColumn(col schema.Column) string {
	parts := append([]string{col.Name + ":", col.Type}, columnFlags(col)...)
	return strings.Join(parts, " ")
}

// FormatDiffs writes one line per diff, destructive diffs marked with "!".
func (f *TextFormatter) FormatDiffs(diffs []diff.Diff) error {
	if len(diffs) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No changes: schema matches the model.")
		return nil
	}
	for _, d := range diffs {
		mark := " "
		if d.Kind.Destructive() {
			mark = "!"
		}
		_, _ = fmt.Fprintf(f.writer, "%s %s\n", mark, d)
	}
	return nil
}

// FormatReport writes the outcome of an apply run.
func (f *TextFormatter) FormatReport(r *Report) error {
	mode := "APPLY"
	if r.DryRun {
		mode = "DRY RUN"
	}
	_, _ = fmt.Fprintf(f.writer, "%s %s\n", mode, r.RunID)

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintf(f.writer, "  %s:\n", title)
		for _, l := range lines {
			_, _ = fmt.Fprintf(f.writer, "    %s\n", l)
		}
	}

	var applied, skipped, withheld []string
	for _, a := range r.Applied {
		applied = append(applied, a.String())
	}
	for _, s := range r.Skipped {
		skipped = append(skipped, fmt.Sprintf("%s (%s)", s.Action, s.Reason))
	}
	for _, w := range r.Withheld {
		withheld = append(withheld, w.Diff.String())
	}
	section("APPLIED", applied)
	section("SKIPPED", skipped)
	section("WITHHELD (needs --allow-destructive)", withheld)
	section("SQL", r.Statements)

	if r.Err != nil {
		_, _ = fmt.Fprintln(f.writer)
		status := "FAILED"
		if r.RolledBack {
			status = "FAILED, rolled back"
		}
		_, _ = fmt.Fprintf(f.writer, "  %s: %v\n", status, r.Err)
	}
	return nil
}

var _ Formatter = (*TextFormatter)(nil)
