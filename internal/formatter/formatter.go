// Package formatter renders live schema snapshots, diffs and apply reports.
package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/plan"
	"github.com/tordrt/schemasync/internal/schema"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Formatter renders the results of each synchronizer operation.
type Formatter interface {
	Format(s *schema.Schema) error
	FormatDiffs(diffs []diff.Diff) error
	FormatReport(r *Report) error
}

// Report is the outcome of an apply run.
type Report struct {
	RunID      string
	DryRun     bool
	RolledBack bool
	Applied    []plan.Action
	// Skipped lists declined optional actions with the reason.
	Skipped    []Skipped
	Withheld   []plan.Withheld
	Statements []string
	// Err is the error that stopped the run, if any.
	Err error
}

// Skipped is an action the dialect declined.
type Skipped struct {
	Action plan.Action
	Reason string
}

// New returns the formatter for format writing to w.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("invalid format: %s (must be 'text' or 'markdown')", format)
	}
}

// diffsByEntity groups diffs by entity, keeping first-seen entity order.
func diffsByEntity(diffs []diff.Diff) ([]string, map[string][]diff.Diff) {
	var order []string
	groups := make(map[string][]diff.Diff)
	for _, d := range diffs {
		if _, ok := groups[d.Entity]; !ok {
			order = append(order, d.Entity)
		}
		groups[d.Entity] = append(groups[d.Entity], d)
	}
	return order, groups
}

func columnFlags(col schema.Column) []string {
	var flags []string
	if col.PrimaryKey {
		flags = append(flags, "PK")
	}
	if !col.Nullable {
		flags = append(flags, "NOT NULL")
	}
	if col.DefaultValue != nil {
		flags = append(flags, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}
	return flags
}

func referentialSuffix(fk schema.ForeignKey) string {
	s := ""
	if fk.OnDelete != "" {
		s += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" {
		s += " ON UPDATE " + fk.OnUpdate
	}
	return s
}
