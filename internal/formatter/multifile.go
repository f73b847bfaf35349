package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/schema"
)

// MultiFileFormatter writes one file per table or entity into a directory,
// plus an _overview file.
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes the schema to multiple files
func (f *MultiFileFormatter) Format(s *schema.Schema) error {
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeFile("_overview", func(w io.Writer) { f.writeSchemaOverview(w, s) }); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, table := range s.Tables {
		err := f.writeFile(table.Name, func(w io.Writer) {
			if f.OutputFormat == FormatMarkdown {
				NewMarkdownFormatter(w).FormatTable(table)
			} else {
				NewTextFormatter(w).formatTable(table)
			}
			f.writeIncoming(w, findIncomingRelations(table.Name, s))
		})
		if err != nil {
			return fmt.Errorf("failed to write table file for %s: %w", table.Name, err)
		}
	}
	return nil
}

// FormatDiffs writes a per-entity diff report. Entities without diffs get no file.
func (f *MultiFileFormatter) FormatDiffs(diffs []diff.Diff) error {
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	order, groups := diffsByEntity(diffs)
	err := f.writeFile("_overview", func(w io.Writer) {
		if f.OutputFormat == FormatMarkdown {
			_, _ = fmt.Fprintf(w, "# Diff Overview\n\n")
		} else {
			_, _ = fmt.Fprintf(w, "DIFF OVERVIEW\n\n")
		}
		if len(order) == 0 {
			_, _ = fmt.Fprintln(w, "No changes: schema matches the model.")
			return
		}
		for _, entity := range order {
			destructive := 0
			for _, d := range groups[entity] {
				if d.Kind.Destructive() {
					destructive++
				}
			}
			bullet := ""
			if f.OutputFormat == FormatMarkdown {
				bullet = "- "
			}
			_, _ = fmt.Fprintf(w, "%s%s: %d changes, %d destructive\n", bullet, entity, len(groups[entity]), destructive)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, entity := range order {
		err := f.writeFile(entity, func(w io.Writer) {
			if f.OutputFormat == FormatMarkdown {
				NewMarkdownFormatter(w).FormatEntityDiffs(entity, groups[entity])
				return
			}
			_ = NewTextFormatter(w).FormatDiffs(groups[entity])
		})
		if err != nil {
			return fmt.Errorf("failed to write diff file for %s: %w", entity, err)
		}
	}
	return nil
}

func (f *MultiFileFormatter) writeFile(name string, render func(w io.Writer)) error {
	file, err := os.Create(filepath.Join(f.OutputDir, name+f.getFileExtension()))
	if err != nil {
		return err
	}
	render(file)
	return file.Close()
}

func (f *MultiFileFormatter) writeSchemaOverview(w io.Writer, s *schema.Schema) {
	if f.OutputFormat == FormatMarkdown {
		_, _ = fmt.Fprintf(w, "# Schema Overview\n\n")
		_, _ = fmt.Fprintf(w, "Each table has a corresponding file: `<table_name>%s`\n\n", f.getFileExtension())
		_, _ = fmt.Fprintf(w, "## Tables\n\n")
	} else {
		_, _ = fmt.Fprintf(w, "SCHEMA OVERVIEW\n")
		_, _ = fmt.Fprintf(w, "Each table has a file: <table_name>%s\n\n", f.getFileExtension())
	}

	// Sort tables alphabetically
	sortedTables := make([]schema.Table, len(s.Tables))
	copy(sortedTables, s.Tables)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].Name < sortedTables[j].Name
	})

	for _, table := range sortedTables {
		if f.OutputFormat == FormatMarkdown {
			_, _ = fmt.Fprintf(w, "- **%s**", table.Name)
		} else {
			_, _ = fmt.Fprintf(w, "%s", table.Name)
		}

		// Show outgoing relationships
		if fks := table.ForeignKeyList(); len(fks) > 0 {
			targets := []string{}
			for _, fk := range fks {
				targets = append(targets, fk.TargetTable)
			}
			_, _ = fmt.Fprintf(w, " (references: %s)", strings.Join(targets, ", "))
		}
		_, _ = fmt.Fprintf(w, "\n")
	}
}

func (f *MultiFileFormatter) writeIncoming(w io.Writer, incoming []IncomingRelation) {
	if len(incoming) == 0 {
		return
	}
	if f.OutputFormat == FormatMarkdown {
		_, _ = fmt.Fprintf(w, "### Referenced by\n\n")
		for _, rel := range incoming {
			_, _ = fmt.Fprintf(w, "- %s.%s → %s\n", rel.SourceTable, rel.SourceColumn, rel.TargetColumn)
		}
		_, _ = fmt.Fprintln(w)
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "  REFERENCED BY:")
	for _, rel := range incoming {
		_, _ = fmt.Fprintf(w, "    %s.%s → %s\n", rel.SourceTable, rel.SourceColumn, rel.TargetColumn)
	}
}

// IncomingRelation represents a relationship pointing to this table
type IncomingRelation struct {
	SourceTable  string
	SourceColumn string
	TargetColumn string
}

// findIncomingRelations finds all foreign keys pointing to this table
func findIncomingRelations(tableName string, s *schema.Schema) []IncomingRelation {
	var incoming []IncomingRelation
	for _, table := range s.Tables {
		for _, fk := range table.ForeignKeyList() {
			if fk.TargetTable == tableName {
				incoming = append(incoming, IncomingRelation{
					SourceTable:  table.Name,
					SourceColumn: fk.Column,
					TargetColumn: fk.TargetColumn,
				})
			}
		}
	}
	return incoming
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == FormatMarkdown {
		return ".md"
	}
	return ".txt"
}
