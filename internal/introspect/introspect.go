// Package introspect reads a live schema snapshot through a dialect adapter.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/schema"
)

// Introspector builds schema snapshots
type Introspector struct {
	adapter db.Adapter
	exclude map[string]bool
	logger  *slog.Logger
}

// New creates an introspector reading through adapter. Tables named in
// exclude are left out of every snapshot.
func New(adapter db.Adapter, exclude []string, logger *slog.Logger) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	ex := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		ex[t] = true
	}
	return &Introspector{adapter: adapter, exclude: ex, logger: logger}
}

// Snapshot reads every non-excluded table. A catalog query the dialect cannot
// answer yields an empty result for that part with a warning; any other
// failure aborts the snapshot.
func (i *Introspector) Snapshot(ctx context.Context) (*schema.Schema, error) {
	names, err := i.adapter.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	var tables []schema.Table
	for _, name := range names {
		if i.exclude[name] {
			continue
		}
		table, err := i.table(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", name, err)
		}
		tables = append(tables, *table)
	}
	return schema.New(tables), nil
}

func (i *Introspector) table(ctx context.Context, name string) (*schema.Table, error) {
	columns, err := i.adapter.GetColumns(ctx, name)
	if err = i.tolerate(err); err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table := &schema.Table{
		Name:        name,
		Indexes:     make(map[string][]schema.Index),
		ForeignKeys: make(map[string]schema.ForeignKey),
	}
	live := make(map[string]bool, len(columns))
	for _, c := range columns {
		c.Type = i.adapter.NormalizeType(c.RawType)
		table.Columns = append(table.Columns, c)
		live[c.Name] = true
	}

	indexes, err := i.adapter.GetIndices(ctx, name)
	if err = i.tolerate(err); err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	for _, idx := range indexes {
		idx.Name = db.StripQuotes(idx.Name)
		for j, c := range idx.Columns {
			idx.Columns[j] = db.StripQuotes(c)
		}
		for _, c := range idx.Columns {
			// Expression indexes and stale catalog rows may name no live column.
			if live[c] {
				table.Indexes[c] = append(table.Indexes[c], idx)
			}
		}
	}

	fks, err := i.adapter.GetForeignKeys(ctx, name)
	if err = i.tolerate(err); err != nil {
		return nil, fmt.Errorf("failed to extract relations: %w", err)
	}
	for _, fk := range fks {
		fk.Name = db.StripQuotes(fk.Name)
		fk.Column = db.StripQuotes(fk.Column)
		fk.TargetTable = db.StripQuotes(fk.TargetTable)
		fk.TargetColumn = db.StripQuotes(fk.TargetColumn)
		if live[fk.Column] {
			table.ForeignKeys[fk.Column] = fk
		}
	}
	return table, nil
}

// tolerate turns an unsupported catalog query into an empty result.
func (i *Introspector) tolerate(err error) error {
	var unsupported *db.IntrospectionUnsupportedError
	if errors.As(err, &unsupported) {
		i.logger.Warn("schemasync: introspection unsupported, treating as empty",
			"dialect", unsupported.Dialect, "table", unsupported.Table, "what", unsupported.What, "error", unsupported.Err)
		return nil
	}
	return err
}
