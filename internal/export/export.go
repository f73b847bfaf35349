// Package export writes applied schema statements as a versioned migration
// directory that atlas and compatible tools can replay.
package export

import (
	"fmt"
	"os"
	"time"

	"ariga.io/atlas/sql/migrate"
)

// Change is one statement of an exported migration.
type Change struct {
	SQL string
	// Comment describes the change. It is written above the statement.
	Comment string
}

// Exporter writes migration files into a local directory and keeps its
// atlas.sum integrity file current.
type Exporter struct {
	dir *migrate.LocalDir
	fmt migrate.Formatter
	now func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithFormatter sets the migration file formatter. The default is
// migrate.DefaultFormatter.
func WithFormatter(f migrate.Formatter) Option {
	return func(e *Exporter) { e.fmt = f }
}

// WithClock sets the clock used to version migrations.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New opens the migration directory at path, creating it if needed.
func New(path string, opts ...Option) (*Exporter, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create migration directory: %w", err)
	}
	dir, err := migrate.NewLocalDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration directory: %w", err)
	}
	e := &Exporter{dir: dir, fmt: migrate.DefaultFormatter, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dir returns the underlying migration directory.
func (e *Exporter) Dir() migrate.Dir { return e.dir }

// Write stores changes as a new migration named name and returns the
// migration version. It fails with migrate.ErrNoPlan when there is nothing to
// write and with migrate.ErrChecksumMismatch when the directory was edited
// since its sum file was written.
func (e *Exporter) Write(name string, changes []Change) (string, error) {
	if len(changes) == 0 {
		return "", migrate.ErrNoPlan
	}
	if err := migrate.Validate(e.dir); err != nil {
		return "", err
	}

	p := &migrate.Plan{
		Version: e.now().UTC().Format("20060102150405"),
		Name:    name,
	}
	for _, c := range changes {
		p.Changes = append(p.Changes, &migrate.Change{Cmd: c.SQL, Comment: c.Comment})
	}

	files, err := e.fmt.Format(p)
	if err != nil {
		return "", fmt.Errorf("failed to format migration: %w", err)
	}
	for _, f := range files {
		if err := e.dir.WriteFile(f.Name(), f.Bytes()); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
		}
	}

	sum, err := e.dir.Checksum()
	if err != nil {
		return "", fmt.Errorf("failed to compute checksum: %w", err)
	}
	if err := migrate.WriteSumFile(e.dir, sum); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", migrate.HashFileName, err)
	}
	return p.Version, nil
}

// Changes pairs statements with the descriptions of the actions that
// produced them. Descriptions are dropped unless there is one per statement.
func Changes(statements []string, descriptions []string) []Change {
	changes := make([]Change, len(statements))
	for i, stmt := range statements {
		changes[i].SQL = stmt
		if len(descriptions) == len(statements) {
			changes[i].Comment = descriptions[i]
		}
	}
	return changes
}
