package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
)

// Dialect names.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// ExecQuerier wraps the standard Exec and Query methods. It is satisfied by
// *sql.DB, *sql.Conn and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TypeMapper translates between semantic types and a dialect's native types.
type TypeMapper interface {
	// NativeType returns the column type used when creating a column of type t.
	NativeType(t schema.Type, size int) string
	// NormalizeType canonicalizes a native type so equal types compare equal.
	NormalizeType(raw string) string
}

// Adapter is the per-engine capability provider. Every method either succeeds,
// fails with one of the typed errors in this package, or, for constraint
// primitives, returns a NotImplementedError.
type Adapter interface {
	TypeMapper

	Dialect() string
	SupportsTransactionalDDL() bool

	ListTables(ctx context.Context) ([]string, error)
	GetColumns(ctx context.Context, table string) ([]schema.Column, error)
	GetIndices(ctx context.Context, table string) ([]schema.Index, error)
	GetForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error)

	CreateTable(ctx context.Context, def schema.TableDef) error
	DropTable(ctx context.Context, table string) error
	AddColumn(ctx context.Context, table string, def schema.ColumnDef) error
	RemoveColumn(ctx context.Context, table, name string) error
	RenameColumn(ctx context.Context, table, oldName, newName string) error
	ChangeColumnType(ctx context.Context, table, name, oldType string, def schema.ColumnDef) error
	AddConstraint(ctx context.Context, table string, fk schema.ForeignKey) error
	DropConstraint(ctx context.Context, table, name string) error
	AddIndex(ctx context.Context, table string, idx schema.Index) error
	DropIndex(ctx context.Context, table, name string) error

	// CastColumnType reports whether a column can be retyped in place without
	// data loss. It never fails; false means drop and recreate.
	CastColumnType(ctx context.Context, table, column, oldType, newType string) bool
}

// Options configures an adapter.
type Options struct {
	// SchemaName is the Postgres schema or MySQL database to work in.
	// Postgres defaults to "public". SQLite ignores it.
	SchemaName string
}

// HasDialect reports whether an adapter exists for the named dialect.
func HasDialect(name string) bool {
	switch canonicalDialect(name) {
	case Postgres, MySQL, SQLite:
		return true
	default:
		return false
	}
}

// New returns the adapter for dialect bound to conn.
func New(dialect string, conn ExecQuerier, opts Options) (Adapter, error) {
	switch canonicalDialect(dialect) {
	case Postgres:
		return NewPostgresAdapter(conn, opts.SchemaName), nil
	case MySQL:
		return NewMySQLAdapter(conn, opts.SchemaName), nil
	case SQLite:
		return NewSQLiteAdapter(conn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
}

// canonicalDialect maps driver names onto dialect names.
func canonicalDialect(name string) string {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres
	case "mysql":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	default:
		return ""
	}
}

// CanonicalDialect is the exported form of canonicalDialect.
func CanonicalDialect(name string) string { return canonicalDialect(name) }

// exec runs a DDL statement and wraps failures in a DDLError.
func exec(ctx context.Context, conn ExecQuerier, table, column, stmt string) error {
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return &DDLError{Table: table, Column: column, Statement: stmt, Cause: err}
	}
	return nil
}

// queryStrings runs a query returning a single string column.
func queryStrings(ctx context.Context, conn ExecQuerier, query string, args ...any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
