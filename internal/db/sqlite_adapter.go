package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
)

// SQLiteAdapter introspects and mutates a SQLite database. SQLite cannot
// alter column types or constraints of an existing table, so those
// primitives report NotImplementedError.
type SQLiteAdapter struct {
	conn ExecQuerier
}

// NewSQLiteAdapter creates a new SQLite adapter
func NewSQLiteAdapter(conn ExecQuerier) *SQLiteAdapter {
	return &SQLiteAdapter{conn: conn}
}

func (a *SQLiteAdapter) Dialect() string { return SQLite }

func (a *SQLiteAdapter) SupportsTransactionalDDL() bool { return true }

// ListTables returns user tables ordered by name.
func (a *SQLiteAdapter) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	tables, err := queryStrings(ctx, a.conn, query)
	if err != nil {
		return nil, &ConnectionError{Dialect: SQLite, Err: err}
	}
	return tables, nil
}

// NormalizeType lowercases the declared type; SQLite keeps declarations verbatim.
func (a *SQLiteAdapter) NormalizeType(raw string) string {
	return normalizeWith(raw, nil)
}

// NativeType maps a semantic type onto a SQLite declared type. Both integer
// widths map to integer, the only type SQLite accepts for AUTOINCREMENT keys.
func (a *SQLiteAdapter) NativeType(t schema.Type, size int) string {
	switch t {
	case schema.TypeString:
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("varchar(%d)", size)
	case schema.TypeText:
		return "text"
	case schema.TypeInteger, schema.TypeBigInt:
		return "integer"
	case schema.TypeFloat:
		return "real"
	case schema.TypeDecimal:
		return "numeric"
	case schema.TypeBoolean:
		return "boolean"
	case schema.TypeDate:
		return "date"
	case schema.TypeDateTime:
		return "datetime"
	case schema.TypeJSON:
		return "json"
	case schema.TypeUUID:
		return "uuid"
	case schema.TypeBinary:
		return "blob"
	default:
		return string(t)
	}
}

// GetColumns extracts column information for a table
func (a *SQLiteAdapter) GetColumns(ctx context.Context, table string) ([]schema.Column, error) {
	query := `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := a.conn.QueryContext(ctx, query, table)
	if err != nil {
		return nil, introspectionError(SQLite, table, "columns", err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&col.Name, &col.RawType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(SQLite, table, "columns", err)
	}
	return columns, nil
}

// GetIndices extracts explicitly created indexes
func (a *SQLiteAdapter) GetIndices(ctx context.Context, table string) ([]schema.Index, error) {
	rows, err := a.conn.QueryContext(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, introspectionError(SQLite, table, "indices", err)
	}

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var unique int
		var origin string

		if err := rows.Scan(&idx.Name, &unique, &origin); err != nil {
			rows.Close()
			return nil, err
		}

		// Skip auto-generated primary key and constraint indexes
		if origin == "pk" || strings.HasPrefix(idx.Name, "sqlite_autoindex") {
			continue
		}
		idx.Unique = unique == 1
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, introspectionError(SQLite, table, "indices", err)
	}
	rows.Close()

	// The index list is drained before querying columns; some drivers allow
	// one open result set per connection.
	var out []schema.Index
	for _, idx := range indexes {
		cols, err := queryStrings(ctx, a.conn, `SELECT name FROM pragma_index_info(?) WHERE name IS NOT NULL ORDER BY seqno`, idx.Name)
		if err != nil {
			return nil, introspectionError(SQLite, table, "indices", err)
		}
		if len(cols) == 0 {
			continue
		}
		idx.Columns = cols
		out = append(out, idx)
	}
	return out, nil
}

// GetForeignKeys extracts foreign key relationships. SQLite foreign keys are unnamed.
func (a *SQLiteAdapter) GetForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	query := `SELECT "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`

	rows, err := a.conn.QueryContext(ctx, query, table)
	if err != nil {
		return nil, introspectionError(SQLite, table, "foreign keys", err)
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var to sql.NullString
		if err := rows.Scan(&fk.TargetTable, &fk.Column, &to, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, err
		}
		// A reference without a column list targets the primary key.
		fk.TargetColumn = to.String
		if !to.Valid {
			fk.TargetColumn = "id"
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(SQLite, table, "foreign keys", err)
	}
	return fks, nil
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTable creates a table with inline foreign keys. A single integer
// auto-increment key is declared inline as INTEGER PRIMARY KEY AUTOINCREMENT.
func (a *SQLiteAdapter) CreateTable(ctx context.Context, def schema.TableDef) error {
	pk := def.PrimaryKey()
	inlinePK := ""
	if len(pk) == 1 {
		for _, c := range def.Columns {
			if c.Name == pk[0] && c.AutoIncrement {
				inlinePK = c.Name
			}
		}
	}

	var clauses []string
	for _, c := range def.Columns {
		if c.Name == inlinePK {
			clauses = append(clauses, quoteSQLite(c.Name)+" integer NOT NULL PRIMARY KEY AUTOINCREMENT")
			continue
		}
		clauses = append(clauses, columnClause(quoteSQLite, c, ""))
	}
	if len(pk) > 0 && inlinePK == "" {
		clauses = append(clauses, "PRIMARY KEY ("+joinQuoted(quoteSQLite, pk)+")")
	}
	for _, fk := range def.ForeignKeys {
		clauses = append(clauses, foreignKeyClause(quoteSQLite, quoteSQLite(fk.TargetTable), fk))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteSQLite(def.Name), strings.Join(clauses, ", "))
	return exec(ctx, a.conn, def.Name, "", stmt)
}

func (a *SQLiteAdapter) DropTable(ctx context.Context, table string) error {
	return exec(ctx, a.conn, table, "", "DROP TABLE "+quoteSQLite(table))
}

func (a *SQLiteAdapter) AddColumn(ctx context.Context, table string, def schema.ColumnDef) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteSQLite(table), columnClause(quoteSQLite, def, ""))
	return exec(ctx, a.conn, table, def.Name, stmt)
}

func (a *SQLiteAdapter) RemoveColumn(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteSQLite(table), quoteSQLite(name))
	return exec(ctx, a.conn, table, name, stmt)
}

func (a *SQLiteAdapter) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteSQLite(table), quoteSQLite(oldName), quoteSQLite(newName))
	return exec(ctx, a.conn, table, oldName, stmt)
}

func (a *SQLiteAdapter) ChangeColumnType(context.Context, string, string, string, schema.ColumnDef) error {
	return notImplemented(SQLite, "ChangeColumnType")
}

func (a *SQLiteAdapter) AddConstraint(context.Context, string, schema.ForeignKey) error {
	return notImplemented(SQLite, "AddConstraint")
}

func (a *SQLiteAdapter) DropConstraint(context.Context, string, string) error {
	return notImplemented(SQLite, "DropConstraint")
}

func (a *SQLiteAdapter) AddIndex(ctx context.Context, table string, idx schema.Index) error {
	stmt := indexStatement(quoteSQLite, quoteSQLite(idx.Name), quoteSQLite(table), idx)
	return exec(ctx, a.conn, table, "", stmt)
}

// DropIndex drops an index; SQLite index names are database-scoped.
func (a *SQLiteAdapter) DropIndex(ctx context.Context, table, name string) error {
	return exec(ctx, a.conn, table, "", "DROP INDEX "+quoteSQLite(name))
}

// CastColumnType is always false: every type change recreates the column.
func (a *SQLiteAdapter) CastColumnType(context.Context, string, string, string, string) bool {
	return false
}

var _ Adapter = (*SQLiteAdapter)(nil)
