package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/tordrt/schemasync/internal/schema"
)

// MySQLAdapter introspects and mutates a MySQL database
type MySQLAdapter struct {
	conn       ExecQuerier
	schemaName string
}

// NewMySQLAdapter creates a new MySQL adapter. An empty schemaName selects
// the connection's current database.
func NewMySQLAdapter(conn ExecQuerier, schemaName string) *MySQLAdapter {
	return &MySQLAdapter{
		conn:       conn,
		schemaName: schemaName,
	}
}

func (a *MySQLAdapter) Dialect() string { return MySQL }

// SupportsTransactionalDDL is false: MySQL commits implicitly around DDL.
func (a *MySQLAdapter) SupportsTransactionalDDL() bool { return false }

// schemaFilter resolves the database being introspected.
const schemaFilter = "COALESCE(NULLIF(?, ''), DATABASE())"

// ListTables returns the base tables of the database ordered by name.
func (a *MySQLAdapter) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + schemaFilter + ` AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	tables, err := queryStrings(ctx, a.conn, query, a.schemaName)
	if err != nil {
		return nil, &ConnectionError{Dialect: MySQL, Err: err}
	}
	return tables, nil
}

var mysqlIntWidth = regexp.MustCompile(`^(tinyint|smallint|mediumint|int|bigint)\(\d+\)(.*)$`)

var mysqlAliases = map[string]string{
	"integer": "int",
	"bool":    "tinyint(1)",
	"boolean": "tinyint(1)",
	"numeric": "decimal",
	"real":    "double",
}

// NormalizeType canonicalizes MySQL type spellings. Display widths on integer
// types are dropped, except tinyint(1) which MySQL uses for booleans.
func (a *MySQLAdapter) NormalizeType(raw string) string {
	t := normalizeWith(raw, mysqlAliases)
	if t == "tinyint(1)" {
		return t
	}
	if m := mysqlIntWidth.FindStringSubmatch(t); m != nil {
		t = m[1] + m[2]
	}
	if a, ok := mysqlAliases[t]; ok {
		return a
	}
	return t
}

// NativeType maps a semantic type onto a MySQL column type.
func (a *MySQLAdapter) NativeType(t schema.Type, size int) string {
	switch t {
	case schema.TypeString:
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("varchar(%d)", size)
	case schema.TypeText:
		return "text"
	case schema.TypeInteger:
		return "int"
	case schema.TypeBigInt:
		return "bigint"
	case schema.TypeFloat:
		return "double"
	case schema.TypeDecimal:
		return "decimal(20,6)"
	case schema.TypeBoolean:
		return "tinyint(1)"
	case schema.TypeDate:
		return "date"
	case schema.TypeDateTime:
		return "datetime"
	case schema.TypeJSON:
		return "json"
	case schema.TypeUUID:
		return "char(36)"
	case schema.TypeBinary:
		return "longblob"
	default:
		return string(t)
	}
}

// GetColumns extracts column information for a table
func (a *MySQLAdapter) GetColumns(ctx context.Context, table string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_default,
			c.column_key = 'PRI' AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = ` + schemaFilter + ` AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schemaName, table)
	if err != nil {
		return nil, introspectionError(MySQL, table, "columns", err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		var defaultVal sql.NullString
		var isPrimary int

		if err := rows.Scan(&col.Name, &col.RawType, &nullable, &defaultVal, &isPrimary); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		col.PrimaryKey = isPrimary == 1
		if defaultVal.Valid {
			col.DefaultValue = &defaultVal.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(MySQL, table, "columns", err)
	}
	return columns, nil
}

// GetIndices extracts index information, skipping the primary key
func (a *MySQLAdapter) GetIndices(ctx context.Context, table string) ([]schema.Index, error) {
	query := `
		SELECT
			s.index_name,
			s.non_unique = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ` + schemaFilter + `
			AND s.table_name = ?
			AND s.index_name != 'PRIMARY'
		GROUP BY s.index_name, s.non_unique
		ORDER BY s.index_name
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schemaName, table)
	if err != nil {
		return nil, introspectionError(MySQL, table, "indices", err)
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var isUnique int
		var columnNames string

		if err := rows.Scan(&idx.Name, &isUnique, &columnNames); err != nil {
			return nil, err
		}

		idx.Unique = (isUnique == 1)
		idx.Columns = strings.Split(columnNames, ",")
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(MySQL, table, "indices", err)
	}
	return indexes, nil
}

// GetForeignKeys extracts foreign key relationships
func (a *MySQLAdapter) GetForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			kcu.constraint_name,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.table_schema
			AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.table_schema = ` + schemaFilter + `
			AND kcu.table_name = ?
			AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.ordinal_position
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schemaName, table)
	if err != nil {
		return nil, introspectionError(MySQL, table, "foreign keys", err)
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.TargetTable, &fk.TargetColumn, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(MySQL, table, "foreign keys", err)
	}
	return fks, nil
}

// quoteMySQL quotes an identifier with backticks.
func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

const mysqlAutoIncrement = "AUTO_INCREMENT"

// CreateTable creates a table with its columns, primary key and inline foreign keys.
func (a *MySQLAdapter) CreateTable(ctx context.Context, def schema.TableDef) error {
	var clauses []string
	for _, c := range def.Columns {
		clauses = append(clauses, columnClause(quoteMySQL, c, mysqlAutoIncrement))
	}
	if pk := def.PrimaryKey(); len(pk) > 0 {
		clauses = append(clauses, "PRIMARY KEY ("+joinQuoted(quoteMySQL, pk)+")")
	}
	for _, fk := range def.ForeignKeys {
		clauses = append(clauses, "CONSTRAINT "+quoteMySQL(fk.Name)+" "+
			foreignKeyClause(quoteMySQL, quoteMySQL(fk.TargetTable), fk))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteMySQL(def.Name), strings.Join(clauses, ", "))
	return exec(ctx, a.conn, def.Name, "", stmt)
}

func (a *MySQLAdapter) DropTable(ctx context.Context, table string) error {
	return exec(ctx, a.conn, table, "", "DROP TABLE "+quoteMySQL(table))
}

func (a *MySQLAdapter) AddColumn(ctx context.Context, table string, def schema.ColumnDef) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteMySQL(table), columnClause(quoteMySQL, def, mysqlAutoIncrement))
	return exec(ctx, a.conn, table, def.Name, stmt)
}

func (a *MySQLAdapter) RemoveColumn(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteMySQL(table), quoteMySQL(name))
	return exec(ctx, a.conn, table, name, stmt)
}

func (a *MySQLAdapter) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteMySQL(table), quoteMySQL(oldName), quoteMySQL(newName))
	return exec(ctx, a.conn, table, oldName, stmt)
}

// ChangeColumnType restates the whole column definition with MODIFY COLUMN.
func (a *MySQLAdapter) ChangeColumnType(ctx context.Context, table, name, _ string, def schema.ColumnDef) error {
	def.Name = name
	stmt := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", quoteMySQL(table), columnClause(quoteMySQL, def, mysqlAutoIncrement))
	return exec(ctx, a.conn, table, name, stmt)
}

func (a *MySQLAdapter) AddConstraint(ctx context.Context, table string, fk schema.ForeignKey) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", quoteMySQL(table), quoteMySQL(fk.Name),
		foreignKeyClause(quoteMySQL, quoteMySQL(fk.TargetTable), fk))
	return exec(ctx, a.conn, table, fk.Column, stmt)
}

func (a *MySQLAdapter) DropConstraint(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", quoteMySQL(table), quoteMySQL(name))
	return exec(ctx, a.conn, table, "", stmt)
}

func (a *MySQLAdapter) AddIndex(ctx context.Context, table string, idx schema.Index) error {
	stmt := indexStatement(quoteMySQL, quoteMySQL(idx.Name), quoteMySQL(table), idx)
	return exec(ctx, a.conn, table, "", stmt)
}

func (a *MySQLAdapter) DropIndex(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("DROP INDEX %s ON %s", quoteMySQL(name), quoteMySQL(table))
	return exec(ctx, a.conn, table, "", stmt)
}

// CastColumnType allows widening casts that MODIFY COLUMN performs losslessly.
func (a *MySQLAdapter) CastColumnType(_ context.Context, _, _, oldType, newType string) bool {
	return isWideningCast(a.NormalizeType(oldType), a.NormalizeType(newType))
}

var _ Adapter = (*MySQLAdapter)(nil)
