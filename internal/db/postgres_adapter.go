package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tordrt/schemasync/internal/schema"
)

const varcharType = "varchar"

// PostgresAdapter introspects and mutates a PostgreSQL schema
type PostgresAdapter struct {
	conn   ExecQuerier
	schema string
}

// NewPostgresAdapter creates a new PostgreSQL adapter working in schemaName.
func NewPostgresAdapter(conn ExecQuerier, schemaName string) *PostgresAdapter {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresAdapter{
		conn:   conn,
		schema: schemaName,
	}
}

func (a *PostgresAdapter) Dialect() string { return Postgres }

// SupportsTransactionalDDL is true: PostgreSQL runs DDL inside transactions.
func (a *PostgresAdapter) SupportsTransactionalDDL() bool { return true }

// ListTables returns the base tables of the schema ordered by name.
func (a *PostgresAdapter) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	tables, err := queryStrings(ctx, a.conn, query, a.schema)
	if err != nil {
		return nil, &ConnectionError{Dialect: Postgres, Err: err}
	}
	return tables, nil
}

// normalizePostgresType maps verbose SQL type names to commonly-used PostgreSQL equivalents
func normalizePostgresType(dataType, udtName string, charMaxLength *int) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return varcharType
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "ARRAY":
		// udt_name has underscore prefix for arrays (e.g., "_text" for text[], "_int4" for integer[])
		if len(udtName) > 0 && udtName[0] == '_' {
			elementType := normalizeUdtName(udtName[1:])
			return fmt.Sprintf("%s[]", elementType)
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts PostgreSQL internal type names to more readable forms
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	case varcharType:
		return varcharType
	default:
		return udtName
	}
}

var postgresAliases = map[string]string{
	"int":                         "integer",
	"int4":                        "integer",
	"int8":                        "bigint",
	"int2":                        "smallint",
	"float4":                      "real",
	"float8":                      "double precision",
	"float":                       "double precision",
	"bool":                        "boolean",
	"decimal":                     "numeric",
	"character varying":           varcharType,
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"time with time zone":         "timetz",
	"time without time zone":      "time",
}

// NormalizeType canonicalizes PostgreSQL type spellings.
func (a *PostgresAdapter) NormalizeType(raw string) string {
	t := normalizeWith(raw, postgresAliases)
	if strings.HasPrefix(t, "character varying(") {
		return varcharType + strings.TrimPrefix(t, "character varying")
	}
	return t
}

// NativeType maps a semantic type onto a PostgreSQL column type.
func (a *PostgresAdapter) NativeType(t schema.Type, size int) string {
	switch t {
	case schema.TypeString:
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("varchar(%d)", size)
	case schema.TypeText:
		return "text"
	case schema.TypeInteger:
		return "integer"
	case schema.TypeBigInt:
		return "bigint"
	case schema.TypeFloat:
		return "double precision"
	case schema.TypeDecimal:
		return "numeric"
	case schema.TypeBoolean:
		return "boolean"
	case schema.TypeDate:
		return "date"
	case schema.TypeDateTime:
		return "timestamptz"
	case schema.TypeJSON:
		return "jsonb"
	case schema.TypeUUID:
		return "uuid"
	case schema.TypeBinary:
		return "bytea"
	default:
		return string(t)
	}
}

// GetColumns extracts column information for a table
func (a *PostgresAdapter) GetColumns(ctx context.Context, table string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.udt_name,
			c.character_maximum_length,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.table_schema = $1
					AND tc.table_name = $2
					AND tc.constraint_type = 'PRIMARY KEY'
					AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schema, table)
	if err != nil {
		return nil, introspectionError(Postgres, table, "columns", err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var dataType, nullable, udtName string
		var defaultVal sql.NullString
		var charMaxLength sql.NullInt64

		if err := rows.Scan(&col.Name, &dataType, &nullable, &defaultVal, &udtName, &charMaxLength, &col.PrimaryKey); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		if defaultVal.Valid {
			col.DefaultValue = &defaultVal.String
		}
		var maxLen *int
		if charMaxLength.Valid {
			n := int(charMaxLength.Int64)
			maxLen = &n
		}
		col.RawType = normalizePostgresType(dataType, udtName, maxLen)
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(Postgres, table, "columns", err)
	}
	return columns, nil
}

// GetIndices extracts non-primary index information
func (a *PostgresAdapter) GetIndices(ctx context.Context, table string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			string_agg(a.attname::text, ',' ORDER BY array_position(ix.indkey::int2[], a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schema, table)
	if err != nil {
		return nil, introspectionError(Postgres, table, "indices", err)
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var columnNames string
		if err := rows.Scan(&idx.Name, &idx.Unique, &columnNames); err != nil {
			return nil, err
		}
		idx.Name = stripQuotes(idx.Name)
		for _, c := range strings.Split(columnNames, ",") {
			idx.Columns = append(idx.Columns, stripQuotes(c))
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(Postgres, table, "indices", err)
	}
	return indexes, nil
}

// GetForeignKeys extracts foreign key relationships
func (a *PostgresAdapter) GetForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints AS rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`

	rows, err := a.conn.QueryContext(ctx, query, a.schema, table)
	if err != nil {
		return nil, introspectionError(Postgres, table, "foreign keys", err)
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.TargetTable, &fk.TargetColumn, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, err
		}
		fk.Name = stripQuotes(fk.Name)
		fk.Column = stripQuotes(fk.Column)
		fk.TargetTable = stripQuotes(fk.TargetTable)
		fk.TargetColumn = stripQuotes(fk.TargetColumn)
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, introspectionError(Postgres, table, "foreign keys", err)
	}
	return fks, nil
}

func (a *PostgresAdapter) qualify(name string) string {
	return pq.QuoteIdentifier(a.schema) + "." + pq.QuoteIdentifier(name)
}

const postgresIdentity = "GENERATED BY DEFAULT AS IDENTITY"

// CreateTable creates a table with its columns, primary key and inline foreign keys.
func (a *PostgresAdapter) CreateTable(ctx context.Context, def schema.TableDef) error {
	var clauses []string
	for _, c := range def.Columns {
		clauses = append(clauses, columnClause(pq.QuoteIdentifier, c, postgresIdentity))
	}
	if pk := def.PrimaryKey(); len(pk) > 0 {
		clauses = append(clauses, "PRIMARY KEY ("+joinQuoted(pq.QuoteIdentifier, pk)+")")
	}
	for _, fk := range def.ForeignKeys {
		clauses = append(clauses, "CONSTRAINT "+pq.QuoteIdentifier(fk.Name)+" "+
			foreignKeyClause(pq.QuoteIdentifier, a.qualify(fk.TargetTable), fk))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", a.qualify(def.Name), strings.Join(clauses, ", "))
	return exec(ctx, a.conn, def.Name, "", stmt)
}

func (a *PostgresAdapter) DropTable(ctx context.Context, table string) error {
	return exec(ctx, a.conn, table, "", "DROP TABLE "+a.qualify(table))
}

func (a *PostgresAdapter) AddColumn(ctx context.Context, table string, def schema.ColumnDef) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", a.qualify(table), columnClause(pq.QuoteIdentifier, def, postgresIdentity))
	return exec(ctx, a.conn, table, def.Name, stmt)
}

func (a *PostgresAdapter) RemoveColumn(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", a.qualify(table), pq.QuoteIdentifier(name))
	return exec(ctx, a.conn, table, name, stmt)
}

func (a *PostgresAdapter) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", a.qualify(table), pq.QuoteIdentifier(oldName), pq.QuoteIdentifier(newName))
	return exec(ctx, a.conn, table, oldName, stmt)
}

// ChangeColumnType retypes a column in place, casting existing values.
func (a *PostgresAdapter) ChangeColumnType(ctx context.Context, table, name, _ string, def schema.ColumnDef) error {
	col := pq.QuoteIdentifier(name)
	stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", a.qualify(table), col, def.Type, col, def.Type)
	return exec(ctx, a.conn, table, name, stmt)
}

func (a *PostgresAdapter) AddConstraint(ctx context.Context, table string, fk schema.ForeignKey) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", a.qualify(table), pq.QuoteIdentifier(fk.Name),
		foreignKeyClause(pq.QuoteIdentifier, a.qualify(fk.TargetTable), fk))
	return exec(ctx, a.conn, table, fk.Column, stmt)
}

func (a *PostgresAdapter) DropConstraint(ctx context.Context, table, name string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", a.qualify(table), pq.QuoteIdentifier(name))
	return exec(ctx, a.conn, table, "", stmt)
}

func (a *PostgresAdapter) AddIndex(ctx context.Context, table string, idx schema.Index) error {
	stmt := indexStatement(pq.QuoteIdentifier, pq.QuoteIdentifier(idx.Name), a.qualify(table), idx)
	return exec(ctx, a.conn, table, "", stmt)
}

// DropIndex drops an index; PostgreSQL index names are schema-scoped.
func (a *PostgresAdapter) DropIndex(ctx context.Context, table, name string) error {
	return exec(ctx, a.conn, table, "", "DROP INDEX "+a.qualify(name))
}

// CastColumnType allows widening casts that ALTER COLUMN ... TYPE can perform losslessly.
func (a *PostgresAdapter) CastColumnType(_ context.Context, _, _, oldType, newType string) bool {
	return isWideningCast(a.NormalizeType(oldType), a.NormalizeType(newType))
}

var _ Adapter = (*PostgresAdapter)(nil)
