package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/schema"
)

func newMock(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRecorder(db), mock
}

func strPtr(s string) *string { return &s }

func TestPostgresAdapter_DDL(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMock(t)
	a := NewPostgresAdapter(conn, "")

	want := []string{
		`CREATE TABLE "public"."posts" ("id" bigint GENERATED BY DEFAULT AS IDENTITY NOT NULL, "title" varchar(120) NOT NULL DEFAULT 'untitled', "author_id" bigint, PRIMARY KEY ("id"), CONSTRAINT "posts_author_id_fkey" FOREIGN KEY ("author_id") REFERENCES "public"."users" ("id") ON DELETE CASCADE)`,
		`ALTER TABLE "public"."posts" ADD COLUMN "body" text`,
		`ALTER TABLE "public"."posts" RENAME COLUMN "body" TO "content"`,
		`ALTER TABLE "public"."posts" ALTER COLUMN "views" TYPE bigint USING "views"::bigint`,
		`ALTER TABLE "public"."posts" DROP COLUMN "content"`,
		`ALTER TABLE "public"."posts" ADD CONSTRAINT "posts_editor_id_fkey" FOREIGN KEY ("editor_id") REFERENCES "public"."users" ("id")`,
		`ALTER TABLE "public"."posts" DROP CONSTRAINT "posts_editor_id_fkey"`,
		`CREATE UNIQUE INDEX "posts_title_key" ON "public"."posts" ("title")`,
		`DROP INDEX "public"."posts_title_key"`,
		`DROP TABLE "public"."posts"`,
	}
	for _, stmt := range want {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, a.CreateTable(ctx, schema.TableDef{
		Name: "posts",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: "bigint", PrimaryKey: true, AutoIncrement: true},
			{Name: "title", Type: "varchar(120)", Default: strPtr("'untitled'")},
			{Name: "author_id", Type: "bigint", Nullable: true},
		},
		ForeignKeys: []schema.ForeignKey{
			{Name: "posts_author_id_fkey", Column: "author_id", TargetTable: "users", TargetColumn: "id", OnDelete: "cascade"},
		},
	}))
	require.NoError(t, a.AddColumn(ctx, "posts", schema.ColumnDef{Name: "body", Type: "text", Nullable: true}))
	require.NoError(t, a.RenameColumn(ctx, "posts", "body", "content"))
	require.NoError(t, a.ChangeColumnType(ctx, "posts", "views", "integer", schema.ColumnDef{Name: "views", Type: "bigint"}))
	require.NoError(t, a.RemoveColumn(ctx, "posts", "content"))
	require.NoError(t, a.AddConstraint(ctx, "posts", schema.ForeignKey{Name: "posts_editor_id_fkey", Column: "editor_id", TargetTable: "users", TargetColumn: "id"}))
	require.NoError(t, a.DropConstraint(ctx, "posts", "posts_editor_id_fkey"))
	require.NoError(t, a.AddIndex(ctx, "posts", schema.Index{Name: "posts_title_key", Columns: []string{"title"}, Unique: true}))
	require.NoError(t, a.DropIndex(ctx, "posts", "posts_title_key"))
	require.NoError(t, a.DropTable(ctx, "posts"))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, want, conn.Statements())
}

func TestPostgresAdapter_DDLError(t *testing.T) {
	conn, mock := newMock(t)
	a := NewPostgresAdapter(conn, "app")
	cause := errors.New(`column "email" already exists`)
	mock.ExpectExec(`ALTER TABLE "app"."users" ADD COLUMN "email" varchar(255) NOT NULL`).WillReturnError(cause)

	err := a.AddColumn(context.Background(), "users", schema.ColumnDef{Name: "email", Type: "varchar(255)"})
	require.Error(t, err)
	var ddl *DDLError
	require.ErrorAs(t, err, &ddl)
	assert.Equal(t, "users", ddl.Table)
	assert.Equal(t, "email", ddl.Column)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, conn.Statements())
}

func TestPostgresAdapter_Introspection(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := NewPostgresAdapter(db, "")

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("posts").AddRow("users"))
	tables, err := a.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, tables)

	mock.ExpectQuery("FROM information_schema.columns c").
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "udt_name", "character_maximum_length", "is_primary"}).
			AddRow("id", "bigint", "NO", nil, "int8", nil, true).
			AddRow("title", "character varying", "NO", "'x'::character varying", "varchar", 120, false).
			AddRow("tags", "ARRAY", "YES", nil, "_text", nil, false).
			AddRow("created_at", "timestamp with time zone", "YES", "now()", "timestamptz", nil, false))
	cols, err := a.GetColumns(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.True(t, cols[0].PrimaryKey)
	assert.Equal(t, "varchar(120)", cols[1].RawType)
	assert.False(t, cols[1].Nullable)
	assert.Equal(t, "'x'::character varying", *cols[1].DefaultValue)
	assert.Equal(t, "text[]", cols[2].RawType)
	assert.Equal(t, "timestamptz", cols[3].RawType)

	mock.ExpectQuery("FROM pg_class t").
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "is_unique", "column_names"}).
			AddRow("posts_title_key", true, "title").
			AddRow("posts_author_created_idx", false, "author_id,created_at"))
	indices, err := a.GetIndices(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, indices, 2)
	assert.Equal(t, []string{"author_id", "created_at"}, indices[1].Columns)
	assert.True(t, indices[0].Unique)

	mock.ExpectQuery("WHERE tc.constraint_type = 'FOREIGN KEY'").
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "column_name", "foreign_table_name", "foreign_column_name", "update_rule", "delete_rule"}).
			AddRow("posts_author_id_fkey", "author_id", "users", "id", "NO ACTION", "CASCADE"))
	fks, err := a.GetForeignKeys(ctx, "posts")
	require.NoError(t, err)
	require.Equal(t, []schema.ForeignKey{{
		Name: "posts_author_id_fkey", Column: "author_id", TargetTable: "users", TargetColumn: "id",
		OnDelete: "CASCADE", OnUpdate: "NO ACTION",
	}}, fks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdapter_ListTablesConnectionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT table_name").WillReturnError(errors.New("connection refused"))

	_, err = NewPostgresAdapter(db, "").ListTables(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestPostgresAdapter_CastColumnType(t *testing.T) {
	a := NewPostgresAdapter(nil, "")
	ctx := context.Background()
	assert.True(t, a.CastColumnType(ctx, "t", "c", "int4", "bigint"))
	assert.True(t, a.CastColumnType(ctx, "t", "c", "character varying(50)", "varchar(80)"))
	assert.False(t, a.CastColumnType(ctx, "t", "c", "bigint", "integer"))
	assert.False(t, a.CastColumnType(ctx, "t", "c", "text", "uuid"))
}
