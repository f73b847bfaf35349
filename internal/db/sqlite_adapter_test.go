package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/schema"
)

func openSQLite(t *testing.T) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	client, err := NewSQLiteClient(context.Background(), "file:"+path+"?_pragma=foreign_keys(1)", SQLiteDriverPure)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSQLiteAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := openSQLite(t)
	a, err := New(client.Dialect(), client.GetDB(), Options{})
	require.NoError(t, err)
	assert.Equal(t, SQLite, a.Dialect())

	require.NoError(t, a.CreateTable(ctx, schema.TableDef{
		Name: "users",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: a.NativeType(schema.TypeBigInt, 0), PrimaryKey: true, AutoIncrement: true},
			{Name: "email", Type: a.NativeType(schema.TypeString, 120)},
		},
	}))
	require.NoError(t, a.CreateTable(ctx, schema.TableDef{
		Name: "posts",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: "integer", PrimaryKey: true, AutoIncrement: true},
			{Name: "user_id", Type: "integer"},
			{Name: "title", Type: "text", Nullable: true, Default: strPtr("'draft'")},
		},
		ForeignKeys: []schema.ForeignKey{
			{Column: "user_id", TargetTable: "users", TargetColumn: "id", OnDelete: "CASCADE"},
		},
	}))
	require.NoError(t, a.AddIndex(ctx, "users", schema.Index{Name: "users_email_key", Columns: []string{"email"}, Unique: true}))
	require.NoError(t, a.AddIndex(ctx, "posts", schema.Index{Name: "posts_user_id_title_idx", Columns: []string{"user_id", "title"}}))

	tables, err := a.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, tables)

	cols, err := a.GetColumns(ctx, "users")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, cols[0].PrimaryKey)
	assert.Equal(t, "integer", a.NormalizeType(cols[0].RawType))
	assert.Equal(t, "varchar(120)", a.NormalizeType(cols[1].RawType))
	assert.False(t, cols[1].Nullable)

	cols, err = a.GetColumns(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, cols[2].Nullable)
	require.NotNil(t, cols[2].DefaultValue)
	assert.Equal(t, "'draft'", *cols[2].DefaultValue)

	indices, err := a.GetIndices(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, []schema.Index{{Name: "posts_user_id_title_idx", Columns: []string{"user_id", "title"}}}, indices)

	indices, err = a.GetIndices(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []schema.Index{{Name: "users_email_key", Columns: []string{"email"}, Unique: true}}, indices)

	fks, err := a.GetForeignKeys(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "user_id", fks[0].Column)
	assert.Equal(t, "users", fks[0].TargetTable)
	assert.Equal(t, "id", fks[0].TargetColumn)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)
	assert.Empty(t, fks[0].Name)

	require.NoError(t, a.AddColumn(ctx, "users", schema.ColumnDef{Name: "nickname", Type: "text", Nullable: true}))
	require.NoError(t, a.RenameColumn(ctx, "users", "nickname", "handle"))
	cols, err = a.GetColumns(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "handle", cols[2].Name)
	require.NoError(t, a.RemoveColumn(ctx, "users", "handle"))

	require.NoError(t, a.DropIndex(ctx, "posts", "posts_user_id_title_idx"))
	require.NoError(t, a.DropTable(ctx, "posts"))
	tables, err = a.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)
}

func TestSQLiteAdapter_NotImplemented(t *testing.T) {
	ctx := context.Background()
	a := NewSQLiteAdapter(nil)

	assert.True(t, IsNotImplemented(a.AddConstraint(ctx, "posts", schema.ForeignKey{Column: "user_id"})))
	assert.True(t, IsNotImplemented(a.DropConstraint(ctx, "posts", "fk")))
	assert.True(t, IsNotImplemented(a.ChangeColumnType(ctx, "posts", "title", "text", schema.ColumnDef{})))
	assert.False(t, a.CastColumnType(ctx, "posts", "id", "integer", "integer"))
}

func TestSQLiteAdapter_DuplicateColumn(t *testing.T) {
	ctx := context.Background()
	client := openSQLite(t)
	a := NewSQLiteAdapter(client.GetDB())

	require.NoError(t, a.CreateTable(ctx, schema.TableDef{
		Name:    "tags",
		Columns: []schema.ColumnDef{{Name: "name", Type: "text"}},
	}))
	err := a.AddColumn(ctx, "tags", schema.ColumnDef{Name: "name", Type: "text", Nullable: true})
	require.Error(t, err)
	assert.True(t, IsDDLError(err))
}

func TestNewSQLiteClient_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteClient(context.Background(), ":memory:", "duckdb")
	assert.Error(t, err)
}

func TestNew_UnknownDialect(t *testing.T) {
	_, err := New("oracle", nil, Options{})
	assert.Error(t, err)
	assert.True(t, HasDialect("postgresql"))
	assert.True(t, HasDialect("sqlite3"))
	assert.False(t, HasDialect("oracle"))
}
