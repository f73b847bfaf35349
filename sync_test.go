package schemasync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/db/dbtest"
	"github.com/tordrt/schemasync/internal/diff"
	"github.com/tordrt/schemasync/internal/model"
	"github.com/tordrt/schemasync/internal/plan"
	"github.com/tordrt/schemasync/internal/schema"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	handle, err := sql.Open(db.SQLiteDriverPure, "file:"+path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return handle
}

func blogModel() *model.Model {
	return &model.Model{Entities: []model.Entity{
		{
			Name: "users",
			Fields: []model.Field{
				{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, AutoIncrement: true},
				{Name: "email", Type: schema.TypeString, Size: 120, Unique: true},
			},
		},
		{
			Name: "posts",
			Fields: []model.Field{
				{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, AutoIncrement: true},
				{Name: "user_id", Type: schema.TypeBigInt},
				{Name: "title", Type: schema.TypeString, Size: 200},
				{Name: "body", Type: schema.TypeText, Nullable: true},
			},
			Relations: []model.Relation{{Field: "user_id", Target: "users", OnDelete: "CASCADE"}},
			Indexes:   []model.Index{{Fields: []string{"user_id", "title"}}},
		},
	}}
}

func TestSync_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	handle := openSQLite(t)

	m := blogModel()
	s, err := New("sqlite3", handle, m, WithLogger(quiet))
	require.NoError(t, err)
	assert.Equal(t, db.SQLite, s.Dialect())

	diffs, err := s.Diff(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, diffs)

	res, err := s.Apply(ctx, diffs, ApplyOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, len(res.Planned), len(res.Applied))
	assert.Len(t, res.Statements, 4)
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)

	// Applying the resolved diff leaves nothing to do.
	diffs, err = s.Diff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	live, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, live.TableNames())
	posts, ok := live.Table("posts")
	require.True(t, ok)
	fk, ok := posts.ForeignKeys["user_id"]
	require.True(t, ok)
	assert.Equal(t, "users", fk.TargetTable)
	assert.Equal(t, "CASCADE", fk.OnDelete)

	// Rename posts.body and add users.name.
	m.Entities[1].Fields[3].Name = "content"
	m.Entities[0].Fields = append(m.Entities[0].Fields, model.Field{Name: "name", Type: schema.TypeString, Size: 60, Nullable: true})

	diffs, err = s.Diff(ctx)
	require.NoError(t, err)
	var got []string
	for _, d := range diffs {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"FieldAdded users.name", "FieldRenamed posts.body -> content"}, got)

	res, err = s.Apply(ctx, diffs, ApplyOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)

	diffs, err = s.Diff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestSync_CapabilityGate(t *testing.T) {
	ctx := context.Background()
	handle := openSQLite(t)

	m := blogModel()
	relations := m.Entities[1].Relations
	m.Entities[1].Relations = nil
	m.Entities = append(m.Entities, model.Entity{
		Name: "comments",
		Fields: []model.Field{
			{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, AutoIncrement: true},
			{Name: "post_id", Type: schema.TypeBigInt},
		},
		Relations: []model.Relation{{Field: "post_id", Target: "posts"}},
	})

	s, err := New("sqlite", handle, m, WithLogger(quiet))
	require.NoError(t, err)
	diffs, err := s.Diff(ctx)
	require.NoError(t, err)
	_, err = s.Apply(ctx, diffs, ApplyOptions{})
	require.NoError(t, err)

	// Declare posts.user_id and stop declaring comments.post_id.
	m.Entities[1].Relations = relations
	m.Entities[2].Relations = nil
	diffs, err = s.Diff(ctx)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	assert.Equal(t, diff.RelationAdded, diffs[0].Kind)
	assert.Equal(t, diff.RelationRemoved, diffs[1].Kind)

	res, err := s.Apply(ctx, diffs, ApplyOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Statements)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, plan.DropConstraint, res.Warnings[0].Action.Kind)
	assert.Equal(t, plan.AddConstraint, res.Warnings[1].Action.Kind)
	for _, w := range res.Warnings {
		assert.ErrorIs(t, w.Err, ErrNotImplemented)
	}
}

func threeTables() *model.Model {
	return tableModel("accounts", "invoices", "payments")
}

func tableModel(names ...string) *model.Model {
	m := &model.Model{}
	for _, name := range names {
		m.Entities = append(m.Entities, model.Entity{
			Name:   name,
			Fields: []model.Field{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}},
		})
	}
	return m
}

// postgresDiffs computes diffs of m against an empty Postgres schema.
func postgresDiffs(m *model.Model) []diff.Diff {
	return diff.Compute(m, schema.New(nil), db.NewPostgresAdapter(nil, ""))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	handle, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return handle, mock
}

func createStmt(table string) string {
	return regexp.QuoteMeta(`CREATE TABLE "public"."` + table + `"`)
}

func TestApply_PartialFailure(t *testing.T) {
	handle, mock := newMock(t)
	m := tableModel("accounts", "invoices", "payments", "refunds", "ledgers")
	s, err := New("postgres", handle, m, WithLogger(quiet))
	require.NoError(t, err)

	boom := errors.New("permission denied for schema public")
	mock.ExpectExec(createStmt("accounts")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createStmt("invoices")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createStmt("payments")).WillReturnError(boom)
	mock.ExpectExec(createStmt("refunds")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createStmt("ledgers")).WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := s.Apply(context.Background(), postgresDiffs(m), ApplyOptions{})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Planned, 5)
	require.Len(t, res.Applied, 2)
	assert.Equal(t, "accounts", res.Applied[0].Table)
	assert.Equal(t, "invoices", res.Applied[1].Table)
	assert.Len(t, res.Statements, 2)
	assert.False(t, res.RolledBack)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "payments", applyErr.Action.Table)
	assert.True(t, IsApplyError(err))
	assert.True(t, db.IsDDLError(err))
	assert.ErrorIs(t, err, boom)

	// The run stopped: the statements after the failure were never issued.
	unmet := mock.ExpectationsWereMet()
	require.Error(t, unmet)
	assert.Contains(t, unmet.Error(), "refunds")
}

func TestApply_DryRun(t *testing.T) {
	handle, mock := newMock(t)
	m := threeTables()
	s, err := New("postgres", handle, m, WithLogger(quiet))
	require.NoError(t, err)

	res, err := s.Apply(context.Background(), postgresDiffs(m), ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Applied, 3)
	assert.Equal(t, []string{
		`CREATE TABLE "public"."accounts" ("id" bigint NOT NULL, PRIMARY KEY ("id"))`,
		`CREATE TABLE "public"."invoices" ("id" bigint NOT NULL, PRIMARY KEY ("id"))`,
		`CREATE TABLE "public"."payments" ("id" bigint NOT NULL, PRIMARY KEY ("id"))`,
	}, res.Statements)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_Transactional(t *testing.T) {
	t.Run("rollback", func(t *testing.T) {
		handle, mock := newMock(t)
		m := threeTables()
		s, err := New("postgres", handle, m, WithLogger(quiet))
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(createStmt("accounts")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(createStmt("invoices")).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		res, err := s.Apply(context.Background(), postgresDiffs(m), ApplyOptions{Transactional: true})
		require.Error(t, err)
		assert.True(t, IsApplyError(err))
		assert.True(t, res.RolledBack)
		assert.Len(t, res.Applied, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit", func(t *testing.T) {
		handle, mock := newMock(t)
		m := threeTables()
		s, err := New("postgres", handle, m, WithLogger(quiet))
		require.NoError(t, err)

		mock.ExpectBegin()
		for _, table := range []string{"accounts", "invoices", "payments"} {
			mock.ExpectExec(createStmt(table)).WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectCommit()

		res, err := s.Apply(context.Background(), postgresDiffs(m), ApplyOptions{Transactional: true})
		require.NoError(t, err)
		assert.False(t, res.RolledBack)
		assert.Len(t, res.Applied, 3)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unsupported", func(t *testing.T) {
		handle, mock := newMock(t)
		s, err := New("mysql", handle, threeTables(), WithLogger(quiet))
		require.NoError(t, err)

		res, err := s.Apply(context.Background(), nil, ApplyOptions{Transactional: true})
		assert.ErrorIs(t, err, ErrTransactionalUnsupported)
		assert.Empty(t, res.Applied)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApply_WithholdsDestructive(t *testing.T) {
	handle, _ := newMock(t)
	fake := dbtest.New()
	fake.AddTable("sessions", schema.Column{Name: "id", RawType: "bigint", PrimaryKey: true})
	fake.AddTable("users",
		schema.Column{Name: "id", RawType: "bigint", PrimaryKey: true},
		schema.Column{Name: "legacy", RawType: "text", Nullable: true},
	)
	m := &model.Model{Entities: []model.Entity{
		{Name: "users", Fields: []model.Field{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}}},
	}}
	s, err := New("postgres", handle, m, WithLogger(quiet), WithAdapterFactory(func(string, ExecQuerier, db.Options) (Adapter, error) {
		return fake, nil
	}))
	require.NoError(t, err)

	diffs, err := s.Diff(context.Background())
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	res, err := s.Apply(context.Background(), diffs, ApplyOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Planned)
	assert.Len(t, res.Withheld, 2)
	assert.Empty(t, fake.Calls)

	res, err = s.Apply(context.Background(), diffs, ApplyOptions{AllowDestructive: true})
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, []string{"DropTable sessions", "RemoveColumn users.legacy"}, fake.Calls)
}

func TestDiff_Errors(t *testing.T) {
	handle, _ := newMock(t)
	fake := dbtest.New()
	fake.AddTable("users", schema.Column{Name: "id", RawType: "bigint", PrimaryKey: true})
	fake.AddTable("schema_migrations", schema.Column{Name: "version", RawType: "bigint"})
	fake.Unsupported["indices:users"] = true

	m := &model.Model{Entities: []model.Entity{
		{Name: "users", Fields: []model.Field{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}}},
	}}
	s, err := New("postgres", handle, m,
		WithLogger(quiet),
		WithExcludeTables("schema_migrations"),
		WithAdapterFactory(func(string, ExecQuerier, db.Options) (Adapter, error) { return fake, nil }),
	)
	require.NoError(t, err)

	diffs, err := s.Diff(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diffs)

	fake.ListErr = &db.ConnectionError{Dialect: db.Postgres, Err: sql.ErrConnDone}
	diffs, err = s.Diff(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Nil(t, diffs)
}
