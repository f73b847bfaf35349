package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_DryRun(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil)

	res, err := r.ExecContext(ctx, "DROP TABLE users")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = r.QueryContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrRecorderQuery)
	assert.Equal(t, []string{"DROP TABLE users"}, r.Statements())
}

func TestRecorder_Forward(t *testing.T) {
	ctx := context.Background()
	client := openSQLite(t)
	r := NewRecorder(client.GetDB())

	_, err := r.ExecContext(ctx, "CREATE TABLE t (id integer)")
	require.NoError(t, err)
	_, err = r.ExecContext(ctx, "CREATE TABLE t (id integer)")
	require.Error(t, err)

	tables, err := NewSQLiteAdapter(r).ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, tables)
	assert.Equal(t, []string{"CREATE TABLE t (id integer)"}, r.Statements())
}
