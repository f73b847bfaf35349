package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync"
	"github.com/tordrt/schemasync/internal/config"
	"github.com/tordrt/schemasync/internal/db"
	"github.com/tordrt/schemasync/internal/plan"
)

const blogModel = `entities:
  - name: users
    fields:
      - {name: id, type: bigint, primary_key: true, auto_increment: true}
      - {name: email, type: string, size: 120, unique: true}
  - name: posts
    fields:
      - {name: id, type: bigint, primary_key: true, auto_increment: true}
      - {name: user_id, type: bigint}
      - {name: title, type: text, nullable: true}
    relations:
      - {field: user_id, target: users, on_delete: CASCADE}
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvPostgresURL, config.EnvMySQLURL, config.EnvSQLitePath, config.EnvSQLiteDriver,
		config.EnvSchema, config.EnvModel, config.EnvExclude, config.EnvFormat, config.EnvLogLevel,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCLI_ApplyAndDiff(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(blogModel), 0644))
	dbPath := filepath.Join(dir, "blog.db")
	exportDir := filepath.Join(dir, "migrations")
	common := []string{"--sqlite", dbPath, "--sqlite-driver", db.SQLiteDriverPure, "--model", modelPath, "--log-level", "error"}

	out, err := execute(t, append([]string{"diff"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "EntityAdded users")
	assert.Contains(t, out, "EntityAdded posts")

	out, err = execute(t, append([]string{"apply", "--dry-run"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "DRY RUN")
	assert.Contains(t, out, `CREATE TABLE "users"`)

	out, err = execute(t, append([]string{"apply", "--export-dir", exportDir}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "APPLIED:")
	assert.Contains(t, out, "CreateTable posts (id, user_id, title)")

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2)
	assert.True(t, strings.HasSuffix(names[0], "_schemasync.sql"))
	assert.Equal(t, "atlas.sum", names[1])

	out, err = execute(t, append([]string{"diff"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "No changes: schema matches the model.\n", out)

	out, err = execute(t, append([]string{"inspect", "--format", "markdown"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "## posts")
	assert.Contains(t, out, "- user_id → users.id ON DELETE CASCADE")
}

func TestCLI_Errors(t *testing.T) {
	clearEnv(t)

	_, err := execute(t, "diff")
	assert.ErrorContains(t, err, "one of --db-url, --mysql-url, or --sqlite must be specified")

	_, err = execute(t, "diff", "--sqlite", "a.db", "--db-url", "postgres://localhost/db")
	assert.ErrorContains(t, err, "only one of")

	_, err = execute(t, "diff", "--sqlite", "a.db", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = execute(t, "inspect", "--sqlite", filepath.Join(t.TempDir(), "x.db"), "--sqlite-driver", db.SQLiteDriverPure, "--format", "html")
	assert.ErrorContains(t, err, "invalid format")
}

func TestCLI_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvPostgresURL, "postgres://localhost/db")
	t.Setenv(config.EnvFormat, "markdown")

	c := &cli{}
	cmd := c.command()
	require.NoError(t, cmd.ParseFlags([]string{"--sqlite", "a.db", "--exclude", "audit,tmp"}))

	cfg, err := config.Load("")
	require.NoError(t, err)
	c.applyFlags(cmd, cfg)

	u, err := cfg.DatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://a.db", u)
	assert.Equal(t, []string{"audit", "tmp"}, cfg.Exclude)
	assert.Equal(t, "markdown", cfg.Format)
}

func TestToReport(t *testing.T) {
	res := &schemasync.Result{
		RunID:      "run",
		RolledBack: true,
		Applied:    []plan.Action{{Kind: plan.CreateTable, Table: "users"}},
		Warnings: []schemasync.Warning{{
			Action: plan.Action{Kind: plan.AddConstraint, Table: "posts"},
			Err:    errors.New("not implemented"),
		}},
		Statements: []string{"CREATE TABLE users"},
	}
	failure := errors.New("boom")

	r := toReport(res, failure)
	assert.Equal(t, "run", r.RunID)
	assert.True(t, r.RolledBack)
	assert.Len(t, r.Applied, 1)
	require.Len(t, r.Skipped, 1)
	assert.Equal(t, "not implemented", r.Skipped[0].Reason)
	assert.Equal(t, failure, r.Err)
}
