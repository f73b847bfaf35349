package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"SCHEMASYNC_SQLITE=app.db\n"+
			"SCHEMASYNC_EXCLUDE= schema_migrations , ,audit_log\n"+
			"SCHEMASYNC_FORMAT=Markdown\n"+
			"SCHEMASYNC_LOG_LEVEL=debug\n"+
			"SCHEMASYNC_SCHEMA=from_file\n",
	), 0644))
	// Variables already set take precedence over the file.
	t.Setenv(EnvSchema, "from_env")
	// godotenv sets the file's variables process-wide; clear them afterwards.
	for _, key := range []string{EnvSQLitePath, EnvExclude, EnvFormat, EnvLogLevel} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "app.db", cfg.SQLitePath)
	assert.Equal(t, []string{"schema_migrations", "audit_log"}, cfg.Exclude)
	assert.Equal(t, "markdown", cfg.Format)
	assert.Equal(t, "from_env", cfg.Schema)
	assert.Equal(t, "schema.yaml", cfg.Model)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	u, err := cfg.DatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://app.db", u)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestConfig_DatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "postgres", cfg: Config{PostgresURL: "postgres://u@localhost/db"}, want: "postgres://u@localhost/db"},
		{name: "mysql dsn", cfg: Config{MySQLURL: "u:p@tcp(localhost:3306)/db"}, want: "mysql://u:p@tcp(localhost:3306)/db"},
		{name: "mysql url", cfg: Config{MySQLURL: "mysql://u:p@tcp(localhost:3306)/db"}, want: "mysql://u:p@tcp(localhost:3306)/db"},
		{name: "none", cfg: Config{}, wantErr: true},
		{name: "two", cfg: Config{PostgresURL: "postgres://x", SQLitePath: "a.db"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DatabaseURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Level(t *testing.T) {
	_, err := (&Config{LogLevel: "loud"}).Level()
	assert.Error(t, err)
}
