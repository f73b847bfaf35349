// Package config loads CLI settings from SCHEMASYNC_* environment variables
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when it exists and no other file is named.
const DefaultEnvFile = ".env"

// Environment variable names.
const (
	EnvPostgresURL  = "SCHEMASYNC_DB_URL"
	EnvMySQLURL     = "SCHEMASYNC_MYSQL_URL"
	EnvSQLitePath   = "SCHEMASYNC_SQLITE"
	EnvSQLiteDriver = "SCHEMASYNC_SQLITE_DRIVER"
	EnvSchema       = "SCHEMASYNC_SCHEMA"
	EnvModel        = "SCHEMASYNC_MODEL"
	EnvExclude      = "SCHEMASYNC_EXCLUDE"
	EnvFormat       = "SCHEMASYNC_FORMAT"
	EnvLogLevel     = "SCHEMASYNC_LOG_LEVEL"
)

type Config struct {
	PostgresURL  string
	MySQLURL     string
	SQLitePath   string
	SQLiteDriver string
	// Schema is the Postgres schema or MySQL database. Empty selects the
	// dialect default.
	Schema   string
	Model    string
	Exclude  []string
	Format   string
	LogLevel string
}

// Load reads envFile into the environment, without overriding variables
// already set, and builds a Config from it. An empty envFile loads
// DefaultEnvFile when present.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading config file %s: %w", DefaultEnvFile, err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("error loading config file %s: %w", envFile, err)
	}

	return &Config{
		PostgresURL:  getEnv(EnvPostgresURL, ""),
		MySQLURL:     getEnv(EnvMySQLURL, ""),
		SQLitePath:   getEnv(EnvSQLitePath, ""),
		SQLiteDriver: getEnv(EnvSQLiteDriver, ""),
		Schema:       getEnv(EnvSchema, ""),
		Model:        getEnv(EnvModel, "schema.yaml"),
		Exclude:      splitAndTrim(getEnv(EnvExclude, ""), ","),
		Format:       strings.ToLower(getEnv(EnvFormat, "text")),
		LogLevel:     getEnv(EnvLogLevel, "info"),
	}, nil
}

// DatabaseURL returns the single configured database as a URL.
func (c *Config) DatabaseURL() (string, error) {
	var urls []string
	if c.PostgresURL != "" {
		urls = append(urls, c.PostgresURL)
	}
	if c.MySQLURL != "" {
		u := c.MySQLURL
		if !strings.HasPrefix(u, "mysql://") {
			u = "mysql://" + u
		}
		urls = append(urls, u)
	}
	if c.SQLitePath != "" {
		urls = append(urls, "sqlite://"+c.SQLitePath)
	}

	switch len(urls) {
	case 0:
		return "", fmt.Errorf("one of --db-url, --mysql-url, or --sqlite must be specified")
	case 1:
		return urls[0], nil
	default:
		return "", fmt.Errorf("only one of --db-url, --mysql-url, or --sqlite can be specified")
	}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(str, sep string) []string {
	if str == "" {
		return nil
	}
	parts := strings.Split(str, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
