package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLite driver names registered with database/sql.
const (
	// SQLiteDriverCGO is github.com/mattn/go-sqlite3.
	SQLiteDriverCGO = "sqlite3"
	// SQLiteDriverPure is modernc.org/sqlite.
	SQLiteDriverPure = "sqlite"
)

// NewSQLiteClient creates a new SQLite client. An empty driver selects the cgo driver.
func NewSQLiteClient(ctx context.Context, path, driver string) (*Client, error) {
	switch driver {
	case "":
		driver = SQLiteDriverCGO
	case SQLiteDriverCGO, SQLiteDriverPure:
	default:
		return nil, fmt.Errorf("unknown SQLite driver %q (must be %q or %q)", driver, SQLiteDriverCGO, SQLiteDriverPure)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	return ping(ctx, SQLite, db)
}
