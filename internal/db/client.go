package db

import (
	"context"
	"database/sql"
)

// Client owns an open database handle for one dialect.
type Client struct {
	db      *sql.DB
	dialect string
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *Client) GetDB() *sql.DB {
	return c.db
}

// Dialect returns the dialect name of the client.
func (c *Client) Dialect() string {
	return c.dialect
}

// Conn acquires a single connection from the pool. The caller must close it.
func (c *Client) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Dialect: c.dialect, Err: err}
	}
	return conn, nil
}

func ping(ctx context.Context, dialect string, db *sql.DB) (*Client, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Dialect: dialect, Err: err}
	}
	return &Client{db: db, dialect: dialect}, nil
}
