package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the announcements table if it does not exist yet. The
// unique constraint over (symbol, title) is what makes concurrent inserts of
// the same announcement safe: the database, not the application, arbitrates
// which writer wins.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS announcements (
    id           BIGSERIAL PRIMARY KEY,
    symbol       VARCHAR(200) NOT NULL,
    company_name VARCHAR(500),
    title        VARCHAR(500) NOT NULL,
    description  TEXT,
    link         VARCHAR(500),
    announced_at TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT announcements_symbol_title_key UNIQUE (symbol, title)
);
CREATE INDEX IF NOT EXISTS idx_announcements_symbol ON announcements (symbol);
CREATE INDEX IF NOT EXISTS idx_announcements_announced_at ON announcements (announced_at);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure announcements schema: %w", err)
	}
	return nil
}
