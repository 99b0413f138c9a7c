package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pennytrack/logger"

	_ "github.com/lib/pq"
)

const (
	pingAttempts = 5
	pingBackoff  = 2 * time.Second
)

// Open connects to Postgres and waits for it to answer a ping
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for i := 0; i < pingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(pingBackoff):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.ForStore().Info().Msg("Successfully connected to database")
	return db, nil
}

// CreateTables creates the tracked item and history tables if they don't exist
func CreateTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tracked_items (
			sku TEXT PRIMARY KEY,
			store_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			last_price NUMERIC(10,2),
			last_updated TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id SERIAL PRIMARY KEY,
			sku TEXT NOT NULL,
			price NUMERIC(10,2) NOT NULL CHECK (price > 0),
			observed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_sku ON price_history (sku, observed_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
