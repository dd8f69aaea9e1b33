package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ghxstship/search-service/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// DriverName is the database/sql driver registered by go-sqlite3
const DriverName = "sqlite3"

// Client wraps a local SQLite database used by the sqlite search backend
type Client struct {
	db *sql.DB
}

// NewClient opens the database file at cfg.Path (":memory:" for a private in-memory database)
func NewClient(ctx context.Context, cfg *config.SQLiteConfig) (*Client, error) {
	db, err := sql.Open(DriverName, cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// a single connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", cfg.Path, err)
	}

	log.Info().Str("path", cfg.Path).Msg("Opened SQLite database")
	return &Client{db: db}, nil
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database
func (c *Client) Close() error {
	return c.db.Close()
}
