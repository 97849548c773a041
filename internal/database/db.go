package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/communitybot/feedwatch/internal/config"
	"github.com/communitybot/feedwatch/pkg/models"
	_ "modernc.org/sqlite"
)

// Store is a durable seen-bounty table.
type Store interface {
	IsBountySeen(ctx context.Context, id string) (bool, error)
	AddSeenBounty(ctx context.Context, id, title string, at time.Time) (bool, error)
	SeenBounties(ctx context.Context, limit int) ([]models.SeenBounty, error)
	Close() error
}

// Open connects to the configured driver and initializes the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return New(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection and initializes schema
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; pragmas below then apply to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	d := &DB{db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return d, nil
}

// initSchema creates database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS seen_bounties (
			bounty_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_seen_bounties_seen_at ON seen_bounties(seen_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	return nil
}
