package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lostfound/backend/internal/domain"
	_ "github.com/lib/pq"
)

// Config holds connection pool settings
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: database url is required", domain.ErrConfiguration)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// schema creates the items and matches tables. A pair of items can be matched
// at most once.
const schema = `
CREATE TABLE IF NOT EXISTS items (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL CHECK (type IN ('lost', 'found')),
	title            TEXT NOT NULL,
	description      TEXT NOT NULL,
	image_ref        TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'matched')),
	created_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	image_features   JSONB,
	normalized       JSONB,
	processed_at     TIMESTAMPTZ,
	processing_error TEXT NOT NULL DEFAULT '',
	matched_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS items_candidates_idx ON items (type, status, created_at DESC);

CREATE TABLE IF NOT EXISTS matches (
	id                  TEXT PRIMARY KEY,
	lost_item_id        TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	found_item_id       TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	confidence_score    DOUBLE PRECISION NOT NULL,
	image_similarity    DOUBLE PRECISION NOT NULL,
	text_similarity     DOUBLE PRECISION NOT NULL,
	metadata_similarity DOUBLE PRECISION NOT NULL,
	explanation         TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'resolved')),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at         TIMESTAMPTZ,
	UNIQUE (lost_item_id, found_item_id)
);

CREATE INDEX IF NOT EXISTS matches_found_item_idx ON matches (found_item_id);
`

// Migrate creates the tables if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
