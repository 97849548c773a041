package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/communitybot/feedwatch/pkg/models"
)

// IsBountySeen reports whether id is in the ledger
func (db *DB) IsBountySeen(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM seen_bounties WHERE bounty_id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying seen bounty: %w", err)
	}
	return true, nil
}

// AddSeenBounty inserts id unless it is already present. The first-seen
// timestamp of an existing row is never changed.
func (db *DB) AddSeenBounty(ctx context.Context, id, title string, at time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO seen_bounties (bounty_id, title, seen_at) VALUES (?, ?, ?)",
		id, title, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting seen bounty: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}

// SeenBounties retrieves seen bounties, newest first. limit <= 0 returns all.
func (db *DB) SeenBounties(ctx context.Context, limit int) ([]models.SeenBounty, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		"SELECT bounty_id, title, seen_at FROM seen_bounties ORDER BY seen_at DESC, bounty_id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying seen bounties: %w", err)
	}
	defer rows.Close()

	var seen []models.SeenBounty
	for rows.Next() {
		var s models.SeenBounty
		if err := rows.Scan(&s.ID, &s.Title, &s.SeenAt); err != nil {
			return nil, fmt.Errorf("scanning seen bounty: %w", err)
		}
		seen = append(seen, s)
	}

	return seen, rows.Err()
}
