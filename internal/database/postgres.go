package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/communitybot/feedwatch/pkg/models"
)

// PGStore keeps the ledger in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string, maxConns int) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS seen_bounties (
			bounty_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *PGStore) IsBountySeen(ctx context.Context, id string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM seen_bounties WHERE bounty_id = $1)", id,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("querying seen bounty: %w", err)
	}
	return seen, nil
}

func (s *PGStore) AddSeenBounty(ctx context.Context, id, title string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"INSERT INTO seen_bounties (bounty_id, title, seen_at) VALUES ($1, $2, $3) ON CONFLICT (bounty_id) DO NOTHING",
		id, title, at,
	)
	if err != nil {
		return false, fmt.Errorf("inserting seen bounty: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SeenBounties(ctx context.Context, limit int) ([]models.SeenBounty, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx,
		"SELECT bounty_id, title, seen_at FROM seen_bounties ORDER BY seen_at DESC, bounty_id LIMIT $1",
		lim,
	)
	if err != nil {
		return nil, fmt.Errorf("querying seen bounties: %w", err)
	}
	seen, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.SeenBounty])
	if err != nil {
		return nil, fmt.Errorf("scanning seen bounties: %w", err)
	}
	return seen, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
