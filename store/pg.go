package store

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG archives blobs into a Postgres table.
type PG struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPG(ctx context.Context, databaseURL string, logger *log.Logger) (*PG, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pg := &PG{pool: pool, logger: logger}
	if err := pg.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pg, nil
}

func (p *PG) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audio_archive (
			key        TEXT PRIMARY KEY,
			bytes      BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create audio_archive table: %w", err)
	}
	return nil
}

func (p *PG) Put(ctx context.Context, key string, blob []byte) (string, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audio_archive (key, bytes) VALUES ($1, $2)`,
		key, blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return fmt.Sprintf("pg://audio_archive/%s", key), nil
}

func (p *PG) Close() {
	p.pool.Close()
}
