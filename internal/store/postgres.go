package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is an alternative persistent tier for deployments that colocate
// agent state with platform data instead of running Redis.
//
//	CREATE TABLE session_store (
//	    profile    TEXT NOT NULL,
//	    key        TEXT NOT NULL,
//	    value      TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (profile, key)
//	);
type Postgres struct {
	pool    *pgxpool.Pool
	profile string
}

func NewPostgres(pool *pgxpool.Pool, profile string) *Postgres {
	return &Postgres{pool: pool, profile: profile}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM session_store WHERE profile = $1 AND key = $2`

	var value string
	if err := p.pool.QueryRow(ctx, query, p.profile, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value string) error {
	const query = `
		INSERT INTO session_store (profile, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := p.pool.Exec(ctx, query, p.profile, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	const query = `DELETE FROM session_store WHERE profile = $1 AND key = ANY($2)`

	if _, err := p.pool.Exec(ctx, query, p.profile, keys); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}
