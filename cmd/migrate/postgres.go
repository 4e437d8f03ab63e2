package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/infra/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresBackend struct {
	pool      *pgxpool.Pool
	appliedBy string
}

func newPostgresBackend(ctx context.Context, databaseURL, appliedBy string) (*postgresBackend, error) {
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{URL: databaseURL, MaxConns: 2})
	if err != nil {
		return nil, err
	}
	return &postgresBackend{pool: pool, appliedBy: appliedBy}, nil
}

func (b *postgresBackend) String() string {
	cfg := b.pool.Config().ConnConfig
	return fmt.Sprintf("Postgres %s/%s", cfg.Host, cfg.Database)
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func (b *postgresBackend) EnsureSchemaMigrations(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT,
			applied_by TEXT
		)
	`)
	return err
}

func (b *postgresBackend) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppliedMigration, error) {
		var am AppliedMigration
		err := row.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy)
		return am, err
	})
	if err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return applied, nil
}

// Apply runs the migration and records it in one transaction.
func (b *postgresBackend) Apply(ctx context.Context, m Migration) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, applied_by)
		VALUES ($1, $2, $3, $4)
	`, m.Version, m.Name, m.Checksum, b.appliedBy)
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}

	return tx.Commit(ctx)
}
