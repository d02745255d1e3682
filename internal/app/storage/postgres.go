package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores records as jsonb rows of the user_records table.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend wraps a pool whose database has the user_records migration applied.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Ensure checks connectivity; the table is created by migrations.
func (b *PostgresBackend) Ensure(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *PostgresBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var doc []byte
	err := b.pool.QueryRow(ctx, `SELECT doc FROM user_records WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (b *PostgresBackend) Put(ctx context.Context, id string, raw []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO user_records (id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		id, json.RawMessage(raw),
	)
	return err
}

// List returns ids ordered by id.
func (b *PostgresBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT id FROM user_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
