package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads live configuration from the settings table. Snapshot is called
// once per incoming request; the admin surface writing these rows is outside
// this service.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.DB.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Snapshot{}, fmt.Errorf("scan setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read settings: %w", err)
	}
	return Snapshot{values: values}, nil
}

// Put upserts a single setting. Used by seed tooling and integration tests.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

// Static adapts a fixed snapshot to the SnapshotSource shape used by the
// dispatcher. Handy in tests and single-tenant deployments without a DB-backed
// admin surface.
type Static struct {
	Snap Snapshot
}

func (s Static) Snapshot(context.Context) (Snapshot, error) { return s.Snap, nil }
