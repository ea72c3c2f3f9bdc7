package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Checkpoint returns the replication marker stored under key, or "" if the
// flow has never checkpointed.
func (s *Store) Checkpoint(ctx context.Context, key string) (string, error) {
	var since string
	err := s.db.QueryRowContext(ctx, `
		SELECT since FROM checkpoints WHERE id = ?
	`, key).Scan(&since)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	return since, nil
}

// SetCheckpoint records the replication marker for key.
// Checkpoint writes do not touch the update sequence.
func (s *Store) SetCheckpoint(ctx context.Context, key, since string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, since) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET since = excluded.since
	`, key, since)
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", key, err)
	}
	return nil
}
