package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// Put writes d and returns its new revision token.
//
// A document without _rev is a create: it fails with ErrConflict if a live
// document already holds the id. A document with _rev is an update: it fails
// with ErrNotFound if no live document holds the id and with ErrConflict if
// the stored revision differs. Deleted documents may be recreated without
// _rev; their revision history continues from the tombstone.
func (s *Store) Put(ctx context.Context, d doc.Document) (string, error) {
	id := d.ID()
	if id == "" {
		return "", fmt.Errorf("put: missing %s", doc.FieldID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("put %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	stored, err := currentRow(ctx, tx, id)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", id, err)
	}

	prev := ""
	switch {
	case stored == nil || stored.deleted:
		if d.Rev() != "" {
			return "", fmt.Errorf("put %s: %w", id, ErrNotFound)
		}
		if stored != nil {
			prev = stored.rev
		}
	default:
		if d.Rev() != stored.rev {
			return "", fmt.Errorf("put %s: %w", id, ErrConflict)
		}
		prev = stored.rev
	}

	body := d.Body()
	delete(body, doc.FieldDeleted)
	rev, err := doc.NextRev(prev, body)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", id, err)
	}

	if err := upsertRow(ctx, tx, body, rev, false); err != nil {
		return "", fmt.Errorf("put %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("put %s: commit: %w", id, err)
	}
	s.notifyChanged()

	return rev, nil
}

// Remove deletes the document id at revision rev by writing a tombstone.
// Returns the tombstone's revision. Fails with ErrNotFound if the document
// is absent or already deleted and with ErrConflict on a stale rev.
func (s *Store) Remove(ctx context.Context, id, rev string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("remove %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	stored, err := currentRow(ctx, tx, id)
	if err != nil {
		return "", fmt.Errorf("remove %s: %w", id, err)
	}
	if stored == nil || stored.deleted {
		return "", fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	if rev != stored.rev {
		return "", fmt.Errorf("remove %s: %w", id, ErrConflict)
	}

	tombstone := doc.Document{doc.FieldID: id, doc.FieldDeleted: true}
	newRev, err := doc.NextRev(stored.rev, tombstone)
	if err != nil {
		return "", fmt.Errorf("remove %s: %w", id, err)
	}

	if err := upsertRow(ctx, tx, tombstone, newRev, true); err != nil {
		return "", fmt.Errorf("remove %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("remove %s: commit: %w", id, err)
	}
	s.notifyChanged()

	return newRev, nil
}

// ApplyReplicated stores a revision received from another collection
// verbatim. The incoming revision replaces the stored one only if it wins
// under doc.CompareRev; returns whether the row changed.
//
// Identical or losing revisions are ignored, which makes replaying a batch
// idempotent.
func (s *Store) ApplyReplicated(ctx context.Context, d doc.Document) (bool, error) {
	id, rev := d.ID(), d.Rev()
	if id == "" {
		return false, fmt.Errorf("apply replicated: missing %s", doc.FieldID)
	}
	if _, _, err := doc.ParseRev(rev); err != nil {
		return false, fmt.Errorf("apply replicated %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("apply replicated %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	stored, err := currentRow(ctx, tx, id)
	if err != nil {
		return false, fmt.Errorf("apply replicated %s: %w", id, err)
	}
	if stored != nil && doc.CompareRev(rev, stored.rev) <= 0 {
		return false, nil
	}

	body := d.Body()
	deleted := d.Deleted()
	if deleted {
		body = doc.Document{doc.FieldID: id, doc.FieldDeleted: true}
	}
	if err := upsertRow(ctx, tx, body, rev, deleted); err != nil {
		return false, fmt.Errorf("apply replicated %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply replicated %s: commit: %w", id, err)
	}
	s.notifyChanged()

	return true, nil
}

// storedRow is the revision state of one documents row.
type storedRow struct {
	rev     string
	deleted bool
}

// currentRow returns the stored revision state for id, or nil if absent.
func currentRow(ctx context.Context, tx *sql.Tx, id string) (*storedRow, error) {
	var row storedRow
	err := tx.QueryRowContext(ctx, `
		SELECT rev, deleted FROM documents WHERE id = ?
	`, id).Scan(&row.rev, &row.deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current revision: %w", err)
	}
	return &row, nil
}

// upsertRow writes body at rev and stamps it with the next seq.
func upsertRow(ctx context.Context, tx *sql.Tx, body doc.Document, rev string, deleted bool) error {
	bodyJSON, err := marshalBody(body)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, rev, body, deleted, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents))
		ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev,
			body = excluded.body,
			deleted = excluded.deleted,
			seq = excluded.seq
	`,
		body.ID(),
		rev,
		bodyJSON,
		deleted,
	)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
