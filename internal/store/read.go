package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// Change is one entry of the local update sequence.
type Change struct {
	Seq int64
	Doc doc.Document // tombstones carry _deleted: true
}

// Get returns the live document id with its _rev set.
// Returns ErrNotFound if the document is absent or deleted.
func (s *Store) Get(ctx context.Context, id string) (doc.Document, error) {
	var body, rev string
	var deleted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT body, rev, deleted FROM documents WHERE id = ?
	`, id).Scan(&body, &rev, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return unmarshalBody(body, rev)
}

// AllDocs returns every live document ordered by id.
// Returns an empty slice (not nil) for an empty collection.
func (s *Store) AllDocs(ctx context.Context) ([]doc.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, rev FROM documents
		WHERE deleted = 0
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all docs: %w", err)
	}
	defer rows.Close()

	docs := []doc.Document{}
	for rows.Next() {
		var body, rev string
		if err := rows.Scan(&body, &rev); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d, err := unmarshalBody(body, rev)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all docs: %w", err)
	}

	return docs, nil
}

// Changes returns up to limit entries with seq greater than since, ordered
// by seq ASC, and the seq to resume from. When nothing changed the returned
// seq equals since. limit <= 0 means no limit.
func (s *Store) Changes(ctx context.Context, since int64, limit int) ([]Change, int64, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, body, rev FROM documents
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, since, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	last := since
	for rows.Next() {
		var c Change
		var body, rev string
		if err := rows.Scan(&c.Seq, &body, &rev); err != nil {
			return nil, since, fmt.Errorf("scan change: %w", err)
		}
		c.Doc, err = unmarshalBody(body, rev)
		if err != nil {
			return nil, since, err
		}
		changes = append(changes, c)
		last = c.Seq
	}

	if err := rows.Err(); err != nil {
		return nil, since, fmt.Errorf("iterate changes: %w", err)
	}

	return changes, last, nil
}
