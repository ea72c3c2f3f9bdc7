// Package gateway performs document mutations on behalf of the consumer.
//
// Callers never handle revision tokens: Write and Remove read the current
// revision and use it for the mutation. The only expected failure, a
// missing document, turns a write into a create. Every other failure is
// logged and returned; there is no retry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// Collection is the document store the gateway drives. Both the local
// store and the remote client satisfy it.
type Collection interface {
	Get(ctx context.Context, id string) (doc.Document, error)
	Put(ctx context.Context, d doc.Document) (string, error)
	Remove(ctx context.Context, id, rev string) (string, error)
}

// Lister enumerates every live document of a collection.
type Lister interface {
	AllDocs(ctx context.Context) ([]doc.Document, error)
}

// Gateway serializes mutations against collections.
type Gateway struct {
	logger *slog.Logger
}

// New returns a gateway that logs failures to logger (slog.Default if nil).
func New(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{logger: logger}
}

// Write stores payload as document id and returns the new revision.
//
// The current revision is read first and merged into the write; if the
// document does not exist the write is a create. Reserved fields in payload
// are replaced. A concurrent writer that wins the read-then-write window
// makes Write fail with doc.ErrConflict.
func (g *Gateway) Write(ctx context.Context, c Collection, id string, payload map[string]any) (string, error) {
	if id == "" {
		return "", fmt.Errorf("write: missing document id")
	}

	d := doc.Document(payload).With(map[string]any{doc.FieldID: id})
	delete(d, doc.FieldRev)
	delete(d, doc.FieldDeleted)

	current, err := c.Get(ctx, id)
	switch {
	case err == nil:
		d[doc.FieldRev] = current.Rev()
	case errors.Is(err, doc.ErrNotFound):
		// Create.
	default:
		g.logger.Error("write failed", "id", id, "error", err)
		return "", fmt.Errorf("write %s: %w", id, err)
	}

	rev, err := c.Put(ctx, d)
	if err != nil {
		g.logger.Error("write failed", "id", id, "error", err)
		return "", fmt.Errorf("write %s: %w", id, err)
	}
	g.logger.Debug("document written", "id", id, "rev", rev)
	return rev, nil
}

// Remove deletes document id at its current revision and returns the
// tombstone revision. A missing document is reported as doc.ErrNotFound.
func (g *Gateway) Remove(ctx context.Context, c Collection, id string) (string, error) {
	current, err := c.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, doc.ErrNotFound) {
			g.logger.Error("remove failed", "id", id, "error", err)
		}
		return "", fmt.Errorf("remove %s: %w", id, err)
	}

	rev, err := c.Remove(ctx, id, current.Rev())
	if err != nil {
		g.logger.Error("remove failed", "id", id, "error", err)
		return "", fmt.Errorf("remove %s: %w", id, err)
	}
	g.logger.Debug("document removed", "id", id, "rev", rev)
	return rev, nil
}

// GameMetadata is the summary of one game listed by ListGames.
type GameMetadata struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListGames summarizes every document of a game-index collection.
// Documents without a string title get an empty Title.
func ListGames(ctx context.Context, l Lister) ([]GameMetadata, error) {
	docs, err := l.AllDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	games := make([]GameMetadata, 0, len(docs))
	for _, d := range docs {
		title, _ := d["title"].(string)
		games = append(games, GameMetadata{ID: d.ID(), Title: title})
	}
	return games, nil
}
