package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// Feed selects the _changes feed mode.
type Feed string

const (
	// FeedNormal returns immediately with whatever changed since the marker.
	FeedNormal Feed = "normal"
	// FeedLongpoll holds the request open until a change arrives or the
	// server-side timeout elapses.
	FeedLongpoll Feed = "longpoll"
)

// ChangesOptions parameterizes a _changes request.
type ChangesOptions struct {
	// Since is the sequence to resume from; "" starts from the beginning.
	Since string

	// Limit caps the number of rows; 0 means no limit.
	Limit int

	// Feed defaults to FeedNormal.
	Feed Feed

	// Timeout is the server-side longpoll timeout. The HTTP request is
	// allowed to run slightly longer.
	Timeout time.Duration
}

// Change is one row of the _changes feed, with its document included.
type Change struct {
	Seq     string
	ID      string
	Deleted bool
	Doc     doc.Document
}

// ChangesResult is one page of the _changes feed.
type ChangesResult struct {
	Results []Change
	LastSeq string
}

// Changes reads one page of the database's _changes feed with documents
// included (style=main_only: winning revisions only).
func (c *Client) Changes(ctx context.Context, opts ChangesOptions) (ChangesResult, error) {
	if c.closed.Load() {
		return ChangesResult{}, ErrClosed
	}
	feed := opts.Feed
	if feed == "" {
		feed = FeedNormal
	}

	params := map[string]interface{}{
		"since":        formatSince(opts.Since),
		"include_docs": true,
		"style":        "main_only",
		"feed":         string(feed),
	}
	if opts.Limit > 0 {
		params["limit"] = opts.Limit
	}

	timeout := DefaultTimeout
	if feed == FeedLongpoll && opts.Timeout > 0 {
		params["timeout"] = opts.Timeout.Milliseconds()
		timeout = opts.Timeout + DefaultTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows := c.db.Changes(rctx, kivik.Params(params))
	defer rows.Close()

	out := ChangesResult{Results: []Change{}}
	for rows.Next() {
		ch := Change{Seq: rows.Seq(), ID: rows.ID(), Deleted: rows.Deleted()}
		var raw json.RawMessage
		if err := rows.ScanDoc(&raw); err == nil && len(raw) > 0 && string(raw) != "null" {
			d, err := doc.Parse(raw)
			if err != nil {
				return ChangesResult{}, fmt.Errorf("changes %s: %w", ch.ID, err)
			}
			ch.Doc = d
		}
		out.Results = append(out.Results, ch)
	}
	if err := rows.Err(); err != nil {
		return ChangesResult{}, classify(ctx, http.MethodGet, c.path("_changes"), err)
	}
	if meta, err := rows.Metadata(); err == nil {
		out.LastSeq = meta.LastSeq
	}
	if out.LastSeq == "" && len(out.Results) > 0 {
		out.LastSeq = out.Results[len(out.Results)-1].Seq
	}
	if out.LastSeq == "" {
		out.LastSeq = opts.Since
	}
	return out, nil
}
