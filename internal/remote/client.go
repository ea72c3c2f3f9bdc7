package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// DefaultTimeout bounds every non-feed request.
const DefaultTimeout = 30 * time.Second

// Config describes one remote database.
type Config struct {
	// URL is the server base, e.g. "https://roll2d6.org/api/couchdb".
	// Credentials in the URL are used when Username is empty.
	URL string

	// Database is the per-game database name (the game id).
	Database string

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// HTTPClient overrides the default client. Longpoll requests rely on
	// context deadlines, so its Timeout should be zero or generous.
	HTTPClient *http.Client
}

// Client is a handle to one remote database.
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	couch  *kivik.Client
	db     *kivik.DB
	name   string
	url    string
	closed atomic.Bool
}

// New creates a client for cfg. It performs no I/O.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote: URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("remote: database is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", base.Scheme)
	}

	username, password := cfg.Username, cfg.Password
	if username == "" && base.User != nil {
		username = base.User.Username()
		password, _ = base.User.Password()
	}
	base.User = nil

	// The driver wraps the transport for auth; keep the caller's client
	// untouched since it is shared with the event channel.
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	opts := []kivik.Option{couchdb.OptionHTTPClient(hc)}
	if username != "" {
		opts = append(opts, couchdb.BasicAuth(username, password))
	}

	couch, err := kivik.New("couch", base.String(), opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	return &Client{
		couch: couch,
		db:    couch.DB(cfg.Database),
		name:  cfg.Database,
		url:   base.String() + "/" + url.PathEscape(cfg.Database),
	}, nil
}

// URL returns the database URL without credentials. Replication uses it as
// the checkpoint key.
func (c *Client) URL() string {
	return c.url
}

// Close marks the handle closed and releases the driver's connections.
// In-flight requests are not interrupted; cancel their contexts for that.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.couch.Close()
}

// Info describes the remote database.
type Info struct {
	DBName    string
	DocCount  int64
	UpdateSeq string
}

// Info fetches database metadata. A 404 means the database has not been
// created yet.
func (c *Client) Info(ctx context.Context) (Info, error) {
	if c.closed.Load() {
		return Info{}, ErrClosed
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	stats, err := c.db.Stats(rctx)
	if err != nil {
		return Info{}, classify(ctx, http.MethodGet, c.path(), err)
	}
	return Info{DBName: stats.Name, DocCount: stats.DocCount, UpdateSeq: stats.UpdateSeq}, nil
}

// CreateDB creates the database. An existing database is not an error.
func (c *Client) CreateDB(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	err := c.couch.CreateDB(rctx, c.name)
	if err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
		return classify(ctx, http.MethodPut, c.path(), err)
	}
	return nil
}

// Get fetches the current revision of id.
func (c *Client) Get(ctx context.Context, id string) (doc.Document, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.db.Get(rctx, id).ScanDoc(&raw); err != nil {
		return nil, classify(ctx, http.MethodGet, c.path(id), err)
	}
	return doc.Parse(raw)
}

// Put writes d and returns the revision assigned by the remote.
func (c *Client) Put(ctx context.Context, d doc.Document) (string, error) {
	id := d.ID()
	if id == "" {
		return "", fmt.Errorf("put: missing %s", doc.FieldID)
	}
	if c.closed.Load() {
		return "", ErrClosed
	}
	body, err := d.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("put %s: encode: %w", id, err)
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	rev, err := c.db.Put(rctx, id, json.RawMessage(body))
	if err != nil {
		return "", classify(ctx, http.MethodPut, c.path(id), err)
	}
	return rev, nil
}

// Remove deletes id at rev and returns the tombstone revision.
func (c *Client) Remove(ctx context.Context, id, rev string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	newRev, err := c.db.Delete(rctx, id, rev)
	if err != nil {
		return "", classify(ctx, http.MethodDelete, c.path(id), err)
	}
	return newRev, nil
}

// AllDocs returns every live document, design documents excluded.
func (c *Client) AllDocs(ctx context.Context) ([]doc.Document, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	rows := c.db.AllDocs(rctx, kivik.Param("include_docs", true))
	defer rows.Close()

	docs := []doc.Document{}
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			return nil, classify(ctx, http.MethodGet, c.path("_all_docs"), err)
		}
		if strings.HasPrefix(id, "_design/") {
			continue
		}
		var raw json.RawMessage
		if err := rows.ScanDoc(&raw); err != nil || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		d, err := doc.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("all docs %s: %w", id, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, http.MethodGet, c.path("_all_docs"), err)
	}
	return docs, nil
}

// BulkDocs uploads docs with new_edits=false: revisions are stored as given
// and already-known revisions are ignored by the remote.
func (c *Client) BulkDocs(ctx context.Context, docs []doc.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if c.closed.Load() {
		return ErrClosed
	}

	body := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		data, err := d.MarshalJSON()
		if err != nil {
			return fmt.Errorf("bulk docs %s: encode: %w", d.ID(), err)
		}
		body = append(body, json.RawMessage(data))
	}

	rctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	results, err := c.db.BulkDocs(rctx, body, kivik.Param("new_edits", false))
	if err != nil {
		return classify(ctx, http.MethodPost, c.path("_bulk_docs"), err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("bulk docs %s: %w", r.ID, r.Error)
		}
	}
	return nil
}

// path renders the request path used in error messages.
func (c *Client) path(segments ...string) string {
	return "/" + strings.Join(append([]string{c.name}, segments...), "/")
}

// formatSince renders a CouchDB sequence for the since parameter.
func formatSince(since string) string {
	if since == "" {
		return "0"
	}
	return since
}
