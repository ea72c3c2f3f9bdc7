package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// CouchFake is an in-memory server speaking the subset of the CouchDB API
// used by the remote client: database info, document CRUD, _all_docs,
// _changes (normal and longpoll) and _bulk_docs.
//
// A database exists once it is created over HTTP (PUT /<db>) or through
// the test-side CreateDB and Put helpers. HTTP writes to a missing
// database answer 404 not_found, as CouchDB does. Failure injection
// (FailWith) makes every request answer with a fixed status until cleared.
//
// Thread-safety: all methods are safe for concurrent use.
type CouchFake struct {
	mu      sync.Mutex
	dbs     map[string]*fakeDB
	status  int
	log     []string
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

type fakeDB struct {
	seq  int64
	docs map[string]*fakeDoc
}

type fakeDoc struct {
	rev     string
	body    doc.Document
	deleted bool
	seq     int64
}

// NewCouchFake creates an empty fake.
func NewCouchFake() *CouchFake {
	return &CouchFake{
		dbs:     make(map[string]*fakeDB),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Shutdown releases every pending longpoll request.
func (f *CouchFake) Shutdown() {
	f.once.Do(func() { close(f.done) })
}

// StartCouchFake serves a new fake on an httptest server closed at test
// cleanup. Returns the fake and the server base URL.
func StartCouchFake(t *testing.T) (*CouchFake, string) {
	t.Helper()
	f := NewCouchFake()
	srv := httptest.NewServer(f)
	t.Cleanup(func() {
		f.Shutdown()
		srv.CloseClientConnections()
		srv.Close()
	})
	return f, srv.URL
}

// FailWith makes every subsequent request answer with status.
// Pass 0 to restore normal behavior.
func (f *CouchFake) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Requests returns "METHOD /path" for every request served so far.
func (f *CouchFake) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// CreateDB creates an empty database if it does not exist.
func (f *CouchFake) CreateDB(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dbLocked(name)
}

// Put writes d into db as a regular (new_edits=true) write and returns the
// new revision. It is the test-side equivalent of another client editing
// the game.
func (f *CouchFake) Put(db string, d doc.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putLocked(f.dbLocked(db), d)
}

// Doc returns the live document id in db, or nil.
func (f *CouchFake) Doc(db, id string) doc.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dbs[db]
	if !ok {
		return nil
	}
	e, ok := d.docs[id]
	if !ok || e.deleted {
		return nil
	}
	return e.body.With(map[string]any{doc.FieldRev: e.rev})
}

func (f *CouchFake) dbLocked(name string) *fakeDB {
	d, ok := f.dbs[name]
	if !ok {
		d = &fakeDB{docs: make(map[string]*fakeDoc)}
		f.dbs[name] = d
	}
	return d
}

func (f *CouchFake) bumpLocked(db *fakeDB, id string, e *fakeDoc) {
	db.seq++
	e.seq = db.seq
	db.docs[id] = e
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *CouchFake) putLocked(db *fakeDB, d doc.Document) (string, error) {
	id := d.ID()
	cur, exists := db.docs[id]
	prev := ""
	switch {
	case !exists || cur.deleted:
		if exists {
			prev = cur.rev
		}
		if d.Rev() != "" && (!exists || d.Rev() != cur.rev) {
			return "", doc.ErrConflict
		}
	case d.Rev() != cur.rev:
		return "", doc.ErrConflict
	default:
		prev = cur.rev
	}

	body := d.Body()
	deleted := d.Deleted()
	if deleted {
		body = doc.Document{doc.FieldID: id, doc.FieldDeleted: true}
	}
	rev, err := doc.NextRev(prev, body)
	if err != nil {
		return "", err
	}
	f.bumpLocked(db, id, &fakeDoc{rev: rev, body: body, deleted: deleted})
	return rev, nil
}

// ServeHTTP implements http.Handler.
func (f *CouchFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.log = append(f.log, r.Method+" "+r.URL.Path)
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		writeCouchError(w, status, http.StatusText(status), "injected failure")
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	dbName := parts[0]
	if dbName == "" {
		writeCouchError(w, http.StatusBadRequest, "bad_request", "missing database")
		return
	}
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		f.serveInfo(w, dbName)
	case rest == "" && r.Method == http.MethodPut:
		f.serveCreateDB(w, dbName)
	case rest == "_all_docs" && r.Method == http.MethodGet:
		f.serveAllDocs(w, dbName)
	case rest == "_changes" && r.Method == http.MethodGet:
		f.serveChanges(w, r, dbName)
	case rest == "_bulk_docs" && r.Method == http.MethodPost:
		f.serveBulkDocs(w, r, dbName)
	case rest != "" && r.Method == http.MethodGet:
		f.serveGet(w, dbName, rest)
	case rest != "" && r.Method == http.MethodPut:
		f.servePut(w, r, dbName, rest)
	case rest != "" && r.Method == http.MethodDelete:
		f.serveDelete(w, r, dbName, rest)
	default:
		writeCouchError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
	}
}

func (f *CouchFake) serveInfo(w http.ResponseWriter, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[name]
	if !ok {
		writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	live := 0
	for _, e := range db.docs {
		if !e.deleted {
			live++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db_name":    name,
		"doc_count":  live,
		"update_seq": strconv.FormatInt(db.seq, 10),
	})
}

func (f *CouchFake) serveCreateDB(w http.ResponseWriter, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dbs[name]; ok {
		writeCouchError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
		return
	}
	f.dbLocked(name)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (f *CouchFake) serveGet(w http.ResponseWriter, name, id string) {
	d := f.Doc(name, id)
	if d == nil {
		writeCouchError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (f *CouchFake) servePut(w http.ResponseWriter, r *http.Request, name, id string) {
	var d doc.Document
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		writeCouchError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	d[doc.FieldID] = id

	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[name]
	if !ok {
		writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	rev, err := f.putLocked(db, d)
	if err != nil {
		writeCouchError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": rev})
}

func (f *CouchFake) serveDelete(w http.ResponseWriter, r *http.Request, name, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[name]
	if !ok {
		writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	cur, ok := db.docs[id]
	if !ok || cur.deleted {
		writeCouchError(w, http.StatusNotFound, "not_found", "deleted")
		return
	}
	rev, err := f.putLocked(db, doc.Document{
		doc.FieldID:      id,
		doc.FieldRev:     r.URL.Query().Get("rev"),
		doc.FieldDeleted: true,
	})
	if err != nil {
		writeCouchError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "rev": rev})
}

func (f *CouchFake) serveAllDocs(w http.ResponseWriter, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[name]
	if !ok {
		writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	ids := make([]string, 0, len(db.docs))
	for id, e := range db.docs {
		if !e.deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		e := db.docs[id]
		rows = append(rows, map[string]any{
			"id":    id,
			"key":   id,
			"value": map[string]any{"rev": e.rev},
			"doc":   e.body.With(map[string]any{doc.FieldRev: e.rev}),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_rows": len(rows), "offset": 0, "rows": rows})
}

func (f *CouchFake) serveChanges(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	since, _ := strconv.ParseInt(q.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	var deadline <-chan time.Time
	if q.Get("feed") == "longpoll" {
		timeout := 60 * time.Second
		if ms, err := strconv.Atoi(q.Get("timeout")); err == nil {
			timeout = time.Duration(ms) * time.Millisecond
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		f.mu.Lock()
		db, ok := f.dbs[name]
		if !ok {
			f.mu.Unlock()
			writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
			return
		}
		results, last := changesSinceLocked(db, since, limit)
		wait := f.changed
		f.mu.Unlock()

		if len(results) > 0 || deadline == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"results":  results,
				"last_seq": strconv.FormatInt(last, 10),
			})
			return
		}

		select {
		case <-wait:
		case <-deadline:
			deadline = nil
		case <-r.Context().Done():
			return
		case <-f.done:
			return
		}
	}
}

func changesSinceLocked(db *fakeDB, since int64, limit int) ([]map[string]any, int64) {
	entries := make([]*fakeDoc, 0)
	for _, e := range db.docs {
		if e.seq > since {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	last := since
	results := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		row := map[string]any{
			"seq":     strconv.FormatInt(e.seq, 10),
			"id":      e.body.ID(),
			"changes": []map[string]any{{"rev": e.rev}},
			"doc":     e.body.With(map[string]any{doc.FieldRev: e.rev}),
		}
		if e.deleted {
			row["deleted"] = true
		}
		results = append(results, row)
		last = e.seq
	}
	return results, last
}

func (f *CouchFake) serveBulkDocs(w http.ResponseWriter, r *http.Request, name string) {
	var req struct {
		Docs     []json.RawMessage `json:"docs"`
		NewEdits *bool             `json:"new_edits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCouchError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.NewEdits == nil || *req.NewEdits {
		writeCouchError(w, http.StatusBadRequest, "bad_request", "only new_edits=false is supported")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.dbs[name]
	if !ok {
		writeCouchError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	for _, raw := range req.Docs {
		d, err := doc.Parse(raw)
		if err != nil {
			writeCouchError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		id := d.ID()
		cur, exists := db.docs[id]
		if exists && doc.CompareRev(d.Rev(), cur.rev) <= 0 {
			continue
		}
		body := d.Body()
		if d.Deleted() {
			body = doc.Document{doc.FieldID: id, doc.FieldDeleted: true}
		}
		f.bumpLocked(db, id, &fakeDoc{rev: d.Rev(), body: body, deleted: d.Deleted()})
	}
	writeJSON(w, http.StatusCreated, []any{})
}

// WaitForDoc polls until db holds a live document id or ctx ends.
func (f *CouchFake) WaitForDoc(ctx context.Context, db, id string) doc.Document {
	for {
		if d := f.Doc(db, id); d != nil {
			return d
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCouchError(w http.ResponseWriter, status int, kind, reason string) {
	writeJSON(w, status, map[string]string{"error": kind, "reason": reason})
}
