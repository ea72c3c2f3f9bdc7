package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

//go:embed schema.sql
var schemaSQL string

// Sentinel errors returned by document operations. They are the shared
// doc errors so callers can match either collection with errors.Is.
var (
	ErrNotFound = doc.ErrNotFound
	ErrConflict = doc.ErrConflict
)

// Store is the local collection of one game.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	changed chan struct{}
}

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenGame opens the local collection of gameID under dataDir
// (<dataDir>/<gameID>.db), creating the directory if needed. An empty
// dataDir gives an in-memory collection that is lost on Close.
func OpenGame(dataDir, gameID string) (*Store, error) {
	if dataDir == "" {
		return Open(MemoryPath)
	}
	if gameID == "" || strings.ContainsAny(gameID, `/\`) || gameID == "." || gameID == ".." {
		return nil, fmt.Errorf("open game: invalid game id %q", gameID)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return Open(filepath.Join(dataDir, gameID+".db"))
}

// Open creates or opens a SQLite database at path and brings its schema
// up to date. Reopening an existing file keeps its documents.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, changed: make(chan struct{})}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Changed returns a channel that is closed after the next committed write.
// Call it again after each wake-up to wait for the following one.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// notifyChanged wakes every waiter on Changed.
func (s *Store) notifyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}

// UpdateSeq returns the highest seq assigned so far (0 for an empty store).
func (s *Store) UpdateSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM documents`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("update seq: %w", err)
	}
	return seq, nil
}

// pragmas configure every connection. WAL lets the pull flow read while
// the gateway writes.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// migrations upgrade databases created by older builds. Entry i moves
// user_version from i to i+1; fresh databases run all of them after the
// schema, so each must be idempotent.
var migrations = []string{
	// 1: Changes(since) reads rows in seq order.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_seq ON documents(seq)`,
	// 2: AllDocs scans live documents by id.
	`CREATE INDEX IF NOT EXISTS idx_documents_live ON documents(deleted, id)`,
}

// applySchema creates tables if they don't exist and runs pending
// migrations in one transaction.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := version; v < len(migrations); v++ {
		if _, err := tx.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
