package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	mustPut(t, s1, doc.Document{doc.FieldID: "game"})
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	if _, err := s2.Get(context.Background(), "game"); err != nil {
		t.Errorf("document lost across reopen: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"documents", "checkpoints"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	mustPut(t, s, doc.Document{doc.FieldID: "game"})
	docs, err := s.AllDocs(context.Background())
	if err != nil {
		t.Fatalf("AllDocs() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Second close should not panic (though may error)
	_ = s.Close()
}

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchema_DocumentsColumns(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "documents")
	for _, col := range []string{"id", "rev", "body", "deleted", "seq"} {
		if !contains(columns, col) {
			t.Errorf("documents table missing column %q", col)
		}
	}
}

func TestSchema_UserVersion(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("user_version", "2"); err != nil {
		t.Error(err)
	}

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_documents_seq'",
	).Scan(&name)
	if err != nil {
		t.Errorf("seq index missing: %v", err)
	}
}

func TestSchema_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("user_version", "2"); err != nil {
		t.Error(err)
	}
	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_documents_live'",
	).Scan(&name)
	if err != nil {
		t.Errorf("live index missing: %v", err)
	}
}

func TestOpenGame_FilePerGame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := OpenGame(dir, "game_abc")
	if err != nil {
		t.Fatalf("OpenGame() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "game_abc.db")); err != nil {
		t.Errorf("game database not created: %v", err)
	}
}

func TestOpenGame_EmptyDirInMemory(t *testing.T) {
	s, err := OpenGame("", "game_abc")
	if err != nil {
		t.Fatalf("OpenGame() failed: %v", err)
	}
	defer s.Close()
	mustPut(t, s, doc.Document{doc.FieldID: "game"})
}

func TestOpenGame_RejectsPathLikeIDs(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if s, err := OpenGame(t.TempDir(), id); err == nil {
			s.Close()
			t.Errorf("OpenGame(%q) succeeded", id)
		}
	}
}

func TestChanged_ClosedAfterWrite(t *testing.T) {
	s := createTestStore(t)
	ch := s.Changed()

	select {
	case <-ch:
		t.Fatal("Changed() fired before any write")
	default:
	}

	mustPut(t, s, doc.Document{doc.FieldID: "game"})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed() did not fire after write")
	}

	select {
	case <-s.Changed():
		t.Fatal("fresh Changed() channel must wait for the next write")
	default:
	}
}

func TestUpdateSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.UpdateSeq(ctx)
	if err != nil {
		t.Fatalf("UpdateSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store seq = %d, want 0", seq)
	}

	mustPut(t, s, doc.Document{doc.FieldID: "game"})
	mustPut(t, s, doc.Document{doc.FieldID: sheetA})

	seq, err = s.UpdateSeq(ctx)
	if err != nil {
		t.Fatalf("UpdateSeq() failed: %v", err)
	}
	if seq != 2 {
		t.Errorf("seq = %d, want 2", seq)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
