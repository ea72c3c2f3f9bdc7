package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

const (
	sheetA = "0b7c5a2e-3f1d-4c8e-9a6b-1d2e3f4a5b6c"
	sheetB = "1c8d6b3f-4a2e-4d9f-8b7c-2e3f4a5b6c7d"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustPut writes d and fails the test on error.
func mustPut(t *testing.T, s *Store, d doc.Document) string {
	t.Helper()
	rev, err := s.Put(context.Background(), d)
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", d.ID(), err)
	}
	return rev
}
