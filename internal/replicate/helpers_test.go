package replicate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/store"
)

const (
	gameDB = "game_5b0e2c4a-8f3d-4e1b-9c7a-6d5e4f3a2b1c"
	sheetA = "0b7c5a2e-3f1d-4c8e-9a6b-1d2e3f4a5b6c"
	sheetB = "1c8d6b3f-4a2e-4d9f-8b7c-2e3f4a5b6c7d"
)

func testOptions() Options {
	return Options{
		BatchSize:       50,
		LongpollTimeout: 2 * time.Second,
		PollInterval:    200 * time.Millisecond,
		InitialBackoff:  10 * time.Millisecond,
		MaxBackoff:      50 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "game.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRemote(t *testing.T, url string) *remote.Client {
	t.Helper()
	r, err := remote.New(remote.Config{URL: url, Database: gameDB})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// startSync starts a Sync that is stopped at test cleanup.
func startSync(t *testing.T, r *remote.Client, s *store.Store) *Sync {
	t.Helper()
	sy := Start(context.Background(), r, s, testOptions())
	t.Cleanup(func() { _ = sy.Stop() })
	return sy
}

// waitFor returns the next event of kind on f, skipping others.
func waitFor(t *testing.T, f *Flow, kind EventKind) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, err := f.Next(ctx)
		require.NoError(t, err, "waiting for %s event on %s flow", kind, f.Direction())
		if ev.Kind == kind {
			return ev
		}
	}
}
