package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/replicate"
	"github.com/ericnething/roll2d6-client/internal/testutil"
)

const (
	gameID = "game_e95bcd76-c9fd-4bd4-ba1d-d1cd35760706"
	sheetA = "0b7c5a2e-3f1d-4c8e-9a6b-1d2e3f4a5b6c"
	sheetB = "1c8d6b3f-4a2e-4d9f-8b7c-2e3f4a5b6c7d"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testOptions(remoteURL string) Options {
	return Options{
		GameID:      gameID,
		RemoteURL:   remoteURL,
		DataDir:     "",
		DefaultGame: doc.Document{"title": "New Game", "players": []any{}},
		Logger:      discard,
		Sync: replicate.Options{
			LongpollTimeout: 2 * time.Second,
			PollInterval:    100 * time.Millisecond,
			InitialBackoff:  10 * time.Millisecond,
			MaxBackoff:      50 * time.Millisecond,
		},
	}
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := New(opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func nextSignal(t *testing.T, s *Session) Signal {
	t.Helper()
	select {
	case sig, ok := <-s.Signals():
		require.True(t, ok, "signals closed")
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a signal")
		return nil
	}
}

// waitSignal skips signals until one of type T arrives.
func waitSignal[T Signal](t *testing.T, s *Session) T {
	t.Helper()
	for {
		if v, ok := nextSignal(t, s).(T); ok {
			return v
		}
	}
}

// drain closes s and returns every signal it emitted that was not yet read.
func drain(t *testing.T, s *Session) []Signal {
	t.Helper()
	require.NoError(t, s.Close())
	var out []Signal
	for sig := range s.Signals() {
		out = append(out, sig)
	}
	return out
}

func countSignals(sigs []Signal, name string) int {
	n := 0
	for _, sig := range sigs {
		if SignalName(sig) == name {
			n++
		}
	}
	return n
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestLoad_FirstLoadCreatesRootFromDefault(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.CreateDB(gameID)

	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	loaded, ok := nextSignal(t, s).(GameLoaded)
	require.True(t, ok, "first signal is GameLoaded")
	assert.Equal(t, gameID, loaded.ID)
	assert.JSONEq(t, `{"_id":"game","title":"New Game","players":[]}`, mustJSON(t, loaded.Game.Body()))
	assert.NotEmpty(t, loaded.Game.Rev())
	assert.Empty(t, loaded.Sheets)

	// The created root is pushed to the remote.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pushed := fake.WaitForDoc(ctx, gameID, doc.RootID)
	require.NotNil(t, pushed)
	assert.Equal(t, loaded.Game.Rev(), pushed.Rev())

	assert.Equal(t, 1, countSignals(append([]Signal{loaded}, drain(t, s)...), "game-loaded"))
}

func TestLoad_ExistingRootIsNotOverwritten(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	_, err := fake.Put(gameID, doc.Document{doc.FieldID: doc.RootID, "title": "Existing"})
	require.NoError(t, err)
	_, err = fake.Put(gameID, doc.Document{doc.FieldID: sheetA, "name": "Aiko"})
	require.NoError(t, err)
	_, err = fake.Put(gameID, doc.Document{doc.FieldID: "_design/app"})
	require.NoError(t, err)

	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	loaded := waitSignal[GameLoaded](t, s)
	assert.Equal(t, "Existing", loaded.Game["title"])
	require.Len(t, loaded.Sheets, 1)
	assert.Equal(t, sheetA, loaded.Sheets[0].ID())
}

func TestLoad_UnauthorizedEmitsOnlyAuthFailed(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.FailWith(http.StatusUnauthorized)

	s := newTestSession(t, testOptions(url))
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.True(t, remote.IsUnauthorized(err))

	sigs := drain(t, s)
	assert.Equal(t, 1, countSignals(sigs, "auth-failed"))
	assert.Equal(t, 0, countSignals(sigs, "game-loaded"))
	assert.Len(t, sigs, 1, "sync and events never started")
	assert.Equal(t, replicate.Status{}, s.SyncState())
}

func TestLoad_FatalStatusEmitsGameLoadFailed(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.FailWith(http.StatusInternalServerError)

	s := newTestSession(t, testOptions(url))
	err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrLoadFailed)

	sigs := drain(t, s)
	require.Len(t, sigs, 1)
	failed, ok := sigs[0].(GameLoadFailed)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode(failed.Err))
}

func TestLoad_MissingRemoteDatabaseIsCreated(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)

	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	loaded := waitSignal[GameLoaded](t, s)
	assert.Equal(t, "New Game", loaded.Game["title"])
	assert.Contains(t, fake.Requests(), "PUT /"+gameID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pushed := fake.WaitForDoc(ctx, gameID, doc.RootID)
	require.NotNil(t, pushed, "root reaches the newly created database")
	assert.Equal(t, loaded.Game.Rev(), pushed.Rev())
}

func TestLoad_UnreachableRemoteLoadsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	loaded := waitSignal[GameLoaded](t, s)
	assert.Equal(t, "New Game", loaded.Game["title"])

	st := waitSignal[SyncStateChanged](t, s)
	assert.Equal(t, replicate.StatePaused, st.State)
	assert.True(t, remote.IsUnreachable(st.Err))
}

func TestLoad_PersistsAcrossSessions(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := testOptions(url)
	opts.DataDir = t.TempDir()

	first := New(opts)
	require.NoError(t, first.Load(context.Background()))
	waitSignal[GameLoaded](t, first)
	_, err := first.Put(context.Background(), sheetA, map[string]any{"name": "Aiko"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestSession(t, opts)
	require.NoError(t, second.Load(context.Background()))
	loaded := waitSignal[GameLoaded](t, second)
	require.Len(t, loaded.Sheets, 1)
	assert.Equal(t, "Aiko", loaded.Sheets[0]["name"])
}

func TestLive_ChangesReceivedCarriesPartitionedBatch(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.CreateDB(gameID)

	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	_, ok := nextSignal(t, s).(GameLoaded)
	require.True(t, ok, "GameLoaded precedes every other signal")

	other, err := remote.New(remote.Config{URL: url, Database: gameID})
	require.NoError(t, err)
	require.NoError(t, other.BulkDocs(context.Background(), []doc.Document{
		{doc.FieldID: doc.RootID, doc.FieldRev: "9-ff", "title": "Renamed"},
		{doc.FieldID: sheetA, doc.FieldRev: "1-aa"},
		{doc.FieldID: sheetB, doc.FieldRev: "1-bb"},
	}))

	changes := waitSignal[ChangesReceived](t, s)
	require.NotNil(t, changes.Game)
	assert.Equal(t, "Renamed", changes.Game["title"])
	require.Len(t, changes.Sheets, 2)
	assert.ElementsMatch(t, []string{sheetA, sheetB}, []string{changes.Sheets[0].ID(), changes.Sheets[1].ID()})

	got, err := s.Get(context.Background(), doc.RootID)
	require.NoError(t, err)
	assert.Equal(t, "9-ff", got.Rev())
}

func TestSession_DocumentOperations(t *testing.T) {
	_, url := testutil.StartCouchFake(t)
	s := newTestSession(t, testOptions(url))
	ctx := context.Background()

	_, err := s.Put(ctx, sheetA, map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, s.Load(ctx))

	r1, err := s.Put(ctx, sheetA, map[string]any{"a": 1})
	require.NoError(t, err)
	r2, err := s.Put(ctx, sheetA, map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)

	got, err := s.Get(ctx, sheetA)
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), got["a"])

	docs, err := s.AllDocs(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = s.Remove(ctx, sheetA)
	require.NoError(t, err)
	_, err = s.Remove(ctx, sheetA)
	assert.ErrorIs(t, err, doc.ErrNotFound)
}

func TestSession_PauseAndResumeSync(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.CreateDB(gameID)
	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))

	s.PauseSync()
	assert.True(t, s.SyncState().Paused)
	s.ResumeSync()
	assert.False(t, s.SyncState().Paused)
}

func TestLoad_Twice(t *testing.T) {
	_, url := testutil.StartCouchFake(t)
	s := newTestSession(t, testOptions(url))
	require.NoError(t, s.Load(context.Background()))
	assert.Error(t, s.Load(context.Background()))
}

func TestLoad_AfterClose(t *testing.T) {
	s := New(testOptions("http://127.0.0.1:1"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Load(context.Background()), ErrClosed)
}

// cancelOnHandler cancels when a record with the given message is logged.
type cancelOnHandler struct {
	slog.Handler
	msg    string
	cancel context.CancelFunc
}

func (h cancelOnHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.cancel()
	}
	return h.Handler.Handle(ctx, r)
}

func (h cancelOnHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return cancelOnHandler{Handler: h.Handler.WithAttrs(attrs), msg: h.msg, cancel: h.cancel}
}

func (h cancelOnHandler) WithGroup(name string) slog.Handler {
	return cancelOnHandler{Handler: h.Handler.WithGroup(name), msg: h.msg, cancel: h.cancel}
}

func TestLoad_CancelledAfterSyncStartReturnsCancellation(t *testing.T) {
	fake, url := testutil.StartCouchFake(t)
	fake.CreateDB(gameID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions(url)
	opts.Logger = slog.New(cancelOnHandler{
		Handler: discard.Handler(),
		msg:     "live sync started",
		cancel:  cancel,
	})
	s := New(opts)

	err := s.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLoadFailed)

	sigs := drain(t, s)
	assert.Zero(t, countSignals(sigs, "game-load-failed"))
	assert.Zero(t, countSignals(sigs, "game-loaded"))
}

func TestLoad_SilentEventsServerDoesNotBlockLoad(t *testing.T) {
	_, url := testutil.StartCouchFake(t)
	opts := testOptions(url)
	opts.EventsURL = startServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	opts.EventsHeaderTimeout = 100 * time.Millisecond

	s := newTestSession(t, opts)
	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err, "an unanswered event channel is logged, not fatal")
	case <-time.After(5 * time.Second):
		t.Fatal("Load blocked on the event channel")
	}
	loaded := waitSignal[GameLoaded](t, s)
	assert.Equal(t, "New Game", loaded.Game["title"])
}

// sseHandler serves fixed frames and holds the stream open.
func sseHandler(frames ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
}

func startServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})
	return srv.URL
}

func TestEvents_ForwardedAsSignals(t *testing.T) {
	_, url := testutil.StartCouchFake(t)
	opts := testOptions(url)
	opts.EventsURL = startServer(t, sseHandler(
		"event: players\ndata: [\"ann\"]\n\n",
		"event: presence\ndata: {\"ann\":\"online\"}\n\n",
		"event: chat\ndata: {\"text\":\"hi\"}\n\n",
	))

	s := newTestSession(t, opts)
	require.NoError(t, s.Load(context.Background()))

	players := waitSignal[PlayerListUpdated](t, s)
	assert.JSONEq(t, `["ann"]`, string(players.Data))
	presence := waitSignal[PlayerPresenceUpdated](t, s)
	assert.JSONEq(t, `{"ann":"online"}`, string(presence.Data))
	chat := waitSignal[ChatMessageReceived](t, s)
	assert.JSONEq(t, `{"text":"hi"}`, string(chat.Data))

	s.CloseEvents()
	s.CloseEvents()
}

func TestTeardown_SendsOfflineBeacon(t *testing.T) {
	hits := make(chan string, 1)
	beaconURL := startServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hits <- r.URL.Path + " " + string(body)
	}))

	_, url := testutil.StartCouchFake(t)
	opts := testOptions(url)
	opts.EventsURL = startServer(t, sseHandler())
	opts.BeaconURL = beaconURL

	s := New(opts)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Teardown())

	select {
	case hit := <-hits:
		assert.Equal(t, "/"+gameID+` {"presence":"offline"}`, hit)
	case <-time.After(5 * time.Second):
		t.Fatal("offline beacon not sent")
	}

	for range s.Signals() {
	}
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "game-loaded", SignalName(GameLoaded{}))
	assert.Equal(t, "auth-failed", SignalName(AuthFailed{}))
	assert.Equal(t, "changes-received", SignalName(ChangesReceived{}))
	assert.Equal(t, "chat-message-received", SignalName(ChatMessageReceived{}))
}
