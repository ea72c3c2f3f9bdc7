package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/events"
	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/replicate"
	"github.com/ericnething/roll2d6-client/internal/store"
)

var errMissingRoot = errors.New("root document missing after bootstrap")

// Load bootstraps the game. On success exactly one GameLoaded signal has
// been emitted and live sync is running. On failure exactly one AuthFailed
// or GameLoadFailed signal has been emitted, the handles are closed and the
// returned error wraps ErrAuthFailed or ErrLoadFailed.
//
// Close cancels a Load in progress.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("load %s: already loaded", s.opts.GameID)
	}
	s.started = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	id := s.opts.GameID
	if id == "" {
		return fmt.Errorf("load: game id is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.logger.Info("loading game", "remote", s.opts.RemoteURL)

	local, err := s.openLocal()
	if err != nil {
		return s.failLoad(GameLoadFailed{ID: id, Err: err}, ErrLoadFailed, err)
	}
	rem, err := remote.New(remote.Config{
		URL:        s.opts.RemoteURL,
		Database:   id,
		Username:   s.opts.Username,
		Password:   s.opts.Password,
		HTTPClient: s.opts.HTTPClient,
	})
	if err != nil {
		local.Close()
		return s.failLoad(GameLoadFailed{ID: id, Err: err}, ErrLoadFailed, err)
	}
	s.mu.Lock()
	s.local, s.remote = local, rem
	s.mu.Unlock()

	// 1. One-shot pull.
	res, err := replicate.Once(ctx, rem, local, s.opts.Sync)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return s.abortLoad(ctx)
	case remote.IsUnauthorized(err):
		return s.failLoad(AuthFailed{ID: id, Err: err}, ErrAuthFailed, err)
	case remote.IsFatal(err):
		return s.failLoad(GameLoadFailed{ID: id, Err: err}, ErrLoadFailed, err)
	case remote.IsNotFound(err):
		s.logger.Info("remote database missing, creating it")
		if err := rem.CreateDB(ctx); err != nil {
			if ctx.Err() != nil {
				return s.abortLoad(ctx)
			}
			s.logger.Warn("create remote database failed, push will retry", "error", err)
		}
	default:
		s.logger.Warn("replication failed, continuing offline", "error", err)
	}

	// 2. Root document.
	s.ensureRoot(ctx, local)

	// 3. Live sync, then read back.
	sy := replicate.Start(s.ctx, rem, local, s.opts.Sync)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sy.Stop()
		s.closeHandles()
		return ErrClosed
	}
	s.sync = sy
	s.mu.Unlock()

	docs, err := local.AllDocs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.abortLoad(ctx)
		}
		return s.failLoad(GameLoadFailed{ID: id, Err: err}, ErrLoadFailed, err)
	}
	p := doc.PartitionDocs(docs)
	if p.Game == nil {
		return s.failLoad(GameLoadFailed{ID: id, Err: errMissingRoot}, ErrLoadFailed, errMissingRoot)
	}

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()

	s.emit(GameLoaded{ID: id, Game: p.Game, Sheets: p.Sheets})
	s.logger.Info("game loaded", "sheets", len(p.Sheets), "docs_pulled", res.DocsWritten)

	// Forwarding starts only now, so GameLoaded precedes every change.
	s.wg.Add(2)
	go s.forwardFlow(sy.Pull())
	go s.forwardFlow(sy.Push())

	// 4. Event channel.
	if s.opts.EventsURL != "" {
		s.openEvents(ctx)
	}
	return nil
}

// openLocal opens the game's SQLite file, or an in-memory store when no
// data directory is configured.
func (s *Session) openLocal() (*store.Store, error) {
	return store.OpenGame(s.opts.DataDir, s.opts.GameID)
}

// ensureRoot writes the default payload as the root document unless one
// exists. Existing data is never overwritten. A failed existence check is
// logged and treated as absent; the create then fails safely on conflict.
func (s *Session) ensureRoot(ctx context.Context, local *store.Store) {
	_, err := local.Get(ctx, doc.RootID)
	if err == nil {
		return
	}
	if !errors.Is(err, doc.ErrNotFound) {
		s.logger.Warn("root existence check failed, treating as absent", "error", err)
	}

	root := s.opts.DefaultGame.With(map[string]any{doc.FieldID: doc.RootID})
	delete(root, doc.FieldRev)
	delete(root, doc.FieldDeleted)

	rev, err := local.Put(ctx, root)
	if err != nil {
		s.logger.Error("create root document failed", "error", err)
		return
	}
	s.logger.Info("root document created", "rev", rev)
}

// failLoad tears down whatever Load started, emits sig and returns the
// Load error.
func (s *Session) failLoad(sig Signal, sentinel, cause error) error {
	if sy := s.liveSync(); sy != nil {
		sy.Stop()
	}
	s.closeHandles()

	s.logger.Error("game load failed", "signal", SignalName(sig), "error", cause)
	s.emit(sig)
	return fmt.Errorf("load %s: %w: %w", s.opts.GameID, sentinel, cause)
}

// abortLoad tears down whatever Load started after the caller cancelled.
// No signal is emitted.
func (s *Session) abortLoad(ctx context.Context) error {
	if sy := s.liveSync(); sy != nil {
		sy.Stop()
	}
	s.closeHandles()
	return fmt.Errorf("load %s: %w", s.opts.GameID, ctx.Err())
}

// openEvents opens the event channel and starts forwarding it. A failure to
// connect is logged; the game stays loaded.
func (s *Session) openEvents(ctx context.Context) {
	stream, err := events.Open(s.ctx, events.Options{
		Endpoint: s.opts.EventsURL,
		GameID:   s.opts.GameID,
		Client:   s.opts.HTTPClient,
		Logger:   s.opts.Logger,

		HeaderTimeout: s.opts.EventsHeaderTimeout,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("event channel failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	s.wg.Add(1)
	go s.forwardEvents(stream)
}
