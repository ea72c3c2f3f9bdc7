package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/events"
	"github.com/ericnething/roll2d6-client/internal/gateway"
	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/replicate"
	"github.com/ericnething/roll2d6-client/internal/store"
)

// DefaultSignalBuffer is the Signals channel capacity used when
// Options.SignalBuffer is 0.
const DefaultSignalBuffer = 64

// Options configures a Session.
type Options struct {
	// GameID is the game identifier and the remote database name.
	GameID string

	// RemoteURL is the CouchDB base URL. Username enables basic auth.
	RemoteURL string
	Username  string
	Password  string

	// DataDir holds one SQLite file per game. Empty keeps the local
	// collection in memory.
	DataDir string

	// DefaultGame is the root payload written on first load.
	DefaultGame doc.Document

	// EventsURL is the SSE base URL; empty disables the event channel.
	EventsURL string

	// EventsHeaderTimeout bounds how long Load waits for the event
	// channel to answer. Zero means events.DefaultHeaderTimeout.
	EventsHeaderTimeout time.Duration

	// BeaconURL is the presence beacon base URL; empty disables it.
	BeaconURL string

	// Sync tunes the replication flows.
	Sync replicate.Options

	// HTTPClient is used for the remote, events and beacon requests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SignalBuffer is the capacity of the Signals channel.
	SignalBuffer int
}

// Session is one loaded game.
//
// Thread-safety: all methods are safe for concurrent use. Load must be
// called at most once.
type Session struct {
	opts    Options
	logger  *slog.Logger
	signals chan Signal
	gateway *gateway.Gateway
	beacon  *events.Beacon

	ctx     context.Context
	cancel  context.CancelFunc
	closing chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	loaded  bool
	closed  bool
	local   *store.Store
	remote  *remote.Client
	sync    *replicate.Sync
	stream  *events.Stream
}

// New creates an unloaded session. It performs no I/O.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SignalBuffer <= 0 {
		opts.SignalBuffer = DefaultSignalBuffer
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	opts.Sync.Logger = opts.Logger

	logger := opts.Logger.With("game", opts.GameID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		opts:    opts,
		logger:  logger,
		signals: make(chan Signal, opts.SignalBuffer),
		gateway: gateway.New(logger),
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
	}
	if opts.BeaconURL != "" {
		s.beacon = &events.Beacon{URL: opts.BeaconURL, Client: opts.HTTPClient, Logger: logger}
	}
	return s
}

// ID returns the game identifier.
func (s *Session) ID() string {
	return s.opts.GameID
}

// Signals returns the consumer notification stream. It is closed by Close.
func (s *Session) Signals() <-chan Signal {
	return s.signals
}

// Get reads a document from the local collection.
func (s *Session) Get(ctx context.Context, id string) (doc.Document, error) {
	local, err := s.localStore()
	if err != nil {
		return nil, err
	}
	return local.Get(ctx, id)
}

// Put writes payload as document id in the local collection. The live
// push flow uploads it.
func (s *Session) Put(ctx context.Context, id string, payload map[string]any) (string, error) {
	local, err := s.localStore()
	if err != nil {
		return "", err
	}
	return s.gateway.Write(ctx, local, id, payload)
}

// Remove deletes document id from the local collection.
func (s *Session) Remove(ctx context.Context, id string) (string, error) {
	local, err := s.localStore()
	if err != nil {
		return "", err
	}
	return s.gateway.Remove(ctx, local, id)
}

// AllDocs lists the live documents of the local collection.
func (s *Session) AllDocs(ctx context.Context) ([]doc.Document, error) {
	local, err := s.localStore()
	if err != nil {
		return nil, err
	}
	return local.AllDocs(ctx)
}

// PauseSync suspends both live flows.
func (s *Session) PauseSync() {
	if sy := s.liveSync(); sy != nil {
		sy.Pause()
	}
}

// ResumeSync restarts both live flows after PauseSync.
func (s *Session) ResumeSync() {
	if sy := s.liveSync(); sy != nil {
		sy.Resume()
	}
}

// SyncState reports both live flows. Before Load (or after a failed one)
// both flows report StateStarting.
func (s *Session) SyncState() replicate.Status {
	if sy := s.liveSync(); sy != nil {
		return sy.Status()
	}
	return replicate.Status{}
}

// CloseEvents closes the event channel. Sync keeps running.
func (s *Session) CloseEvents() {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}

// Teardown is called when the hosting view is discarded: it fires the
// best-effort offline beacon, closes the event channel and the session.
// It does not wait for the beacon.
func (s *Session) Teardown() error {
	s.mu.Lock()
	stream := s.stream
	loaded := s.loaded
	s.mu.Unlock()

	if stream != nil {
		stream.Teardown(s.beacon)
	} else if loaded {
		s.beacon.Offline(s.opts.GameID)
	}
	return s.Close()
}

// Close stops sync and the event channel, closes both collections and
// closes the Signals channel. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.cancel()
	sy, stream := s.sync, s.stream
	s.mu.Unlock()

	var firstErr error
	if sy != nil {
		if err := sy.Stop(); err != nil {
			firstErr = fmt.Errorf("stop sync: %w", err)
		}
	}
	if stream != nil {
		stream.Close()
	}

	s.wg.Wait()
	close(s.signals)

	if err := s.closeHandles(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info("session closed")
	return firstErr
}

// closeHandles releases the store and remote handles, if open.
func (s *Session) closeHandles() error {
	s.mu.Lock()
	local, rem := s.local, s.remote
	s.local, s.remote = nil, nil
	s.mu.Unlock()

	var firstErr error
	if rem != nil {
		rem.Close()
	}
	if local != nil {
		if err := local.Close(); err != nil {
			firstErr = fmt.Errorf("close local store: %w", err)
		}
	}
	return firstErr
}

func (s *Session) localStore() (*store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.local == nil {
		return nil, ErrNotLoaded
	}
	return s.local, nil
}

func (s *Session) liveSync() *replicate.Sync {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// emit delivers sig unless the session is closing.
func (s *Session) emit(sig Signal) bool {
	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.signals <- sig:
		return true
	case <-s.closing:
		return false
	}
}
