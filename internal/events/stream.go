package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind is the category of a live event.
type Kind int

const (
	// KindPlayerList carries the roster of a game.
	KindPlayerList Kind = iota + 1
	// KindPresence carries one player's presence change.
	KindPresence
	// KindChat carries one chat message.
	KindChat
)

// String returns the wire event name.
func (k Kind) String() string {
	switch k {
	case KindPlayerList:
		return "players"
	case KindPresence:
		return "presence"
	case KindChat:
		return "chat"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a wire event name to its Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "players":
		return KindPlayerList, true
	case "presence":
		return KindPresence, true
	case "chat":
		return KindChat, true
	default:
		return 0, false
	}
}

// Event is one decoded live event.
type Event struct {
	Kind Kind
	ID   string
	Data json.RawMessage
}

// ErrStreamEnded is recorded when the server closes the stream.
var ErrStreamEnded = errors.New("event stream ended by server")

// DefaultBuffer is the event channel capacity used when Options.Buffer is 0.
const DefaultBuffer = 16

// DefaultHeaderTimeout bounds the wait for response headers when
// Options.HeaderTimeout is 0.
const DefaultHeaderTimeout = 10 * time.Second

// ErrHeaderTimeout is returned by Open when the server accepts the
// connection but sends no response headers in time.
var ErrHeaderTimeout = errors.New("event stream: timed out waiting for response headers")

// Options configures Open.
type Options struct {
	// Endpoint is the events base URL; the stream is <Endpoint>/<GameID>.
	Endpoint string

	// GameID selects the game.
	GameID string

	// Client performs the request. It must not set a Timeout, which would
	// cut the stream. Defaults to a new http.Client.
	Client *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Buffer is the capacity of the Events channel.
	Buffer int

	// HeaderTimeout bounds how long Open waits for the response headers.
	// It does not apply once the stream is open. Negative disables it.
	HeaderTimeout time.Duration
}

// Stream is one open event channel.
// Thread-safety: all methods are safe for concurrent use.
type Stream struct {
	gameID string
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	closing   chan struct{}

	mu  sync.Mutex
	err error
}

// Open connects to the game's event stream. The stream runs until Close or
// until ctx is cancelled.
func Open(ctx context.Context, opts Options) (*Stream, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("open event stream: endpoint is required")
	}
	if opts.GameID == "" {
		return nil, fmt.Errorf("open event stream: game id is required")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.HeaderTimeout == 0 {
		opts.HeaderTimeout = DefaultHeaderTimeout
	}

	target := strings.TrimRight(opts.Endpoint, "/") + "/" + url.PathEscape(opts.GameID)

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream %s: %w", opts.GameID, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	var timedOut atomic.Bool
	var timer *time.Timer
	if opts.HeaderTimeout > 0 {
		timer = time.AfterFunc(opts.HeaderTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	resp, err := opts.Client.Do(req)
	if timer != nil && !timer.Stop() && timedOut.Load() {
		// The timer fired; a response that raced it is unusable.
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("open event stream %s: %w", opts.GameID, ErrHeaderTimeout)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream %s: %w", opts.GameID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open event stream %s: unexpected status %d", opts.GameID, resp.StatusCode)
	}

	s := &Stream{
		gameID:  opts.GameID,
		events:  make(chan Event, opts.Buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		logger:  opts.Logger.With("game", opts.GameID),
	}
	go s.read(ctx, resp.Body)

	s.logger.Info("event stream opened", "url", target)
	return s, nil
}

// GameID returns the game the stream belongs to.
func (s *Stream) GameID() string {
	return s.gameID
}

// Events returns the channel of decoded events. It is closed when the
// stream ends for any reason.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Done is closed once the stream has fully shut down.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the stream, or nil if it is still
// running or was closed by Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for the reader to exit. Safe to call
// more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.cancel()
	})
	<-s.done
	return nil
}

// Teardown fires the offline beacon (if b is non-nil) and closes the
// stream. It does not wait for the beacon.
func (s *Stream) Teardown(b *Beacon) {
	b.Offline(s.gameID)
	s.Close()
}

func (s *Stream) read(ctx context.Context, body io.ReadCloser) {
	defer close(s.done)
	defer close(s.events)
	defer body.Close()

	scanner := NewScanner(body)
	for scanner.Next() {
		msg := scanner.Message()

		kind, ok := ParseKind(msg.Event)
		if !ok {
			s.logger.Warn("dropping unknown event", "event", msg.Event)
			continue
		}
		if !json.Valid([]byte(msg.Data)) {
			s.logger.Warn("dropping malformed event", "event", msg.Event, "id", msg.ID)
			continue
		}

		select {
		case s.events <- Event{Kind: kind, ID: msg.ID, Data: json.RawMessage(msg.Data)}:
		case <-ctx.Done():
			return
		}
	}

	select {
	case <-s.closing:
		s.logger.Info("event stream closed")
		return
	default:
	}

	err := scanner.Err()
	if err == nil {
		err = ErrStreamEnded
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Error("event stream failed", "error", err)
}
