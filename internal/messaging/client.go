package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when a command needs a connection and there
// is none.
var ErrNotConnected = errors.New("messaging: not connected")

// ErrClientClosed is returned by Dispatch after Close.
var ErrClientClosed = errors.New("messaging: client closed")

// DefaultWriteTimeout bounds one frame write when ctx has no deadline.
const DefaultWriteTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. "wss://roll2d6.org/api/chat".
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Buffer is the capacity of the Inbound channel (default 64).
	Buffer int
}

// Client is a messaging connection that can be opened and closed
// repeatedly with Connect and Disconnect.
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	opts    Options
	logger  *slog.Logger
	inbound chan Inbound

	mu     sync.Mutex
	conn   *websocket.Conn
	reader chan struct{} // closed when the current read loop exits
	closed bool
	done   chan struct{}
	loops  sync.WaitGroup
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	return &Client{
		opts:    opts,
		logger:  opts.Logger.With("url", opts.URL),
		inbound: make(chan Inbound, opts.Buffer),
		done:    make(chan struct{}),
	}
}

// Inbound returns the stream of received messages. It is closed by Close.
func (c *Client) Inbound() <-chan Inbound {
	return c.inbound
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Dispatch executes cmd.
func (c *Client) Dispatch(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}

	switch cmd := cmd.(type) {
	case Connect:
		return c.connect(ctx, cmd)
	case Disconnect:
		return c.disconnect(ctx)
	case SendMessage, JoinRoom, LeaveRoom, ConfigureRoom, SetAffiliation:
		return c.send(ctx, cmd)
	default:
		return fmt.Errorf("dispatch: unknown command %T", cmd)
	}
}

// Close disconnects and closes the Inbound channel. Safe to call more than
// once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn, reader := c.conn, c.reader
	c.conn, c.reader = nil, nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		<-reader
	}
	c.loops.Wait()
	close(c.inbound)
	return nil
}

func (c *Client) connect(ctx context.Context, cmd Connect) error {
	if c.Connected() {
		return fmt.Errorf("connect: already connected")
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect: handshake status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("connect: %w", err)
	}

	reader := make(chan struct{})
	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect: client closed or already connected")
	}
	c.conn, c.reader = conn, reader
	c.loops.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn, reader)

	if err := c.send(ctx, cmd); err != nil {
		c.dropConn(conn)
		return err
	}
	c.logger.Info("messaging connected", "jid", cmd.JID)
	return nil
}

func (c *Client) disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	// Best effort: the server may already be gone.
	if err := c.send(ctx, Disconnect{}); err != nil {
		c.logger.Warn("disconnect frame not sent", "error", err)
	}
	c.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()

	c.dropConn(conn)
	c.logger.Info("messaging disconnected")
	return nil
}

// send writes one command frame on the current connection.
func (c *Client) send(ctx context.Context, cmd Command) error {
	data, err := Encode(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%s: %w", Name(cmd), err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%s: %w", Name(cmd), err)
	}
	return nil
}

// dropConn closes conn and waits for its read loop, if it is still the
// current connection.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	reader := c.reader
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn, c.reader = nil, nil
	c.mu.Unlock()

	conn.Close()
	<-reader
}

// readLoop forwards inbound frames until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn, reader chan struct{}) {
	defer c.loops.Done()
	defer close(reader)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("messaging read ended", "error", err)
			}
			c.forget(conn)
			return
		}

		msg, err := decodeInbound(data)
		if err != nil {
			c.logger.Warn("dropping inbound frame", "error", err)
			continue
		}
		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

// forget clears conn as the current connection after the server dropped
// it, without waiting on the read loop that calls it.
func (c *Client) forget(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn, c.reader = nil, nil
		conn.Close()
	}
}
