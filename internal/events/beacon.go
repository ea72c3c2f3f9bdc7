package events

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBeaconTimeout bounds one beacon request.
const DefaultBeaconTimeout = 2 * time.Second

// offlinePayload is the presence notification sent on teardown.
var offlinePayload = []byte(`{"presence":"offline"}`)

// Beacon sends best-effort notifications. Send never blocks the caller and
// never reports a result; failures are only logged.
//
// A nil *Beacon is valid and sends nothing.
type Beacon struct {
	// URL is the beacon base; Offline posts to <URL>/<game-id>.
	URL string

	// Client defaults to http.DefaultClient.
	Client *http.Client

	// Timeout defaults to DefaultBeaconTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Send posts payload to target in the background.
func (b *Beacon) Send(target string, payload []byte) {
	if b == nil {
		return
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			logger.Warn("beacon not sent", "url", target, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn("beacon failed", "url", target, "error", err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		logger.Debug("beacon sent", "url", target, "status", resp.StatusCode)
	}()
}

// Offline announces that the local player left gameID.
func (b *Beacon) Offline(gameID string) {
	if b == nil || b.URL == "" {
		return
	}
	b.Send(strings.TrimRight(b.URL, "/")+"/"+url.PathEscape(gameID), offlinePayload)
}
