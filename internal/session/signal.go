package session

import (
	"encoding/json"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/replicate"
)

// Signal is a notification for the consumer. The set of signals is closed:
// every implementation is declared in this file.
type Signal interface {
	isSignal()
}

// GameLoaded is emitted once when bootstrap completes.
type GameLoaded struct {
	ID     string         `json:"id"`
	Game   doc.Document   `json:"game"`
	Sheets []doc.Document `json:"sheets"`
}

// GameLoadFailed is emitted instead of GameLoaded when the remote answers
// with a fatal status or the root document is missing after bootstrap.
type GameLoadFailed struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// AuthFailed is emitted instead of GameLoaded when the remote rejects the
// session's credentials.
type AuthFailed struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// ChangesReceived carries one batch applied by the live pull flow.
// Game is nil when the batch did not touch the root document.
type ChangesReceived struct {
	Game    doc.Document   `json:"game,omitempty"`
	Sheets  []doc.Document `json:"sheets"`
	Deleted []string       `json:"deleted,omitempty"`
}

// SyncStateChanged reports a live sync flow transition.
type SyncStateChanged struct {
	Direction replicate.Direction `json:"-"`
	State     replicate.State     `json:"-"`
	Err       error               `json:"-"`
}

// PlayerListUpdated forwards a "players" event verbatim.
type PlayerListUpdated struct {
	Data json.RawMessage `json:"data"`
}

// PlayerPresenceUpdated forwards a "presence" event verbatim.
type PlayerPresenceUpdated struct {
	Data json.RawMessage `json:"data"`
}

// ChatMessageReceived forwards a "chat" event verbatim.
type ChatMessageReceived struct {
	Data json.RawMessage `json:"data"`
}

func (GameLoaded) isSignal()            {}
func (GameLoadFailed) isSignal()        {}
func (AuthFailed) isSignal()            {}
func (ChangesReceived) isSignal()       {}
func (SyncStateChanged) isSignal()      {}
func (PlayerListUpdated) isSignal()     {}
func (PlayerPresenceUpdated) isSignal() {}
func (ChatMessageReceived) isSignal()   {}

// SignalName returns the wire name of sig, e.g. "game-loaded".
func SignalName(sig Signal) string {
	switch sig.(type) {
	case GameLoaded:
		return "game-loaded"
	case GameLoadFailed:
		return "game-load-failed"
	case AuthFailed:
		return "auth-failed"
	case ChangesReceived:
		return "changes-received"
	case SyncStateChanged:
		return "sync-state-changed"
	case PlayerListUpdated:
		return "player-list-updated"
	case PlayerPresenceUpdated:
		return "player-presence-updated"
	case ChatMessageReceived:
		return "chat-message-received"
	default:
		return "unknown"
	}
}
