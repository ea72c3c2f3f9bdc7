// Package events is the live event channel of a game: a Server-Sent Events
// stream carrying roster, presence and chat updates that do not go through
// the document store.
//
// Open connects to <endpoint>/<game-id> and demultiplexes the named events
// "players", "presence" and "chat" onto one channel. Payloads must be JSON
// and are forwarded verbatim. A stream that fails is logged and closed; it
// is not reopened.
//
// When the hosting view goes away, Teardown fires a best-effort
// "presence: offline" beacon and closes the stream without waiting for the
// beacon to be delivered.
package events
