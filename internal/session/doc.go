// Package session owns everything one loaded game needs: its local store,
// its remote handle, the live sync flows and the event channel.
//
// A Session replaces process-wide state. The caller creates one per game
// with New, calls Load once, consumes Signals, and calls Teardown (page
// going away) or Close when done.
//
// Load runs the bootstrap sequence:
//
//  1. open the local store and the remote handle
//  2. pull every remote change once
//  3. create the root document from the default payload if it is missing
//  4. start live sync, read back the collection and emit GameLoaded
//  5. open the event channel, if one is configured
//
// An unauthorized or otherwise fatal remote response in step 2 ends the
// bootstrap with exactly one AuthFailed or GameLoadFailed signal. Any other
// replication failure is logged and the game loads from the local store.
//
// GameLoaded is always the first signal of a loaded session; live changes
// are forwarded only after it has been delivered.
package session
