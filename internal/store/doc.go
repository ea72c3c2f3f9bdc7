// Package store provides the SQLite-backed local collection of one game.
//
// The local collection is the always-available half of a game's document
// set. It holds:
//   - Documents: the current revision of every document, tombstones included
//   - Checkpoints: replication progress markers keyed by flow
//
// # Concurrency Control
//
// Every write is revision checked. A create must not carry _rev; an update
// or delete must carry the stored _rev exactly. Mismatches fail with
// ErrConflict and leave the row untouched. Revision tokens are always
// computed here (doc.NextRev), never taken from the caller, except for
// revisions arriving through replication (ApplyReplicated), which are
// stored verbatim when they win.
//
// # Update Sequence
//
// Each committed write stamps the row with a new seq INTEGER (monotonic,
// never reused). Changes(since) reads rows ordered by seq ASC, which gives
// outbound replication a resumable cursor.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
