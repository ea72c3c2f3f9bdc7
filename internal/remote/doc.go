// Package remote is a client for the authoritative, CouchDB-compatible
// copy of a game's collection, built on kivik and its couchdb driver.
//
// Each game lives in its own database at <base>/<game-id>. The client
// exposes the subset of the CouchDB API the sync core needs: database
// creation and info, document CRUD, _all_docs, the _changes feed (normal
// and longpoll) and _bulk_docs with new_edits=false for replication.
//
// # Error Classification
//
// Every error response is a *StatusError whose Code comes from
// kivik.HTTPStatus. It matches doc.ErrNotFound (404) and doc.ErrConflict
// (409) under errors.Is. IsUnauthorized covers 401/403; IsFatal covers
// every status outside 2xx/404. Transport failures (dial, reset, timeout)
// wrap ErrUnreachable and are always retryable.
package remote
