// Package doc provides the document model shared by the local and remote
// collections of a game.
//
// A Document is a JSON object with two reserved fields: _id (stable for the
// lifetime of the document) and _rev (an opaque revision token reassigned on
// every successful write). Two identifier shapes are meaningful:
//   - "game": the singleton root document of a collection
//   - a canonical hyphenated UUID: a character sheet
//
// Every other identifier (design documents, local bookkeeping) is ignored by
// Partition.
//
// This package imports nothing internal. Numbers are decoded as json.Number
// so bodies survive a local/remote round trip byte for byte.
package doc
