// Package harness runs sync scenarios against an in-memory CouchDB server.
//
// A scenario is a YAML file describing a game: documents already on the
// server, the template used for a new game, and a flow of steps. Steps
// load the session, edit documents locally or as another client on the
// server, inject server failures and wait for signals. Every step and
// every awaited signal is appended to a trace; assertions then check the
// trace and the final documents on both sides.
//
// Traces are deterministic: revisions are stripped, sequence numbers are
// trace positions and only signals a step waited for are
// recorded. Golden traces live in testdata/golden and are compared with
// goldie:
//
//	go test ./internal/harness -update
//
// Example scenario:
//
//	name: remote-edit-reaches-session
//	description: A sheet written by another player arrives as a change batch.
//	game_id: game_e95bcd76
//	remote:
//	  - {_id: game, title: "Fate"}
//	flow:
//	  - op: load
//	  - op: expect_signal
//	    signal: game-loaded
//	  - op: remote_put
//	    id: 0a6f1c9e-1b52-4d0c-9d8b-3f5e7f3a2c11
//	    doc: {name: "Harry"}
//	  - op: expect_signal
//	    signal: changes-received
//	assertions:
//	  - type: trace_order
//	    names: [game-loaded, changes-received]
package harness
