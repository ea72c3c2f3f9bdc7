package session

import "errors"

var (
	// ErrAuthFailed is wrapped by Load when the remote rejects the
	// credentials (401 or 403).
	ErrAuthFailed = errors.New("authorization failed")

	// ErrLoadFailed is wrapped by Load when the remote answers with a fatal
	// status or the root document cannot be read back.
	ErrLoadFailed = errors.New("game load failed")

	// ErrNotLoaded is returned by document operations before a successful
	// Load.
	ErrNotLoaded = errors.New("session not loaded")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("session closed")
)
