package doc

import "errors"

// Error taxonomy shared by every collection implementation. Local and
// remote collections wrap or match these so callers can use errors.Is
// without knowing which side produced the failure.
var (
	// ErrNotFound means the document does not exist or is deleted.
	ErrNotFound = errors.New("document not found")

	// ErrConflict means the supplied revision does not match the stored one.
	ErrConflict = errors.New("document update conflict")
)
