package replicate

import (
	"errors"
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/remote"
)

// ErrStopped is returned by Next once a flow has delivered EventComplete.
var ErrStopped = errors.New("flow stopped")

// FlowError is a failed replication step. It carries the direction and the
// step that failed so logs and events can be traced to one side.
type FlowError struct {
	// Direction is the flow that failed.
	Direction Direction

	// Op names the failed step, e.g. "changes", "apply", "bulk_docs".
	Op string

	// ID is the document involved, when the step was per-document.
	ID string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Direction, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Direction, e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// IsFlowError returns true if err is (or wraps) a FlowError.
// Uses errors.As to handle wrapped errors.
func IsFlowError(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe)
}

// isConnectivity reports whether err means the remote could not be reached.
// Such failures pause a flow instead of marking it erroring.
func isConnectivity(err error) bool {
	return remote.IsUnreachable(err)
}
