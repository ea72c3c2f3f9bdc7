package replicate

import (
	"fmt"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// Direction identifies which way a flow moves documents.
type Direction int

const (
	// Pull copies remote changes into the local store.
	Pull Direction = iota + 1
	// Push uploads local changes to the remote database.
	Push
)

// String returns "pull" or "push".
func (d Direction) String() string {
	switch d {
	case Pull:
		return "pull"
	case Push:
		return "push"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// State is the health of one flow.
type State int

const (
	StateStarting State = iota
	StateActive
	StatePaused
	StateErroring
	StateStopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateErroring:
		return "erroring"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind distinguishes flow events.
type EventKind int

const (
	// EventActive: the flow reached the remote and is replicating.
	EventActive EventKind = iota + 1
	// EventPaused: the remote is unreachable, or Pause was called.
	EventPaused
	// EventChange: a pull cycle applied a batch of remote revisions.
	EventChange
	// EventError: a cycle failed for a reason other than connectivity.
	EventError
	// EventComplete: the flow stopped. It is always the last event.
	EventComplete
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventActive:
		return "active"
	case EventPaused:
		return "paused"
	case EventChange:
		return "change"
	case EventError:
		return "error"
	case EventComplete:
		return "complete"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one entry of a flow's ordered stream.
type Event struct {
	Kind      EventKind
	Direction Direction

	// Batch is set for EventChange: the applied documents partitioned by
	// identifier shape. Documents of other shapes are not included.
	Batch doc.Partition

	// Docs is set for EventChange: every applied document in feed order.
	Docs []doc.Document

	// Seq is the checkpoint reached after an EventChange.
	Seq string

	// Err is set for EventError, and for EventPaused caused by a failure.
	Err error
}

// State returns the flow state an event moves the flow into.
func (e Event) State() State {
	switch e.Kind {
	case EventActive, EventChange:
		return StateActive
	case EventPaused:
		return StatePaused
	case EventError:
		return StateErroring
	case EventComplete:
		return StateStopped
	default:
		return StateStarting
	}
}
