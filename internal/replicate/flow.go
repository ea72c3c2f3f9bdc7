package replicate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/store"
)

// Flow is one live, one-directional replication.
//
// Thread-safety model:
//   - run(): called from exactly one goroutine, owned by Sync
//   - Next(): intended for a single consumer goroutine
//   - State(), Direction(): safe from any goroutine
type Flow struct {
	dir    Direction
	remote *remote.Client
	local  *store.Store
	opts   Options
	gate   *gate
	queue  *eventQueue
	logger *slog.Logger
	key    string // checkpoint key in the local store

	mu    sync.Mutex
	state State
}

func newFlow(dir Direction, r *remote.Client, s *store.Store, g *gate, opts Options) *Flow {
	return &Flow{
		dir:    dir,
		remote: r,
		local:  s,
		opts:   opts,
		gate:   g,
		queue:  newEventQueue(),
		logger: opts.Logger.With("direction", dir.String(), "remote", r.URL()),
		key:    checkpointKey(dir, r),
		state:  StateStarting,
	}
}

// checkpointKey names the marker a flow persists in the local store.
// Once and the live Pull flow share a key so the live pull resumes where
// the bootstrap pass stopped.
func checkpointKey(dir Direction, r *remote.Client) string {
	return dir.String() + ":" + r.URL()
}

// Direction returns which way the flow moves documents.
func (f *Flow) Direction() Direction {
	return f.dir
}

// State returns the current health of the flow.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Next returns the next event of the flow, blocking until one is available.
// Events are delivered in the order they occurred. After EventComplete has
// been returned, Next returns ErrStopped.
func (f *Flow) Next(ctx context.Context) (Event, error) {
	for {
		if e, ok := f.queue.TryDequeue(); ok {
			return e, nil
		}
		if f.queue.Drained() {
			return Event{}, ErrStopped
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-f.queue.Wait():
			// Closed on queue close; loop back to TryDequeue.
		}
	}
}

// run drives the flow until ctx is cancelled. Failed cycles are retried
// with exponential backoff; retries never give up.
func (f *Flow) run(ctx context.Context) error {
	defer f.finish()

	b := f.opts.newBackOff()
	for {
		if f.gate.Paused() && f.State() != StatePaused {
			f.emit(Event{Kind: EventPaused})
		}

		shut, err := f.gate.wait(ctx)
		if err != nil {
			return err
		}

		err = f.runCycle(ctx, shut)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			b.Reset()
			continue
		}

		select {
		case <-shut:
			// Interrupted by Pause, not a failure.
			f.emit(Event{Kind: EventPaused})
			continue
		default:
		}

		f.fail(err)

		delay := b.NextBackOff()
		f.logger.Debug("retrying", "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-shut:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// runCycle performs one cycle, cancelling it early if the gate shuts.
func (f *Flow) runCycle(ctx context.Context, shut <-chan struct{}) error {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-shut:
			cancel()
		case <-done:
		}
	}()

	switch f.dir {
	case Pull:
		return f.pullCycle(cycleCtx)
	default:
		return f.pushCycle(cycleCtx)
	}
}

// markActive emits EventActive unless the flow is already active.
func (f *Flow) markActive() {
	if f.State() != StateActive {
		f.emit(Event{Kind: EventActive})
	}
}

// fail records a failed cycle. Connectivity failures pause the flow;
// anything else marks it erroring.
func (f *Flow) fail(err error) {
	if isConnectivity(err) {
		f.logger.Warn("remote unreachable", "error", err)
		f.emit(Event{Kind: EventPaused, Err: err})
		return
	}
	f.logger.Error("replication failed", "error", err)
	f.emit(Event{Kind: EventError, Err: err})
}

// finish moves the flow to StateStopped and closes the event stream.
func (f *Flow) finish() {
	f.emit(Event{Kind: EventComplete})
	f.queue.Close()
}

// emit stamps ev with the flow direction, applies its state transition and
// queues it for Next.
func (f *Flow) emit(ev Event) {
	ev.Direction = f.dir
	next := ev.State()

	f.mu.Lock()
	prev := f.state
	f.state = next
	f.mu.Unlock()

	if prev != next {
		f.logger.Info("sync state changed", "from", prev.String(), "state", next.String())
	}
	f.queue.Enqueue(ev)
}
