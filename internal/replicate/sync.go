package replicate

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/store"
)

// Status is a snapshot of both flows.
type Status struct {
	Pull   State `json:"pull"`
	Push   State `json:"push"`
	Paused bool  `json:"paused"`
}

// Sync owns the Pull and Push flows of one game. Both flows start together
// and stop together.
type Sync struct {
	pull *Flow
	push *Flow
	gate *gate

	cancel context.CancelFunc
	group  *errgroup.Group

	stopOnce sync.Once
	err      error
}

// Start launches both live flows between r and s. They run until Stop is
// called or ctx is cancelled.
func Start(ctx context.Context, r *remote.Client, s *store.Store, opts Options) *Sync {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	gt := newGate()
	sy := &Sync{
		pull:   newFlow(Pull, r, s, gt, opts),
		push:   newFlow(Push, r, s, gt, opts),
		gate:   gt,
		cancel: cancel,
		group:  g,
	}

	g.Go(func() error { return sy.pull.run(gctx) })
	g.Go(func() error { return sy.push.run(gctx) })

	opts.Logger.Info("live sync started", "remote", r.URL())
	return sy
}

// Pull returns the remote-to-local flow.
func (s *Sync) Pull() *Flow {
	return s.pull
}

// Push returns the local-to-remote flow.
func (s *Sync) Push() *Flow {
	return s.push
}

// Pause suspends both flows. In-flight requests are cancelled and each
// flow reports EventPaused. Pausing a paused Sync is a no-op.
func (s *Sync) Pause() {
	s.gate.Pause()
}

// Resume restarts both flows after Pause.
func (s *Sync) Resume() {
	s.gate.Resume()
}

// Status returns the current state of both flows.
func (s *Sync) Status() Status {
	return Status{
		Pull:   s.pull.State(),
		Push:   s.push.State(),
		Paused: s.gate.Paused(),
	}
}

// Stop cancels both flows and waits for them to deliver EventComplete.
// It is safe to call more than once.
func (s *Sync) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		err := s.group.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.err = err
		}
	})
	return s.err
}
