package replicate

import (
	"context"
	"sync"
)

// gate pauses and resumes every flow of a Sync.
//
// While open, wait returns a channel that is closed when the gate shuts, so
// an in-flight cycle can be cancelled. While shut, wait blocks until Resume.
type gate struct {
	mu     sync.Mutex
	paused bool
	shut   chan struct{} // closed when paused
	open   chan struct{} // closed when resumed
}

func newGate() *gate {
	open := make(chan struct{})
	close(open)
	return &gate{shut: make(chan struct{}), open: open}
}

// Pause shuts the gate. Returns false if it was already shut.
func (g *gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	close(g.shut)
	g.open = make(chan struct{})
	return true
}

// Resume opens the gate. Returns false if it was already open.
func (g *gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.open)
	g.shut = make(chan struct{})
	return true
}

// Paused reports whether the gate is shut.
func (g *gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait blocks while the gate is shut. It returns the channel that will be
// closed by the next Pause.
func (g *gate) wait(ctx context.Context) (<-chan struct{}, error) {
	for {
		g.mu.Lock()
		if !g.paused {
			shut := g.shut
			g.mu.Unlock()
			return shut, nil
		}
		open := g.open
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-open:
		}
	}
}
