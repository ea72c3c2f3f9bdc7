// Package replicate moves documents between a game's local collection and
// its remote database.
//
// Once performs the bootstrap pull: a terminal pass that drains the remote
// changes feed into the local store. Sync runs the two live flows, Pull
// (remote to local) and Push (local to remote), until stopped.
//
// Each Flow publishes a single ordered stream of Events consumed with Next:
//
//	for {
//	    ev, err := flow.Next(ctx)
//	    if err != nil {
//	        break // ErrStopped once the flow has completed
//	    }
//	    switch ev.Kind {
//	    case replicate.EventChange:
//	        render(ev.Batch)
//	    }
//	}
//
// Flows retry forever with exponential backoff. An unreachable remote moves
// a flow to StatePaused; any other failure moves it to StateErroring. Both
// recover to StateActive on the next successful cycle. Only Stop (or
// cancellation of the context passed to Start) ends a flow.
//
// Revisions are copied verbatim in both directions. The local store keeps
// the winning revision (doc.CompareRev) and the remote is written with
// new_edits=false, so echoes of already-known revisions are no-ops and the
// flows never ping-pong.
package replicate
