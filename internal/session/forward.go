package session

import (
	"github.com/ericnething/roll2d6-client/internal/events"
	"github.com/ericnething/roll2d6-client/internal/replicate"
)

// forwardFlow turns one flow's events into signals until the flow stops
// or the session closes.
func (s *Session) forwardFlow(f *replicate.Flow) {
	defer s.wg.Done()
	for {
		ev, err := f.Next(s.ctx)
		if err != nil {
			return
		}

		var sig Signal
		switch ev.Kind {
		case replicate.EventChange:
			// Push never emits changes; only pulled batches reach the UI.
			sig = ChangesReceived{
				Game:    ev.Batch.Game,
				Sheets:  ev.Batch.Sheets,
				Deleted: ev.Batch.Deleted,
			}
		default:
			sig = SyncStateChanged{Direction: ev.Direction, State: ev.State(), Err: ev.Err}
		}
		if !s.emit(sig) {
			return
		}
	}
}

// forwardEvents relays the event channel until it closes.
func (s *Session) forwardEvents(stream *events.Stream) {
	defer s.wg.Done()
	for ev := range stream.Events() {
		var sig Signal
		switch ev.Kind {
		case events.KindPlayerList:
			sig = PlayerListUpdated{Data: ev.Data}
		case events.KindPresence:
			sig = PlayerPresenceUpdated{Data: ev.Data}
		case events.KindChat:
			sig = ChatMessageReceived{Data: ev.Data}
		default:
			continue
		}
		// Dropped once closing; the loop keeps draining so the stream
		// reader never blocks.
		s.emit(sig)
	}
}
