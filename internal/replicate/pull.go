package replicate

import (
	"context"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/store"
)

// pullCycle reads one page of the remote changes feed and applies it.
//
// Until the flow is active the page is read with the normal feed so a
// reachable remote is reported promptly; afterwards the request longpolls.
func (f *Flow) pullCycle(ctx context.Context) error {
	since, err := f.local.Checkpoint(ctx, f.key)
	if err != nil {
		return &FlowError{Direction: Pull, Op: "checkpoint", Err: err}
	}

	opts := remote.ChangesOptions{Since: since, Limit: f.opts.BatchSize, Feed: remote.FeedNormal}
	if f.State() == StateActive {
		opts.Feed = remote.FeedLongpoll
		opts.Timeout = f.opts.LongpollTimeout
	}

	res, err := f.remote.Changes(ctx, opts)
	if err != nil {
		return &FlowError{Direction: Pull, Op: "changes", Err: err}
	}
	f.markActive()

	applied, applyErr := applyChanges(ctx, f.local, res.Results)
	if len(applied) > 0 {
		batch := doc.PartitionDocs(applied)
		f.logger.Debug("pulled",
			"docs", len(applied),
			"sheets", len(batch.Sheets),
			"deleted", len(batch.Deleted),
			"seq", res.LastSeq,
		)
		if !batch.Empty() {
			f.emit(Event{Kind: EventChange, Batch: batch, Docs: applied, Seq: res.LastSeq})
		}
	}
	if applyErr != nil {
		return applyErr
	}

	if res.LastSeq != since {
		if err := f.local.SetCheckpoint(ctx, f.key, res.LastSeq); err != nil {
			return &FlowError{Direction: Pull, Op: "checkpoint", Err: err}
		}
	}
	return nil
}

// applyChanges stores every row's document that wins over the local
// revision. It returns the applied documents in feed order; on failure it
// returns those applied before the failing row.
func applyChanges(ctx context.Context, s *store.Store, rows []remote.Change) ([]doc.Document, error) {
	var applied []doc.Document
	for _, row := range rows {
		if row.Doc == nil {
			continue
		}
		ok, err := s.ApplyReplicated(ctx, row.Doc)
		if err != nil {
			return applied, &FlowError{Direction: Pull, Op: "apply", ID: row.ID, Err: err}
		}
		if ok {
			applied = append(applied, row.Doc)
		}
	}
	return applied, nil
}
