package replicate

import (
	"context"
	"strconv"
	"time"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/remote"
)

// pushCycle uploads one batch of local changes, or waits for the next
// local write when there is nothing to send.
func (f *Flow) pushCycle(ctx context.Context) error {
	// Taken before reading so a write landing mid-cycle still wakes us.
	wake := f.local.Changed()

	since, err := f.pushSince(ctx)
	if err != nil {
		return err
	}

	changes, last, err := f.local.Changes(ctx, since, f.opts.BatchSize)
	if err != nil {
		return &FlowError{Direction: Push, Op: "read local", Err: err}
	}

	if len(changes) == 0 {
		if f.State() != StateActive {
			// Nothing to send: confirm the remote answers before
			// reporting the flow active. A missing database is fine.
			if _, err := f.remote.Info(ctx); err != nil && !remote.IsNotFound(err) {
				return &FlowError{Direction: Push, Op: "info", Err: err}
			}
			f.markActive()
		}
		return f.idle(ctx, wake)
	}

	docs := make([]doc.Document, len(changes))
	for i, c := range changes {
		docs[i] = c.Doc
	}
	err = f.remote.BulkDocs(ctx, docs)
	if remote.IsNotFound(err) {
		// First upload of a game the server has never seen.
		f.logger.Info("creating remote database", "remote", f.remote.URL())
		if err := f.remote.CreateDB(ctx); err != nil {
			return &FlowError{Direction: Push, Op: "create_db", Err: err}
		}
		err = f.remote.BulkDocs(ctx, docs)
	}
	if err != nil {
		return &FlowError{Direction: Push, Op: "bulk_docs", Err: err}
	}
	f.markActive()

	if err := f.local.SetCheckpoint(ctx, f.key, strconv.FormatInt(last, 10)); err != nil {
		return &FlowError{Direction: Push, Op: "checkpoint", Err: err}
	}
	f.logger.Debug("pushed", "docs", len(docs), "seq", last)
	return nil
}

// pushSince returns the last local seq uploaded.
func (f *Flow) pushSince(ctx context.Context) (int64, error) {
	raw, err := f.local.Checkpoint(ctx, f.key)
	if err != nil {
		return 0, &FlowError{Direction: Push, Op: "checkpoint", Err: err}
	}
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt marker only costs a full re-upload.
		f.logger.Warn("resetting push checkpoint", "since", raw, "error", err)
		return 0, nil
	}
	return since, nil
}

// idle blocks until a local write, the poll interval, or cancellation.
func (f *Flow) idle(ctx context.Context, wake <-chan struct{}) error {
	timer := time.NewTimer(f.opts.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timer.C:
	}
	return nil
}
