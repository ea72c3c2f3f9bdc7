package replicate

import (
	"context"

	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/store"
)

// OnceResult summarizes a one-shot pull.
type OnceResult struct {
	// DocsRead counts change rows received from the remote.
	DocsRead int

	// DocsWritten counts revisions that won and were stored locally.
	DocsWritten int

	// LastSeq is the checkpoint reached.
	LastSeq string
}

// Once pulls every remote change into s and returns when the feed is
// drained. It is terminal: it either completes or fails once, without
// retrying. Remote status failures are returned wrapped, so callers can
// classify them with the remote.Is* helpers.
//
// Progress is checkpointed per page under the same key as the live Pull
// flow.
func Once(ctx context.Context, r *remote.Client, s *store.Store, opts Options) (OnceResult, error) {
	opts = opts.withDefaults()
	key := checkpointKey(Pull, r)

	var result OnceResult
	since, err := s.Checkpoint(ctx, key)
	if err != nil {
		return result, &FlowError{Direction: Pull, Op: "checkpoint", Err: err}
	}
	result.LastSeq = since

	for {
		res, err := r.Changes(ctx, remote.ChangesOptions{Since: since, Limit: opts.BatchSize})
		if err != nil {
			return result, &FlowError{Direction: Pull, Op: "changes", Err: err}
		}
		result.DocsRead += len(res.Results)

		applied, err := applyChanges(ctx, s, res.Results)
		result.DocsWritten += len(applied)
		if err != nil {
			return result, err
		}

		if res.LastSeq != since {
			if err := s.SetCheckpoint(ctx, key, res.LastSeq); err != nil {
				return result, &FlowError{Direction: Pull, Op: "checkpoint", Err: err}
			}
			since = res.LastSeq
			result.LastSeq = since
		}

		if len(res.Results) < opts.BatchSize {
			break
		}
	}

	opts.Logger.Info("replication complete",
		"remote", r.URL(),
		"docs_read", result.DocsRead,
		"docs_written", result.DocsWritten,
		"seq", result.LastSeq,
	)
	return result, nil
}
