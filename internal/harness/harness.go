package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/gateway"
	"github.com/ericnething/roll2d6-client/internal/remote"
	"github.com/ericnething/roll2d6-client/internal/replicate"
	"github.com/ericnething/roll2d6-client/internal/session"
	"github.com/ericnething/roll2d6-client/internal/testutil"
)

// pollInterval paces wait_remote and wait_local.
const pollInterval = 10 * time.Millisecond

// syncOptions keep replication fast enough for scenarios.
var syncOptions = replicate.Options{
	BatchSize:       50,
	LongpollTimeout: 200 * time.Millisecond,
	PollInterval:    20 * time.Millisecond,
	InitialBackoff:  10 * time.Millisecond,
	MaxBackoff:      50 * time.Millisecond,
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	fake     *testutil.CouchFake
	other    *remote.Client // "another player" writing to the server
	session  *session.Session
	gateway  *gateway.Gateway
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory server and an in-memory
// local collection. The returned error reports harness failures; step and
// assertion failures are recorded in the Result.
//
// Execution flow:
// 1. Start the fake server and seed the remote documents
// 2. Execute flow steps in order, stopping at the first failed step
// 3. Evaluate assertions against the trace and both collections
// 4. Close the session
func Run(scenario *Scenario) (*Result, error) {
	scenario.applyDefaults()

	fake := testutil.NewCouchFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	defer fake.Shutdown()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs

	fake.CreateDB(scenario.GameID)
	for i, d := range scenario.Remote {
		body, err := doc.FromValue(d)
		if err != nil {
			return nil, fmt.Errorf("remote[%d]: %w", i, err)
		}
		if _, err := fake.Put(scenario.GameID, body); err != nil {
			return nil, fmt.Errorf("remote[%d]: %w", i, err)
		}
	}

	template, err := doc.FromValue(scenario.Template)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	other, err := remote.New(remote.Config{URL: srv.URL, Database: scenario.GameID})
	if err != nil {
		return nil, err
	}
	defer other.Close()

	opts := syncOptions
	opts.Logger = logger
	sess := session.New(session.Options{
		GameID:      scenario.GameID,
		RemoteURL:   srv.URL,
		DefaultGame: template,
		Sync:        opts,
		Logger:      logger,
	})
	defer sess.Close()

	h := &Harness{
		scenario: scenario,
		fake:     fake,
		other:    other,
		session:  sess,
		gateway:  gateway.New(logger),
		logger:   logger,
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Flow {
		if err := h.execute(ctx, step, result); err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Op, err))
			break
		}
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Fake:    fake,
		Session: sess,
		GameID:  scenario.GameID,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute runs one step and records it.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, h.scenario.Timeout)
	defer cancel()

	switch step.Op {
	case OpLoad:
		outcome := "ok"
		if err := h.session.Load(ctx); err != nil {
			outcome = errKind(err)
		}
		result.AddStepTrace(step.Op, map[string]any{"outcome": outcome})

	case OpExpectSignal:
		return h.expectSignal(ctx, step, result)

	case OpPut:
		_, err := h.session.Put(ctx, step.ID, step.Doc)
		result.AddStepTrace(step.Op, stepData(step.ID, err))

	case OpRemove:
		_, err := h.session.Remove(ctx, step.ID)
		result.AddStepTrace(step.Op, stepData(step.ID, err))

	case OpRemotePut:
		_, err := h.gateway.Write(ctx, h.other, step.ID, step.Doc)
		result.AddStepTrace(step.Op, stepData(step.ID, err))

	case OpRemoteRemove:
		_, err := h.gateway.Remove(ctx, h.other, step.ID)
		result.AddStepTrace(step.Op, stepData(step.ID, err))

	case OpRemoteFail:
		h.fake.FailWith(step.Status)
		result.AddStepTrace(step.Op, map[string]any{"status": step.Status})

	case OpRemoteRecover:
		h.fake.FailWith(0)
		result.AddStepTrace(step.Op, nil)

	case OpPause:
		h.session.PauseSync()
		result.AddStepTrace(step.Op, nil)

	case OpResume:
		h.session.ResumeSync()
		result.AddStepTrace(step.Op, nil)

	case OpWaitRemote:
		if err := poll(ctx, func() (doc.Document, error) {
			return h.fake.Doc(h.scenario.GameID, step.ID), nil
		}, step.Expect); err != nil {
			return err
		}
		result.AddStepTrace(step.Op, map[string]any{"id": step.ID})

	case OpWaitLocal:
		if err := poll(ctx, func() (doc.Document, error) {
			return h.session.Get(ctx, step.ID)
		}, step.Expect); err != nil {
			return err
		}
		result.AddStepTrace(step.Op, map[string]any{"id": step.ID})

	case OpTeardown:
		err := h.session.Teardown()
		result.AddStepTrace(step.Op, stepData("", err))

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// expectSignal consumes signals until one named step.Signal whose data
// matches step.Expect arrives. Other signals are dropped.
func (h *Harness) expectSignal(ctx context.Context, step Step, result *Result) error {
	var seen []string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s (saw %v)", step.Signal, seen)
		case sig, ok := <-h.session.Signals():
			if !ok {
				return fmt.Errorf("signals closed while waiting for %s (saw %v)", step.Signal, seen)
			}
			name := session.SignalName(sig)
			seen = append(seen, name)
			if name != step.Signal {
				continue
			}
			data, err := signalData(sig)
			if err != nil {
				return err
			}
			if len(step.Expect) > 0 && !matchSubset(data, step.Expect) {
				continue
			}
			result.AddSignalTrace(name, data)
			return nil
		}
	}
}

// poll re-reads a document until it matches expect.
func poll(ctx context.Context, read func() (doc.Document, error), expect map[string]any) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last any
	for {
		d, err := read()
		if err == nil && d != nil {
			last = normalize(d.Body())
			if matchSubset(last, expect) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out: want %v, last %v", expect, last)
		case <-ticker.C:
		}
	}
}

// signalData summarizes sig without revision tokens so traces are stable.
func signalData(sig session.Signal) (any, error) {
	var data map[string]any
	switch s := sig.(type) {
	case session.GameLoaded:
		data = map[string]any{
			"id":     s.ID,
			"game":   s.Game.Body(),
			"sheets": sheetIDs(s.Sheets),
		}
	case session.GameLoadFailed:
		data = map[string]any{"id": s.ID}
	case session.AuthFailed:
		data = map[string]any{"id": s.ID}
	case session.ChangesReceived:
		data = map[string]any{"sheets": sheetIDs(s.Sheets)}
		if s.Game != nil {
			data["game"] = s.Game.Body()
		}
		if len(s.Deleted) > 0 {
			data["deleted"] = s.Deleted
		}
	case session.SyncStateChanged:
		data = map[string]any{
			"direction": s.Direction.String(),
			"state":     s.State.String(),
		}
	case session.PlayerListUpdated:
		return decodeRaw(s.Data)
	case session.PlayerPresenceUpdated:
		return decodeRaw(s.Data)
	case session.ChatMessageReceived:
		return decodeRaw(s.Data)
	default:
		return nil, fmt.Errorf("unexpected signal %T", sig)
	}
	return normalize(data), nil
}

func sheetIDs(sheets []doc.Document) []string {
	ids := make([]string, len(sheets))
	for i, d := range sheets {
		ids[i] = d.ID()
	}
	return ids
}

func decodeRaw(raw json.RawMessage) (any, error) {
	d, err := doc.Parse(raw)
	if err != nil {
		return nil, err
	}
	return normalize(d), nil
}

// normalize converts v to the generic JSON shape (map[string]any, []any,
// json.Number) used for comparisons and golden traces.
func normalize(v any) any {
	d, err := doc.FromValue(map[string]any{"v": v})
	if err != nil {
		return v
	}
	return d["v"]
}

func stepData(id string, err error) map[string]any {
	data := map[string]any{}
	if id != "" {
		data["id"] = id
	}
	if err != nil {
		data["error"] = errKind(err)
	}
	return data
}

// errKind names an error for the trace.
func errKind(err error) string {
	switch {
	case errors.Is(err, session.ErrAuthFailed):
		return "auth-failed"
	case errors.Is(err, session.ErrLoadFailed):
		return "load-failed"
	case errors.Is(err, session.ErrNotLoaded):
		return "not-loaded"
	case errors.Is(err, session.ErrClosed):
		return "closed"
	case errors.Is(err, doc.ErrNotFound):
		return "not-found"
	case errors.Is(err, doc.ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failed"
	}
}
