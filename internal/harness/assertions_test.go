package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventStep, Name: OpLoad, Data: map[string]any{"outcome": "ok"}, Seq: 1},
		{Type: EventSignal, Name: "game-loaded", Data: normalize(map[string]any{
			"id":     "game_1",
			"game":   map[string]any{"_id": "game", "title": "Fate", "refresh": 3},
			"sheets": []string{"a"},
		}), Seq: 2},
		{Type: EventStep, Name: OpPut, Data: map[string]any{"id": "game"}, Seq: 3},
		{Type: EventSignal, Name: "changes-received", Data: normalize(map[string]any{"sheets": []string{"a"}}), Seq: 4},
		{Type: EventSignal, Name: "changes-received", Data: normalize(map[string]any{"sheets": []string{}, "deleted": []string{"a"}}), Seq: 5},
	}
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"by name", Assertion{Name: "game-loaded"}, false},
		{"nested subset", Assertion{Name: "game-loaded", Data: map[string]any{"game": map[string]any{"title": "Fate"}}}, false},
		{"yaml int matches json number", Assertion{Name: "game-loaded", Data: map[string]any{"game": map[string]any{"refresh": 3}}}, false},
		{"array equality", Assertion{Name: "changes-received", Data: map[string]any{"deleted": []any{"a"}}}, false},
		{"wrong value", Assertion{Name: "game-loaded", Data: map[string]any{"id": "game_2"}}, true},
		{"missing key", Assertion{Name: OpPut, Data: map[string]any{"error": "conflict"}}, true},
		{"unknown name", Assertion{Name: "auth-failed"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertTraceContains
			err := assertTraceContains(sampleTrace(), tt.assertion)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Equal(t, AssertTraceContains, assertErr.Type)
			assert.Equal(t, "not found in trace", assertErr.Actual)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Names: []string{OpLoad, OpPut, "changes-received"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Names: []string{"changes-received", "changes-received"}}))

	err := assertTraceOrder(trace, Assertion{Names: []string{OpPut, "game-loaded"}})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Actual, "missing game-loaded after [put]")

	err = assertTraceOrder(trace, Assertion{Names: []string{"changes-received", "changes-received", "changes-received"}})
	assert.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Name: "changes-received", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Name: "auth-failed", Count: 0}))

	err := assertTraceCount(trace, Assertion{Name: OpLoad, Count: 2})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "2 occurrences of load", assertErr.Expected)
	assert.Equal(t, "1 occurrences", assertErr.Actual)
}

func TestAssertDocument(t *testing.T) {
	stored := doc.Document{doc.FieldID: "game", doc.FieldRev: "2-abc", "title": "Fate", "aspects": []any{"Rain"}}
	found := func() (doc.Document, error) { return stored, nil }
	missing := func() (doc.Document, error) { return nil, doc.ErrNotFound }
	broken := func() (doc.Document, error) { return nil, errors.New("disk on fire") }

	assert.NoError(t, assertDocument(Assertion{Type: AssertLocalDoc, ID: "game", Expect: map[string]any{"title": "Fate"}}, found))
	assert.NoError(t, assertDocument(Assertion{Type: AssertLocalDoc, ID: "game", Expect: map[string]any{"aspects": []any{"Rain"}}}, found))
	assert.NoError(t, assertDocument(Assertion{Type: AssertRemoteDoc, ID: "game", Absent: true}, missing))

	err := assertDocument(Assertion{Type: AssertLocalDoc, ID: "game", Expect: map[string]any{"title": "Other"}}, found)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertLocalDoc, assertErr.Type)

	err = assertDocument(Assertion{Type: AssertRemoteDoc, ID: "game", Absent: true}, found)
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Actual, "present at 2-abc")

	err = assertDocument(Assertion{Type: AssertRemoteDoc, ID: "game", Expect: map[string]any{"title": "Fate"}}, missing)
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "document not found", assertErr.Actual)

	err = assertDocument(Assertion{Type: AssertLocalDoc, ID: "game", Expect: map[string]any{"title": "Fate"}}, broken)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Name: OpLoad, Count: 1},
		{Type: AssertTraceCount, Name: OpLoad, Count: 3},
		{Type: "bogus"},
	}, &AssertionContext{Ctx: context.Background()})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[1]")
	assert.Contains(t, errs[1], `assertions[2]: unknown assertion type "bogus"`)
}

func TestMatchSubset(t *testing.T) {
	actual := normalize(map[string]any{
		"title": "Fate",
		"stats": map[string]any{"refresh": json.Number("3"), "fp": 2},
		"tags":  []any{"a", "b"},
	})

	assert.True(t, matchSubset(actual, nil))
	assert.True(t, matchSubset(actual, map[string]any{"stats": map[string]any{"fp": 2}}))
	assert.True(t, matchSubset(actual, map[string]any{"tags": []string{"a", "b"}}))
	assert.False(t, matchSubset(actual, map[string]any{"tags": []string{"a"}}), "arrays match exactly")
	assert.False(t, matchSubset(actual, map[string]any{"stats": "flat"}))
	assert.False(t, matchSubset("not an object", map[string]any{"a": 1}))
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of load",
		Actual:   "0 occurrences",
		Trace:    sampleTrace()[:1],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 1 occurrences of load")
	assert.Contains(t, msg, "[1] step load")
}
