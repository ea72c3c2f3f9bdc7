package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ericnething/roll2d6-client/internal/doc"
	"github.com/ericnething/roll2d6-client/internal/session"
	"github.com/ericnething/roll2d6-client/internal/testutil"
)

// AssertionContext provides the collections for document assertions.
type AssertionContext struct {
	Ctx     context.Context
	Fake    *testutil.CouchFake
	Session *session.Session
	GameID  string
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", i+1, event.Type, event.Name, event.Data)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertRemoteDoc:
			err = assertDocument(a, func() (doc.Document, error) {
				d := actx.Fake.Doc(actx.GameID, a.ID)
				if d == nil {
					return nil, doc.ErrNotFound
				}
				return d, nil
			})
		case AssertLocalDoc:
			err = assertDocument(a, func() (doc.Document, error) {
				return actx.Session.Get(actx.Ctx, a.ID)
			})
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains checks if the trace contains an event named
// assertion.Name whose data matches assertion.Data (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Name == assertion.Name && matchSubset(event.Data, assertion.Data) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with data %v", assertion.Name, assertion.Data),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Names) && event.Name == assertion.Names[next] {
			next++
		}
	}
	if next == len(assertion.Names) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", assertion.Names),
		Actual:   fmt.Sprintf("missing %s after %v", assertion.Names[next], assertion.Names[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Name == assertion.Name {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Name),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertDocument checks a final document with subset semantics.
func assertDocument(assertion Assertion, read func() (doc.Document, error)) error {
	d, err := read()
	switch {
	case errors.Is(err, doc.ErrNotFound):
		if assertion.Absent {
			return nil
		}
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("document %s = %v", assertion.ID, assertion.Expect),
			Actual:   "document not found",
		}
	case err != nil:
		return fmt.Errorf("read %s: %w", assertion.ID, err)
	case assertion.Absent:
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("document %s absent", assertion.ID),
			Actual:   fmt.Sprintf("document %s present at %s", assertion.ID, d.Rev()),
		}
	}

	actual := normalize(d.Body())
	if !matchSubset(actual, assertion.Expect) {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("document %s containing %v", assertion.ID, assertion.Expect),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// matchSubset reports whether every key of expected is present in actual
// with an equal value. Nested objects match recursively with the same
// subset semantics; arrays and scalars must be equal. Values are compared
// in their JSON form, so YAML integers match JSON numbers.
func matchSubset(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	obj, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	want, ok := normalize(expected).(map[string]any)
	if !ok {
		return false
	}
	return subset(obj, want)
}

func subset(actual, expected map[string]any) bool {
	for k := range expected {
		got, ok := actual[k]
		if !ok {
			return false
		}
		if wantObj, isObj := expected[k].(map[string]any); isObj {
			gotObj, ok := got.(map[string]any)
			if !ok || !subset(gotObj, wantObj) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, expected[k]) {
			return false
		}
	}
	return true
}
