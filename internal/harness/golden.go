package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// goldenDir holds the golden traces of the package's own scenarios.
const goldenDir = "testdata/golden"

// TraceSnapshot is the golden form of one scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	GameID       string       `json:"game_id"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot renders the canonical JSON golden form of a result:
// sorted keys, no insignificant whitespace, no trailing newline. Two runs
// of the same scenario produce identical bytes.
func MarshalSnapshot(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		GameID:       scenario.GameID,
		Trace:        result.Trace,
	}
	// doc.MarshalCanonical only accepts JSON primitives, maps and slices.
	return doc.MarshalCanonical(normalize(snapshot))
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<scenario name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
//
// A mismatch fails t through goldie; the returned error only reports
// harness failures.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
