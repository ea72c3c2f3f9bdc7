package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// DefaultGameID is used when a scenario names no game.
const DefaultGameID = "game_harness"

// DefaultStepTimeout bounds every waiting step.
const DefaultStepTimeout = 5 * time.Second

// Scenario defines a sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// GameID is the game database. Defaults to DefaultGameID.
	GameID string `yaml:"game_id,omitempty"`

	// Template is the root payload written on first load.
	// Defaults to {"title": "New Game"}.
	Template map[string]any `yaml:"template,omitempty"`

	// Remote holds documents present on the server before the flow.
	// Each needs an _id.
	Remote []map[string]any `yaml:"remote,omitempty"`

	// Flow is the ordered list of steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and documents.
	// Supported types: trace_contains, trace_order, trace_count,
	// remote_doc, local_doc.
	Assertions []Assertion `yaml:"assertions"`

	// Timeout bounds each waiting step. Defaults to DefaultStepTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Step is one action of the flow.
type Step struct {
	// Op selects the action; see the Op* constants.
	Op string `yaml:"op"`

	// ID is the document id for put, remove, remote_put, remote_remove,
	// wait_remote and wait_local.
	ID string `yaml:"id,omitempty"`

	// Doc is the payload for put and remote_put.
	Doc map[string]any `yaml:"doc,omitempty"`

	// Signal is the signal name awaited by expect_signal.
	Signal string `yaml:"signal,omitempty"`

	// Expect is a subset match: the signal data for expect_signal, the
	// document for wait_remote and wait_local.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Status is the HTTP status injected by remote_fail.
	Status int `yaml:"status,omitempty"`
}

// Step operations.
const (
	OpLoad          = "load"
	OpExpectSignal  = "expect_signal"
	OpPut           = "put"
	OpRemove        = "remove"
	OpRemotePut     = "remote_put"
	OpRemoteRemove  = "remote_remove"
	OpRemoteFail    = "remote_fail"
	OpRemoteRecover = "remote_recover"
	OpPause         = "pause"
	OpResume        = "resume"
	OpWaitRemote    = "wait_remote"
	OpWaitLocal     = "wait_local"
	OpTeardown      = "teardown"
)

// Assertion validates the trace or a final document.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event named Name with Data as a subset
	// - "trace_order": events named Names appear in order
	// - "trace_count": Name appears exactly Count times
	// - "remote_doc": server document ID matches Expect, or is Absent
	// - "local_doc": session document ID matches Expect, or is Absent
	Type string `yaml:"type"`

	// Name is the step op or signal name (trace_contains, trace_count).
	Name string `yaml:"name,omitempty"`

	// Data is a subset of the event data (trace_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Names is the expected order (trace_order).
	Names []string `yaml:"names,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// ID is the document id (remote_doc, local_doc).
	ID string `yaml:"id,omitempty"`

	// Expect is a subset of the document (remote_doc, local_doc).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent requires the document not to exist (remote_doc, local_doc).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRemoteDoc     = "remote_doc"
	AssertLocalDoc      = "local_doc"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	scenario.applyDefaults()
	return &scenario, nil
}

func (s *Scenario) applyDefaults() {
	if s.GameID == "" {
		s.GameID = DefaultGameID
	}
	if s.Template == nil {
		s.Template = map[string]any{"title": "New Game"}
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultStepTimeout
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, d := range s.Remote {
		if id, _ := d[doc.FieldID].(string); id == "" {
			return fmt.Errorf("remote[%d]: _id is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single flow step based on its op.
func validateStep(index int, s *Step) error {
	switch s.Op {
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	case OpLoad, OpPause, OpResume, OpRemoteRecover, OpTeardown:
	case OpExpectSignal:
		if s.Signal == "" {
			return fmt.Errorf("flow[%d]: signal is required for expect_signal", index)
		}
	case OpPut, OpRemotePut:
		if s.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, s.Op)
		}
		if s.Doc == nil {
			return fmt.Errorf("flow[%d]: doc is required for %s (use empty map for no fields)", index, s.Op)
		}
	case OpRemove, OpRemoteRemove:
		if s.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, s.Op)
		}
	case OpWaitRemote, OpWaitLocal:
		if s.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, s.Op)
		}
		if len(s.Expect) == 0 {
			return fmt.Errorf("flow[%d]: expect is required for %s", index, s.Op)
		}
	case OpRemoteFail:
		if s.Status < 400 || s.Status > 599 {
			return fmt.Errorf("flow[%d]: status must be an HTTP error status for remote_fail", index)
		}
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRemoteDoc, AssertLocalDoc:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
