package harness

// Trace event types.
const (
	EventStep   = "step"
	EventSignal = "signal"
)

// TraceEvent records one executed step or one awaited signal.
type TraceEvent struct {
	Type string `json:"type"` // "step" or "signal"
	Name string `json:"name"` // step op or signal name
	Data any    `json:"data,omitempty"`
	Seq  int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if no step or assertion failed.
	Pass bool `json:"pass"`

	// Trace contains steps and awaited signals in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace appends an executed step. Data is stored in its JSON form.
func (r *Result) AddStepTrace(op string, data any) {
	r.addTrace(EventStep, op, data)
}

// AddSignalTrace appends an awaited signal. Data is stored in its JSON form.
func (r *Result) AddSignalTrace(name string, data any) {
	r.addTrace(EventSignal, name, data)
}

// addTrace stamps events with their 1-based position so reruns of the
// same scenario produce identical traces.
func (r *Result) addTrace(typ, name string, data any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: typ,
		Name: name,
		Data: normalize(data),
		Seq:  int64(len(r.Trace) + 1),
	})
}
