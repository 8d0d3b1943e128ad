package scenario

// Status values of a scenario result.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Result captures the outcome of running one scenario.
type Result struct {
	Flow       string            `json:"flow"`
	Scenario   string            `json:"scenario"`
	Path       string            `json:"path"`
	Status     string            `json:"status"` // passed, failed, skipped, error
	DurationMs int64             `json:"duration_ms"`
	Steps      int               `json:"steps"`
	Assertions []AssertionResult `json:"assertions"`
	Error      string            `json:"error,omitempty"`
}

// AssertionResult is the outcome of a single expectation.
type AssertionResult struct {
	Type     string `json:"type"`          // expected_status, expected_end, must_reach, must_not_reach, expected_variable, expected_condition, expected_warning
	Key      string `json:"key,omitempty"` // node id, variable name or code
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
}

// Summary aggregates results across scenarios.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Output is the top-level JSON structure for flowsim test --json.
type Output struct {
	Flow      string   `json:"flow"`
	Scenarios []Result `json:"scenarios"`
	Summary   Summary  `json:"summary"`
}

// OK reports whether no scenario failed or errored.
func (o *Output) OK() bool {
	return o.Summary.Failed == 0 && o.Summary.Errors == 0
}
