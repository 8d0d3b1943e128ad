// Package trace holds the execution trace produced by the simulator and an
// append-only JSONL writer for persisting it.
package trace

import (
	"maps"

	"github.com/ormasoftchile/flowsim/pkg/graph"
)

// Status is the outcome of a single step.
type Status string

const (
	StatusOK        Status = "ok"
	StatusWarning   Status = "warning"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

// Code qualifies a warning, error or completion record.
type Code string

const (
	CodeNoStart          Code = "no_start"
	CodeMissingTruePath  Code = "missing_true_path"
	CodeMissingFalsePath Code = "missing_false_path"
	CodeExpressionError  Code = "expression_error"
	CodeFunctionError    Code = "function_error"
	CodeCycleDetected    Code = "cycle_detected"
	CodeStepLimit        Code = "step_limit"
	CodeDanglingEdge     Code = "dangling_edge"
	CodeDeadEnd          Code = "dead_end"
	CodeFlowCompleted    Code = "flow_completed"
)

// ConditionDetail records how a condition node was decided.
type ConditionDetail struct {
	OriginalExpression    string `json:"originalExpression"    yaml:"originalExpression"`
	SubstitutedExpression string `json:"substitutedExpression" yaml:"substitutedExpression"`
	Result                bool   `json:"result"                yaml:"result"`
}

// StepRecord is one entry of an execution trace. Variables is a snapshot of
// the environment after the step.
type StepRecord struct {
	NodeID          string           `json:"nodeId"                    yaml:"nodeId"`
	NodeKind        graph.Kind       `json:"nodeKind,omitempty"        yaml:"nodeKind,omitempty"`
	Status          Status           `json:"status"                    yaml:"status"`
	Code            Code             `json:"code,omitempty"            yaml:"code,omitempty"`
	Message         string           `json:"message"                   yaml:"message"`
	Variables       map[string]any   `json:"variables"                 yaml:"variables"`
	Position        *graph.Position  `json:"position,omitempty"        yaml:"position,omitempty"`
	ConditionDetail *ConditionDetail `json:"conditionDetail,omitempty" yaml:"conditionDetail,omitempty"`
	Suggestion      string           `json:"suggestion,omitempty"      yaml:"suggestion,omitempty"`
}

// Trace is the ordered list of records produced by one run.
type Trace []StepRecord

// Visited returns the node ids in visiting order. Records without a node
// (no_start) are skipped.
func (t Trace) Visited() []string {
	out := make([]string, 0, len(t))
	for _, r := range t {
		if r.NodeID != "" {
			out = append(out, r.NodeID)
		}
	}
	return out
}

// VisitedSet returns the set of node ids that appear in the trace.
func (t Trace) VisitedSet() map[string]bool {
	out := make(map[string]bool, len(t))
	for _, r := range t {
		if r.NodeID != "" {
			out[r.NodeID] = true
		}
	}
	return out
}

// Status summarizes the run: error if any step errored, warning if any
// step warned, completed if an end node was reached, ok otherwise.
func (t Trace) Status() Status {
	var warned, completed bool
	for _, r := range t {
		switch r.Status {
		case StatusError:
			return StatusError
		case StatusWarning:
			warned = true
		case StatusCompleted:
			completed = true
		}
	}
	switch {
	case warned:
		return StatusWarning
	case completed:
		return StatusCompleted
	}
	return StatusOK
}

// Completions returns the records of the end nodes that were reached.
func (t Trace) Completions() []StepRecord {
	var out []StepRecord
	for _, r := range t {
		if r.Status == StatusCompleted {
			out = append(out, r)
		}
	}
	return out
}

// Conditions maps each evaluated condition node to its last result.
func (t Trace) Conditions() map[string]bool {
	out := map[string]bool{}
	for _, r := range t {
		if r.ConditionDetail != nil {
			out[r.NodeID] = r.ConditionDetail.Result
		}
	}
	return out
}

// Variables merges the variable snapshots of every record in order, so a
// later record on any path overrides an earlier one.
func (t Trace) Variables() map[string]any {
	out := map[string]any{}
	for _, r := range t {
		maps.Copy(out, r.Variables)
	}
	return out
}

// WithCode returns the records carrying code c.
func (t Trace) WithCode(c Code) []StepRecord {
	var out []StepRecord
	for _, r := range t {
		if r.Code == c {
			out = append(out, r)
		}
	}
	return out
}
