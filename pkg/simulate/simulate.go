// Package simulate walks a flow graph and records every visited node.
//
// A run is a single synchronous, depth-first, pre-order traversal from the
// first start node. Node-level failures never abort the run: they become
// records carrying a message and, where possible, a suggestion.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/trace"
)

// DefaultMaxSteps bounds the number of node records of a run.
const DefaultMaxSteps = 1000

// Options configures a run.
type Options struct {
	// Config is the test configuration seen by conditions (system
	// variables, session keys, helper values).
	Config eval.Config
	// Vars seeds the variable environment. It is copied.
	Vars eval.Vars
	// MaxSteps bounds the node records; zero means DefaultMaxSteps. When the
	// bound is hit one step_limit warning is appended and the run stops.
	MaxSteps int
	// Evaluator evaluates conditions and function bodies; nil uses the
	// wall clock and no queue statistics.
	Evaluator *eval.Evaluator
	// Trace, when set, receives the run as JSONL events.
	Trace *trace.Writer
	// Metrics, when set, counts the run and its evaluation errors.
	Metrics *telemetry.Metrics
}

// Run simulates g. ctx only carries the logger.
func Run(ctx context.Context, g graph.Graph, opts Options) trace.Trace {
	logger := telemetry.FromContext(ctx).With("flow", g.Name())
	started := time.Now()

	w := &walker{
		g:       g,
		ev:      opts.Evaluator,
		cfg:     opts.Config,
		max:     opts.MaxSteps,
		logger:  logger,
		out:     trace.Trace{},
		sink:    opts.Trace,
		metrics: opts.Metrics,
	}
	if w.ev == nil {
		w.ev = eval.New(eval.Options{})
	}
	if w.max <= 0 {
		w.max = DefaultMaxSteps
	}
	if w.sink != nil {
		if err := w.sink.EmitRunStart(g.Name(), opts.Config); err != nil {
			logger.Warn("trace write failed", "error", err)
		}
	}

	starts := g.NodesOfKind(graph.KindStart)
	if len(starts) == 0 {
		w.record(trace.StepRecord{
			Status:    trace.StatusError,
			Code:      trace.CodeNoStart,
			Message:   "Flow has no start node",
			Variables: map[string]any{},
		})
	} else {
		w.visit(starts[0].ID, opts.Vars.Clone(), map[string]bool{})
	}

	logger.Debug("simulation finished", "steps", len(w.out), "status", w.out.Status())
	opts.Metrics.ObserveSimulation(string(w.out.Status()), len(w.out))
	if w.sink != nil {
		if err := w.sink.EmitRunComplete(w.out.Status(), len(w.out), time.Since(started)); err != nil {
			logger.Warn("trace write failed", "error", err)
		}
	}
	return w.out
}

type walker struct {
	g       graph.Graph
	ev      *eval.Evaluator
	cfg     eval.Config
	max     int
	logger  *slog.Logger
	sink    *trace.Writer
	metrics *telemetry.Metrics
	out     trace.Trace
	nodes   int
	limited bool
}

// visit handles one node. env is owned by this path; path holds the node
// ids on the current root-to-node path.
func (w *walker) visit(id string, env eval.Vars, path map[string]bool) {
	if w.exhausted(id) {
		return
	}
	n, ok := w.g.Node(id)
	if !ok {
		w.record(trace.StepRecord{
			NodeID:    id,
			Status:    trace.StatusWarning,
			Code:      trace.CodeDanglingEdge,
			Message:   fmt.Sprintf("Connection points to missing node %q; path stops", id),
			Variables: snapshot(env),
		})
		return
	}
	if path[id] {
		w.record(w.base(n, env, trace.StatusWarning, trace.CodeCycleDetected,
			fmt.Sprintf("Node %q is already on this path; not re-entering", id)))
		return
	}
	path[id] = true
	defer delete(path, id)

	w.logger.Debug("visit node", "node", id, "kind", n.Kind)

	switch n.Kind {
	case graph.KindStart:
		msg := "Flow started"
		if n.Data.Label != "" {
			msg += ": " + n.Data.Label
		}
		w.advance(w.base(n, env, trace.StatusOK, "", msg), n, env, path, w.g.EdgesFrom(id))

	case graph.KindInput:
		name := strings.TrimSpace(n.Data.VariableName)
		rec := w.base(n, env, trace.StatusWarning, "", "Input node has no variable name; nothing was set")
		if name != "" {
			env[name] = eval.ParseScalar(n.Data.Value)
			rec = w.base(n, env, trace.StatusOK, "", fmt.Sprintf("Set %s = %s", name, eval.Literal(env[name])))
		}
		w.advance(rec, n, env, path, w.g.EdgesFrom(id))

	case graph.KindCondition:
		w.condition(n, env, path)

	case graph.KindFunction:
		w.function(n, env, path)

	case graph.KindEnd:
		msg := "Flow completed"
		switch {
		case n.Data.LinkTarget != "":
			msg += ": continues in rule " + n.Data.LinkTarget
		case n.Data.Label != "":
			msg += ": " + n.Data.Label
		}
		w.record(w.base(n, env, trace.StatusCompleted, trace.CodeFlowCompleted, msg))

	default:
		w.record(w.base(n, env, trace.StatusError, "", fmt.Sprintf("Unknown node type %q; path stops", n.Kind)))
	}
}

func (w *walker) condition(n graph.Node, env eval.Vars, path map[string]bool) {
	res, err := w.ev.Evaluate(n.Data.Expression, env, w.cfg)
	detail := &trace.ConditionDetail{
		OriginalExpression:    n.Data.Expression,
		SubstitutedExpression: res.DisplayExpression,
		Result:                res.Value,
	}
	if err != nil {
		w.failed(n, err)
		rec := w.base(n, env, trace.StatusError, trace.CodeExpressionError, "Condition failed: "+errorMessage(err))
		rec.ConditionDetail = detail
		rec.Suggestion = suggestion(err)
		w.record(rec)
		return
	}

	branch := graph.BranchFor(res.Value)
	edges := w.g.EdgesFromBranch(n.ID, branch)
	if len(edges) == 0 {
		code := trace.CodeMissingFalsePath
		if res.Value {
			code = trace.CodeMissingTruePath
		}
		rec := w.base(n, env, trace.StatusWarning, code,
			fmt.Sprintf("Condition is %t but there is no %s branch; path stops", res.Value, branch))
		rec.ConditionDetail = detail
		rec.Suggestion = fmt.Sprintf("Connect the %s output of this condition to the next step.", branch)
		w.record(rec)
		return
	}

	rec := w.base(n, env, trace.StatusOK, "", fmt.Sprintf("Condition is %t", res.Value))
	rec.ConditionDetail = detail
	w.advance(rec, n, env, path, edges)
}

func (w *walker) function(n graph.Node, env eval.Vars, path map[string]bool) {
	out, err := w.ev.Compute(n.Data.Body, env)
	if err != nil {
		w.failed(n, err)
		rec := w.base(n, env, trace.StatusError, trace.CodeFunctionError, "Function failed: "+errorMessage(err))
		rec.Suggestion = suggestion(err)
		w.record(rec)
		return
	}

	names := slices.Sorted(maps.Keys(out.Record))
	for _, k := range names {
		env[k] = out.Record[k]
	}
	if out.HasScalar {
		env["result"] = out.Scalar
		names = append(names, "result")
	}

	msg := "Function produced no values"
	if len(names) > 0 {
		parts := make([]string, len(names))
		for i, k := range names {
			parts[i] = k + " = " + eval.Literal(env[k])
		}
		msg = "Function set " + strings.Join(parts, ", ")
	}
	w.advance(w.base(n, env, trace.StatusOK, "", msg), n, env, path, w.g.EdgesFrom(n.ID))
}

// advance records rec and continues along edges in definition order. Each
// branch of a fan-out gets its own copy of the environment. Without edges
// the record is downgraded to a dead_end warning and the path ends.
func (w *walker) advance(rec trace.StepRecord, n graph.Node, env eval.Vars, path map[string]bool, edges []graph.Edge) {
	if len(edges) == 0 {
		rec.Status = trace.StatusWarning
		rec.Code = trace.CodeDeadEnd
		rec.Message += fmt.Sprintf("; %s node has no outgoing connection, path ends before reaching an end node", n.Kind)
		w.record(rec)
		return
	}
	w.record(rec)
	for _, e := range edges {
		branchEnv := env
		if len(edges) > 1 {
			branchEnv = env.Clone()
		}
		w.visit(e.Target, branchEnv, path)
	}
}

// exhausted reports whether the node budget is spent, appending the single
// step_limit record the first time.
func (w *walker) exhausted(next string) bool {
	if w.limited {
		return true
	}
	if w.nodes < w.max {
		return false
	}
	w.limited = true
	w.logger.Warn("step limit reached", "max_steps", w.max, "next", next)
	w.out = append(w.out, trace.StepRecord{
		NodeID:    next,
		Status:    trace.StatusWarning,
		Code:      trace.CodeStepLimit,
		Message:   fmt.Sprintf("Stopped after %d steps", w.max),
		Variables: map[string]any{},
	})
	w.emit(w.out[len(w.out)-1])
	return true
}

func (w *walker) base(n graph.Node, env eval.Vars, status trace.Status, code trace.Code, msg string) trace.StepRecord {
	pos := n.Position
	return trace.StepRecord{
		NodeID:    n.ID,
		NodeKind:  n.Kind,
		Status:    status,
		Code:      code,
		Message:   msg,
		Variables: snapshot(env),
		Position:  &pos,
	}
}

func (w *walker) record(rec trace.StepRecord) {
	w.nodes++
	w.out = append(w.out, rec)
	w.emit(rec)
}

func (w *walker) emit(rec trace.StepRecord) {
	if w.sink == nil {
		return
	}
	if err := w.sink.EmitStep(rec); err != nil {
		w.logger.Warn("trace write failed", "error", err)
	}
}

func (w *walker) failed(n graph.Node, err error) {
	kind := "unknown"
	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		kind = string(evalErr.Kind)
	}
	w.logger.Debug("evaluation failed", "node", n.ID, "kind", kind, "error", err)
	w.metrics.ObserveExpressionError(kind)
}

func snapshot(env eval.Vars) map[string]any {
	return map[string]any(env.Clone())
}

func errorMessage(err error) string {
	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		return evalErr.Message
	}
	return err.Error()
}

func suggestion(err error) string {
	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		return evalErr.Suggestion
	}
	return ""
}
