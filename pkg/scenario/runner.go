package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/simulate"
	"github.com/ormasoftchile/flowsim/pkg/trace"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

// Runner discovers and executes the scenarios of a flow.
type Runner struct {
	// MaxSteps applies when a scenario does not set its own bound.
	MaxSteps int
	// Evaluator is shared by every run; nil uses the wall clock.
	Evaluator *eval.Evaluator
	// Metrics, when set, counts validations, runs and scenario results.
	Metrics *telemetry.Metrics
	// TraceDir, when set, receives one JSONL trace per scenario.
	TraceDir string
	// AllowInvalid runs scenarios even when the flow has validation errors.
	AllowInvalid bool
}

// Info describes a discovered scenario file.
type Info struct {
	Name string // file name without extension
	Path string
}

// FlowName derives the scenario directory name from a flow file path.
func FlowName(flowPath string) string {
	base := filepath.Base(flowPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DiscoverScenarios finds scenario files for a flow by convention:
// {flow-dir}/scenarios/{flow-name}/*.yaml
func DiscoverScenarios(flowPath string) ([]Info, error) {
	dir := filepath.Join(filepath.Dir(flowPath), "scenarios", FlowName(flowPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no scenarios directory, not an error
		}
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		out = append(out, Info{
			Name: strings.TrimSuffix(entry.Name(), ext),
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	return out, nil
}

// RunAll executes every scenario of the flow at flowPath.
func (r *Runner) RunAll(ctx context.Context, flowPath string, failFast bool) (*Output, error) {
	g, err := r.load(ctx, flowPath)
	if err != nil {
		return nil, err
	}
	scenarios, err := DiscoverScenarios(flowPath)
	if err != nil {
		return nil, err
	}

	output := &Output{Flow: g.Name(), Scenarios: []Result{}}
	for _, info := range scenarios {
		result := r.run(ctx, g, info)
		output.Scenarios = append(output.Scenarios, result)

		switch result.Status {
		case StatusPassed:
			output.Summary.Passed++
		case StatusFailed:
			output.Summary.Failed++
		case StatusSkipped:
			output.Summary.Skipped++
		case StatusError:
			output.Summary.Errors++
		}
		output.Summary.Total++

		if failFast && (result.Status == StatusFailed || result.Status == StatusError) {
			break
		}
	}
	return output, nil
}

// RunScenario executes a single named scenario of the flow at flowPath.
func (r *Runner) RunScenario(ctx context.Context, flowPath, name string) (*Result, error) {
	g, err := r.load(ctx, flowPath)
	if err != nil {
		return nil, err
	}
	scenarios, err := DiscoverScenarios(flowPath)
	if err != nil {
		return nil, err
	}
	for _, info := range scenarios {
		if info.Name == name {
			result := r.run(ctx, g, info)
			return &result, nil
		}
	}
	return nil, fmt.Errorf("scenario %q not found", name)
}

func (r *Runner) load(ctx context.Context, flowPath string) (graph.Graph, error) {
	doc, err := flowfile.Load(flowPath)
	if err != nil {
		return graph.Graph{}, err
	}
	g := doc.Graph()
	if g.Name() == "" {
		g = g.Renamed(FlowName(flowPath))
	}

	res := validate.ValidateContext(ctx, g)
	r.Metrics.ObserveValidation(res.IsValid)
	if !res.IsValid && !r.AllowInvalid {
		return graph.Graph{}, fmt.Errorf("flow validation failed: %s", res.Errors[0])
	}
	return g, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TraceFileName is the name of the JSONL trace written for a scenario of
// flow. Characters outside [A-Za-z0-9._-] become underscores, so the file
// always lands directly in the trace directory.
func TraceFileName(flow, scenario string) string {
	clean := func(s string) string {
		s = unsafeFileChars.ReplaceAllString(s, "_")
		if strings.Trim(s, ".") == "" {
			return "_"
		}
		return s
	}
	return clean(flow) + "." + clean(scenario) + ".jsonl"
}

func (r *Runner) run(ctx context.Context, g graph.Graph, info Info) Result {
	start := time.Now()
	result := Result{
		Flow:       g.Name(),
		Scenario:   info.Name,
		Path:       info.Path,
		Assertions: []AssertionResult{},
	}
	finish := func(status string) Result {
		result.Status = status
		result.DurationMs = time.Since(start).Milliseconds()
		r.Metrics.ObserveScenario(status)
		return result
	}

	s, err := LoadScenario(info.Path)
	if err != nil {
		result.Error = err.Error()
		return finish(StatusError)
	}
	if s.Skip {
		return finish(StatusSkipped)
	}

	opts := simulate.Options{
		Config:    eval.Config(s.Config),
		Vars:      VarsFrom(s.Vars),
		MaxSteps:  r.MaxSteps,
		Evaluator: r.Evaluator,
		Metrics:   r.Metrics,
	}
	if s.MaxSteps > 0 {
		opts.MaxSteps = s.MaxSteps
	}
	if r.TraceDir != "" {
		tw, err := trace.NewFileWriter(filepath.Join(r.TraceDir, TraceFileName(g.Name(), info.Name)), uuid.NewString())
		if err != nil {
			result.Error = err.Error()
			return finish(StatusError)
		}
		defer tw.Close()
		opts.Trace = tw
	}

	logger := telemetry.FromContext(ctx).With("scenario", info.Name)
	tr := simulate.Run(telemetry.WithLogger(ctx, logger), g, opts)
	result.Steps = len(tr)
	result.Assertions = Evaluate(s, tr)
	if HasFailures(result.Assertions) {
		return finish(StatusFailed)
	}
	return finish(StatusPassed)
}
