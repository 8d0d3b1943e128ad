package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/scenario"
	"github.com/ormasoftchile/flowsim/pkg/simulate"
	"github.com/ormasoftchile/flowsim/pkg/trace"
)

var (
	runConfig   string
	runVars     []string
	runSeeds    []string
	runMaxSteps int
	runTrace    string
	runJSON     bool
	runNow      string
)

var runCmd = &cobra.Command{
	Use:   "run <flow>",
	Short: "Simulate a flow against a test configuration",
	Long: `Walks the flow depth-first from its start node, evaluating conditions and
functions against the configuration, and prints one line per visited node.
Exits 1 when the trace ends in an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfig, "config", "", "Configuration file (YAML or JSON map)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Configuration override (key=value, repeatable)")
	runCmd.Flags().StringArrayVar(&runSeeds, "seed", nil, "Initial flow variable (key=value, repeatable)")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", simulate.DefaultMaxSteps, "Maximum number of steps")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Write a JSONL trace to this file")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output the trace as JSON")
	runCmd.Flags().StringVar(&runNow, "now", "", "Evaluate time helpers at this RFC 3339 instant")
}

func runRun(cmd *cobra.Command, args []string) error {
	g, err := loadFlow(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(runConfig, runVars)
	if err != nil {
		return err
	}
	seeds, err := parseVars(runSeeds)
	if err != nil {
		return err
	}
	ev, err := newEvaluator(runNow)
	if err != nil {
		return err
	}

	opts := simulate.Options{
		Config:    cfg,
		Vars:      scenario.VarsFrom(seeds),
		MaxSteps:  runMaxSteps,
		Evaluator: ev,
		Metrics:   metrics,
	}

	runID := uuid.NewString()
	logger := telemetry.WithRunID(telemetry.FromContext(cmd.Context()), runID)
	ctx := telemetry.WithLogger(cmd.Context(), logger)
	if runTrace != "" {
		tw, err := trace.NewFileWriter(runTrace, runID)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer tw.Close()
		opts.Trace = tw
	}

	tr := simulate.Run(ctx, g, opts)

	out := cmd.OutOrStdout()
	if runJSON {
		data, err := json.MarshalIndent(tr, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal trace: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintln(out, titleStyle.Render("Flow: "+g.Name()))
		renderTrace(out, tr)
	}

	if tr.Status() == trace.StatusError {
		return exitError{code: 1}
	}
	return nil
}

// newEvaluator returns an evaluator pinned to now when it is set.
func newEvaluator(now string) (*eval.Evaluator, error) {
	if now == "" {
		return eval.New(eval.Options{}), nil
	}
	t, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return nil, fmt.Errorf("invalid --now %q: %w", now, err)
	}
	return eval.New(eval.Options{
		Clock:    func() time.Time { return t },
		Location: t.Location(),
	}), nil
}
