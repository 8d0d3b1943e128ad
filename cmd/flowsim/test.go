package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/pkg/scenario"
)

var (
	testScenario     string
	testJSON         bool
	testFailFast     bool
	testTraceDir     string
	testAllowInvalid bool
	testMaxSteps     int
	testNow          string
)

var testCmd = &cobra.Command{
	Use:   "test <flow>",
	Short: "Run scenario tests for a flow",
	Long: `Discovers scenarios in {flow-dir}/scenarios/{flow-name}/*.yaml, simulates the flow
once per scenario and checks its expectations.

Exit codes: 0 all passed, 1 a scenario failed or errored, 2 the flow could not be
loaded or failed validation.`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run only this scenario")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after the first failing scenario")
	testCmd.Flags().StringVar(&testTraceDir, "trace-dir", "", "Write one JSONL trace per scenario into this directory")
	testCmd.Flags().BoolVar(&testAllowInvalid, "allow-invalid", false, "Run scenarios even when the flow has validation errors")
	testCmd.Flags().IntVar(&testMaxSteps, "max-steps", 0, "Maximum number of steps for scenarios that do not set one")
	testCmd.Flags().StringVar(&testNow, "now", "", "Evaluate time helpers at this RFC 3339 instant")
}

func runTest(cmd *cobra.Command, args []string) error {
	flowPath := args[0]
	ev, err := newEvaluator(testNow)
	if err != nil {
		return err
	}
	if testTraceDir != "" {
		if err := os.MkdirAll(testTraceDir, 0o755); err != nil {
			return fmt.Errorf("create trace dir: %w", err)
		}
	}
	runner := &scenario.Runner{
		MaxSteps:     testMaxSteps,
		Evaluator:    ev,
		Metrics:      metrics,
		TraceDir:     testTraceDir,
		AllowInvalid: testAllowInvalid,
	}

	var output *scenario.Output
	if testScenario != "" {
		result, err := runner.RunScenario(cmd.Context(), flowPath, testScenario)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			return exitError{code: 2}
		}
		output = singleOutput(result)
	} else {
		output, err = runner.RunAll(cmd.Context(), flowPath, testFailFast)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			return exitError{code: 2}
		}
	}

	out := cmd.OutOrStdout()
	if testJSON {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		if len(output.Scenarios) == 0 {
			fmt.Fprintf(out, "no scenarios found for %s\n", flowPath)
			return nil
		}
		renderTestOutput(out, output)
	}

	if !output.OK() {
		return exitError{code: 1}
	}
	return nil
}

// singleOutput wraps one result in a summary.
func singleOutput(r *scenario.Result) *scenario.Output {
	out := &scenario.Output{Flow: r.Flow, Scenarios: []scenario.Result{*r}}
	out.Summary.Total = 1
	switch r.Status {
	case scenario.StatusPassed:
		out.Summary.Passed = 1
	case scenario.StatusFailed:
		out.Summary.Failed = 1
	case scenario.StatusSkipped:
		out.Summary.Skipped = 1
	case scenario.StatusError:
		out.Summary.Errors = 1
	}
	return out
}
