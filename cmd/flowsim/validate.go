package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

var (
	validateJSON     bool
	validateOverlaps bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow>",
	Short: "Check a flow graph for structural problems",
	Long:  "Loads a flow file (JSON, YAML or HCL), runs every structural rule and reports errors and warnings. Exits 1 when the flow is invalid.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output the validation result as JSON")
	validateCmd.Flags().BoolVar(&validateOverlaps, "overlaps", false, "Also report nodes that overlap on the canvas")
}

// validateOutput is the JSON shape of `flowsim validate --json`.
type validateOutput struct {
	Flow     string             `json:"flow"`
	Result   validate.Result    `json:"result"`
	Overlaps []validate.Overlap `json:"overlaps,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	g, err := loadFlow(args[0])
	if err != nil {
		return err
	}

	res := validate.ValidateContext(cmd.Context(), g)
	metrics.ObserveValidation(res.IsValid)
	for _, i := range res.Issues() {
		metrics.ObserveIssue(string(i.Severity), string(i.Kind))
	}
	var overlaps []validate.Overlap
	if validateOverlaps {
		overlaps = validate.Overlaps(g)
	}
	telemetry.FromContext(cmd.Context()).Info("flow validated", "flow", g.Name(), "valid", res.IsValid,
		"errors", len(res.Errors), "warnings", len(res.Warnings))

	out := cmd.OutOrStdout()
	if validateJSON {
		data, err := json.MarshalIndent(validateOutput{Flow: g.Name(), Result: res, Overlaps: overlaps}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		renderValidation(out, g.Name(), res, overlaps)
	}

	if !res.IsValid {
		return exitError{code: 1}
	}
	return nil
}
