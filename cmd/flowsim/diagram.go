package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/pkg/diagram"
	"github.com/ormasoftchile/flowsim/pkg/simulate"
)

var (
	diagramFormat    string
	diagramHighlight bool
	diagramConfig    string
	diagramVars      []string
	diagramNow       string
)

var diagramCmd = &cobra.Command{
	Use:   "diagram <flow>",
	Short: "Render a flow as a Mermaid flowchart or ASCII listing",
	Long: `Prints the flow graph as a diagram. With --highlight the flow is simulated first
(using --config and --var) and visited nodes are colored by their last status.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagram,
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "mermaid", "Diagram format: mermaid or ascii")
	diagramCmd.Flags().BoolVar(&diagramHighlight, "highlight", false, "Simulate the flow and mark visited nodes")
	diagramCmd.Flags().StringVar(&diagramConfig, "config", "", "Configuration file for --highlight")
	diagramCmd.Flags().StringArrayVar(&diagramVars, "var", nil, "Configuration override for --highlight (key=value, repeatable)")
	diagramCmd.Flags().StringVar(&diagramNow, "now", "", "Evaluate time helpers at this RFC 3339 instant")
}

func runDiagram(cmd *cobra.Command, args []string) error {
	g, err := loadFlow(args[0])
	if err != nil {
		return err
	}

	var opts diagram.Options
	if diagramHighlight {
		cfg, err := loadConfig(diagramConfig, diagramVars)
		if err != nil {
			return err
		}
		ev, err := newEvaluator(diagramNow)
		if err != nil {
			return err
		}
		opts.Trace = simulate.Run(cmd.Context(), g, simulate.Options{Config: cfg, Evaluator: ev, Metrics: metrics})
	}

	out, err := diagram.Generate(g, diagram.Format(diagramFormat), opts)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
