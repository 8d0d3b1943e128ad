package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/pkg/diagram"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/simulate"
	"github.com/ormasoftchile/flowsim/pkg/trace"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

var (
	reportConfig   string
	reportVars     []string
	reportSimulate bool
	reportRaw      bool
	reportWidth    int
	reportNow      string
)

var reportCmd = &cobra.Command{
	Use:   "report <flow>",
	Short: "Print a Markdown report of a flow",
	Long: `Summarizes a flow: validation result, node listing, Mermaid diagram and, with
--simulate, the execution trace. Rendered for the terminal unless --raw is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportConfig, "config", "", "Configuration file for --simulate")
	reportCmd.Flags().StringArrayVar(&reportVars, "var", nil, "Configuration override (key=value, repeatable)")
	reportCmd.Flags().BoolVar(&reportSimulate, "simulate", false, "Include an execution trace")
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Print Markdown without terminal styling")
	reportCmd.Flags().IntVar(&reportWidth, "width", 100, "Word-wrap width for rendered output")
	reportCmd.Flags().StringVar(&reportNow, "now", "", "Evaluate time helpers at this RFC 3339 instant")
}

func runReport(cmd *cobra.Command, args []string) error {
	g, err := loadFlow(args[0])
	if err != nil {
		return err
	}
	res := validate.ValidateContext(cmd.Context(), g)
	metrics.ObserveValidation(res.IsValid)

	var tr trace.Trace
	if reportSimulate {
		cfg, err := loadConfig(reportConfig, reportVars)
		if err != nil {
			return err
		}
		ev, err := newEvaluator(reportNow)
		if err != nil {
			return err
		}
		tr = simulate.Run(cmd.Context(), g, simulate.Options{Config: cfg, Evaluator: ev, Metrics: metrics})
	}

	md, err := buildReport(g, res, tr)
	if err != nil {
		return err
	}
	if reportRaw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(md, reportWidth))
	return nil
}

// buildReport assembles the Markdown report. tr may be nil.
func buildReport(g graph.Graph, res validate.Result, tr trace.Trace) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", g.Name())

	s := res.Summary
	b.WriteString("| Nodes | Edges | Start | End | Reachable | Valid |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %t |\n\n", s.NodeCount, s.EdgeCount, s.StartCount, s.EndCount, s.ReachableCount, res.IsValid)

	b.WriteString("## Validation\n\n")
	if len(res.Errors)+len(res.Warnings) == 0 {
		b.WriteString("No issues found.\n\n")
	}
	for _, i := range res.Errors {
		fmt.Fprintf(&b, "- **error** `%s`: %s\n", i.Kind, mdEscape(locate(i)))
	}
	for _, i := range res.Warnings {
		fmt.Fprintf(&b, "- *warning* `%s`: %s\n", i.Kind, mdEscape(locate(i)))
	}
	if len(res.Errors)+len(res.Warnings) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Nodes\n\n")
	b.WriteString("| ID | Type | Detail |\n")
	b.WriteString("|---|---|---|\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", n.ID, n.Kind, mdEscape(nodeDetail(n)))
	}
	b.WriteString("\n")

	chart, err := diagram.Generate(g, diagram.FormatMermaid, diagram.Options{Trace: tr})
	if err != nil {
		return "", err
	}
	b.WriteString("## Diagram\n\n```mermaid\n")
	b.WriteString(chart)
	b.WriteString("```\n")

	if tr != nil {
		fmt.Fprintf(&b, "\n## Trace\n\nStatus: **%s** after %d steps.\n\n", tr.Status(), len(tr))
		b.WriteString("| # | Node | Status | Message |\n")
		b.WriteString("|---|---|---|---|\n")
		for i, r := range tr {
			fmt.Fprintf(&b, "| %d | `%s` | %s | %s |\n", i+1, r.NodeID, r.Status, mdEscape(r.Message))
		}
	}
	return b.String(), nil
}

func locate(i validate.Issue) string {
	switch {
	case i.NodeID != "":
		return i.Message + " (node `" + i.NodeID + "`)"
	case i.EdgeID != "":
		return i.Message + " (edge `" + i.EdgeID + "`)"
	}
	return i.Message
}

func nodeDetail(n graph.Node) string {
	switch n.Kind {
	case graph.KindInput:
		return n.Data.VariableName + " = " + n.Data.Value
	case graph.KindCondition:
		return n.Data.Expression
	case graph.KindFunction:
		return strings.Join(strings.Fields(n.Data.Body), " ")
	case graph.KindEnd:
		if n.Data.LinkTarget != "" {
			return graph.LinkLabel(n.Data.LinkTarget)
		}
	}
	return n.Data.Label
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderMarkdown styles md for the terminal and falls back to the raw
// input when glamour fails.
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
