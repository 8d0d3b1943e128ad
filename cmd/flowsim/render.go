package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/scenario"
	"github.com/ormasoftchile/flowsim/pkg/trace"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	nodeStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// renderValidation prints a validation result.
func renderValidation(w io.Writer, name string, res validate.Result, overlaps []validate.Overlap) {
	fmt.Fprintln(w, titleStyle.Render("Flow: "+name))
	s := res.Summary
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %d nodes, %d edges, %d start, %d end, %d reachable",
		s.NodeCount, s.EdgeCount, s.StartCount, s.EndCount, s.ReachableCount)))

	for _, i := range res.Errors {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("✗"), i)
	}
	for _, i := range res.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warningStyle.Render("⚠"), i)
	}
	for _, o := range overlaps {
		fmt.Fprintf(w, "  %s nodes %s and %s overlap on the canvas\n", dimStyle.Render("○"), o.A, o.B)
	}

	if res.IsValid {
		fmt.Fprintf(w, "%s valid (%d warnings)\n", okStyle.Render("✓"), len(res.Warnings))
		return
	}
	fmt.Fprintf(w, "%s invalid: %d errors, %d warnings\n", errorStyle.Render("✗"), len(res.Errors), len(res.Warnings))
}

// renderTrace prints one line per step record.
func renderTrace(w io.Writer, tr trace.Trace) {
	for i, r := range tr {
		id := r.NodeID
		if id == "" {
			id = "-"
		}
		line := fmt.Sprintf("  %3d %s %s %s", i+1, statusGlyph(r.Status), nodeStyle.Render(fmt.Sprintf("%-16s", id)), r.Message)
		if r.Code != "" && r.Code != trace.CodeFlowCompleted {
			line += dimStyle.Render(" [" + string(r.Code) + "]")
		}
		fmt.Fprintln(w, line)
		if d := r.ConditionDetail; d != nil && d.SubstitutedExpression != "" && d.SubstitutedExpression != d.OriginalExpression {
			fmt.Fprintln(w, dimStyle.Render("        "+d.OriginalExpression+"  ⇒  "+d.SubstitutedExpression))
		}
		if r.Suggestion != "" {
			fmt.Fprintln(w, dimStyle.Render("        hint: "+r.Suggestion))
		}
	}
	fmt.Fprintf(w, "%s %s after %d steps\n", statusGlyph(tr.Status()), tr.Status(), len(tr))
	if vars := tr.Variables(); len(vars) > 0 {
		fmt.Fprintln(w, dimStyle.Render("  variables: "+formatVars(vars)))
	}
}

// renderTestOutput prints scenario results like `go test -v`.
func renderTestOutput(w io.Writer, out *scenario.Output) {
	fmt.Fprintln(w, titleStyle.Render("Flow: "+out.Flow))
	for _, r := range out.Scenarios {
		glyph := okStyle.Render("✓")
		switch r.Status {
		case scenario.StatusFailed, scenario.StatusError:
			glyph = errorStyle.Render("✗")
		case scenario.StatusSkipped:
			glyph = dimStyle.Render("○")
		}
		fmt.Fprintf(w, "    %s %-30s %s (%dms)\n", glyph, r.Scenario, r.Status, r.DurationMs)
		if r.Error != "" {
			fmt.Fprintf(w, "        error: %s\n", r.Error)
		}
		for _, a := range r.Assertions {
			if !a.Passed {
				fmt.Fprintf(w, "        %s %s\n", errorStyle.Render("✗"), a.Message)
			}
		}
	}
	s := out.Summary
	fmt.Fprintf(w, "\n%d scenarios: %d passed, %d failed, %d skipped, %d errors\n",
		s.Total, s.Passed, s.Failed, s.Skipped, s.Errors)
}

func statusGlyph(s trace.Status) string {
	switch s {
	case trace.StatusError:
		return errorStyle.Render("✗")
	case trace.StatusWarning:
		return warningStyle.Render("⚠")
	case trace.StatusCompleted:
		return okStyle.Render("◆")
	default:
		return okStyle.Render("✓")
	}
}

func formatVars(vars map[string]any) string {
	names := slices.Sorted(maps.Keys(vars))
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + eval.Literal(vars[k])
	}
	return strings.Join(parts, " ")
}
