// Package diagram renders flow graphs as Mermaid flowcharts or ASCII box
// listings, optionally marking the nodes a simulation visited.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/trace"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Options tweaks rendering.
type Options struct {
	// Trace, when set, highlights visited nodes by their last status.
	Trace trace.Trace
}

// Generate produces a diagram of g.
func Generate(g graph.Graph, format Format, opts Options) (string, error) {
	switch format {
	case FormatMermaid:
		return generateMermaid(g, opts), nil
	case FormatASCII:
		return generateASCII(g, opts), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

func generateMermaid(g graph.Graph, opts Options) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, n := range order(g) {
		b.WriteString("    " + nodeDefinition(n) + "\n")
	}
	for _, e := range g.Edges() {
		if !g.HasNode(e.Source) || !g.HasNode(e.Target) {
			fmt.Fprintf(&b, "    %%%% dangling edge %s: %s -> %s\n", e.ID, e.Source, e.Target)
			continue
		}
		if e.Branch != graph.BranchNone {
			fmt.Fprintf(&b, "    %s -->|%q| %s\n", safeID(e.Source), string(e.Branch), safeID(e.Target))
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s\n", safeID(e.Source), safeID(e.Target))
	}

	statuses := lastStatus(opts.Trace)
	for _, n := range order(g) {
		if st, ok := statuses[n.ID]; ok {
			fmt.Fprintf(&b, "    style %s %s\n", safeID(n.ID), statusStyle(st))
		}
	}
	return b.String()
}

func nodeDefinition(n graph.Node) string {
	id := safeID(n.ID)
	label := escMermaid(truncate(n.DisplayLabel(), 40))
	switch n.Kind {
	case graph.KindStart:
		return fmt.Sprintf(`%s(["%s %s"])`, id, kindIcon(n.Kind), label)
	case graph.KindInput:
		return fmt.Sprintf(`%s[/"%s %s"/]`, id, kindIcon(n.Kind), label)
	case graph.KindCondition:
		return fmt.Sprintf(`%s{"%s"}`, id, label)
	case graph.KindFunction:
		return fmt.Sprintf(`%s[["%s %s"]]`, id, kindIcon(n.Kind), label)
	case graph.KindEnd:
		return fmt.Sprintf(`%s(["%s %s"])`, id, kindIcon(n.Kind), label)
	default:
		return fmt.Sprintf(`%s["%s"]`, id, label)
	}
}

func statusStyle(st trace.Status) string {
	switch st {
	case trace.StatusError:
		return "fill:#c33,stroke:#a11,color:#fff"
	case trace.StatusWarning:
		return "fill:#e60,stroke:#c40,color:#fff"
	default:
		return "fill:#0d6,stroke:#0a5,color:#fff"
	}
}

// --- ASCII ---

const (
	indent   = 4
	minWidth = 24
)

func generateASCII(g graph.Graph, opts Options) string {
	var b strings.Builder

	name := g.Name()
	if name == "" {
		name = "Flow"
	}
	nodes := order(g)
	if len(nodes) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	statuses := lastStatus(opts.Trace)
	width := boxWidth(nodes, name, statuses)
	pad := strings.Repeat(" ", indent)

	b.WriteString(pad + "╔" + strings.Repeat("═", width) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, width) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", width) + "╝\n")

	for _, n := range nodes {
		b.WriteString("\n")
		b.WriteString(pad + "┌" + strings.Repeat("─", width) + "┐\n")
		for _, line := range boxLines(n, statuses) {
			b.WriteString(pad + "│" + line + strings.Repeat(" ", width-runewidth.StringWidth(line)) + "│\n")
		}
		b.WriteString(pad + "└" + strings.Repeat("─", width) + "┘\n")

		edges := g.EdgesFrom(n.ID)
		for i, e := range edges {
			joint := "├─"
			if i == len(edges)-1 {
				joint = "└─"
			}
			label := e.Target
			if !g.HasNode(e.Target) {
				label += " (missing)"
			}
			if e.Branch != graph.BranchNone {
				label = string(e.Branch) + " → " + label
			} else {
				label = "→ " + label
			}
			b.WriteString(pad + "  " + joint + " " + label + "\n")
		}
	}
	return b.String()
}

func boxLines(n graph.Node, statuses map[string]trace.Status) []string {
	lines := []string{fmt.Sprintf(" %s %s ", kindIcon(n.Kind), n.DisplayLabel())}
	if n.DisplayLabel() != n.ID {
		lines = append(lines, "   id: "+n.ID+" ")
	}
	if st, ok := statuses[n.ID]; ok {
		lines = append(lines, fmt.Sprintf("   %s %s ", statusIcon(st), st))
	}
	return lines
}

// boxWidth returns the widest interior width needed across all nodes and
// the header name.
func boxWidth(nodes []graph.Node, name string, statuses map[string]trace.Status) int {
	w := minWidth
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, n := range nodes {
		for _, line := range boxLines(n, statuses) {
			if lw := runewidth.StringWidth(line); lw > w {
				w = lw
			}
		}
	}
	return w
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	left := (width - sw) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-sw-left)
}

func kindIcon(k graph.Kind) string {
	switch k {
	case graph.KindStart:
		return "▶"
	case graph.KindInput:
		return "✎"
	case graph.KindCondition:
		return "◇"
	case graph.KindFunction:
		return "ƒ"
	case graph.KindEnd:
		return "■"
	default:
		return "?"
	}
}

func statusIcon(st trace.Status) string {
	switch st {
	case trace.StatusError:
		return "✖"
	case trace.StatusWarning:
		return "⚠"
	default:
		return "✔"
	}
}

// --- graph helpers ---

// order lists nodes breadth-first from the start nodes, following edges in
// definition order, then appends unreached nodes in authoring order.
func order(g graph.Graph) []graph.Node {
	seen := map[string]bool{}
	var out []graph.Node
	var queue []string
	for _, s := range g.NodesOfKind(graph.KindStart) {
		if !seen[s.ID] {
			seen[s.ID] = true
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, _ := g.Node(id)
		out = append(out, n)
		for _, e := range g.EdgesFrom(id) {
			if !seen[e.Target] && g.HasNode(e.Target) {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	for _, n := range g.Nodes() {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

// lastStatus maps node ids to the status of their last trace record.
func lastStatus(t trace.Trace) map[string]trace.Status {
	out := map[string]trace.Status{}
	for _, r := range t {
		if r.NodeID != "" {
			out[r.NodeID] = r.Status
		}
	}
	return out
}

// --- string helpers ---

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}
