package diagram

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/trace"
)

func ageGraph() graph.Graph {
	return graph.New([]graph.Node{
		{ID: "start", Kind: graph.KindStart},
		{ID: "age", Kind: graph.KindInput, Data: graph.Data{VariableName: "age", Value: "25"}},
		{ID: "check", Kind: graph.KindCondition, Data: graph.Data{Expression: "age >= 18"}},
		{ID: "adult", Kind: graph.KindEnd, Data: graph.Data{Label: "Adult"}},
		{ID: "minor-end", Kind: graph.KindEnd, Data: graph.Data{LinkTarget: "MinorRule"}},
	}, []graph.Edge{
		{ID: "e1", Source: "start", Target: "age"},
		{ID: "e2", Source: "age", Target: "check"},
		{ID: "e3", Source: "check", Target: "adult", Branch: graph.BranchTrue},
		{ID: "e4", Source: "check", Target: "minor-end", Branch: graph.BranchFalse},
	}, graph.WithName("age-check"))
}

func TestGenerateMermaid(t *testing.T) {
	out, err := Generate(ageGraph(), FormatMermaid, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"flowchart TD",
		`check{"age >= 18"}`,
		`age[/"✎ age = 25"/]`,
		`minor_end(["■ → MinorRule"])`,
		"start --> age",
		`check -->|"true"| adult`,
		`check -->|"false"| minor_end`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "style ") {
		t.Errorf("no trace given, expected no styles:\n%s", out)
	}
}

func TestGenerateMermaid_TraceHighlight(t *testing.T) {
	tr := trace.Trace{
		{NodeID: "start", Status: trace.StatusOK},
		{NodeID: "age", Status: trace.StatusOK},
		{NodeID: "check", Status: trace.StatusWarning},
	}
	out, err := Generate(ageGraph(), FormatMermaid, Options{Trace: tr})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "style check fill:#e60") {
		t.Errorf("missing warning style:\n%s", out)
	}
	if strings.Contains(out, "style adult") {
		t.Errorf("unvisited node styled:\n%s", out)
	}
}

func TestGenerateMermaid_DanglingEdge(t *testing.T) {
	g := ageGraph().WithEdge(graph.Edge{ID: "ghost", Source: "adult", Target: "nowhere"})
	out, err := Generate(g, FormatMermaid, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "%% dangling edge ghost") {
		t.Errorf("dangling edge not commented:\n%s", out)
	}
	if strings.Contains(out, "adult --> nowhere") {
		t.Errorf("dangling edge drawn:\n%s", out)
	}
}

func TestGenerateASCII_AlignedBoxes(t *testing.T) {
	tr := trace.Trace{{NodeID: "start", Status: trace.StatusOK}, {NodeID: "check", Status: trace.StatusError}}
	out, err := Generate(ageGraph(), FormatASCII, Options{Trace: tr})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "age-check") {
		t.Error("missing header name")
	}
	if !strings.Contains(out, "true → adult") || !strings.Contains(out, "false → minor-end") {
		t.Errorf("missing branch lines:\n%s", out)
	}
	if !strings.Contains(out, "✖ error") {
		t.Errorf("missing status marker:\n%s", out)
	}

	width := -1
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if !strings.HasPrefix(trimmed, "│") && !strings.HasPrefix(trimmed, "┌") && !strings.HasPrefix(trimmed, "║") {
			continue
		}
		w := runewidth.StringWidth(line)
		if width < 0 {
			width = w
		}
		if w != width {
			t.Errorf("line width %d, want %d: %q", w, width, line)
		}
	}
}

func TestGenerate_OrderFollowsEdges(t *testing.T) {
	g := graph.New([]graph.Node{
		{ID: "end", Kind: graph.KindEnd},
		{ID: "orphan", Kind: graph.KindInput},
		{ID: "s", Kind: graph.KindStart},
	}, []graph.Edge{{ID: "e1", Source: "s", Target: "end"}})

	var ids []string
	for _, n := range order(g) {
		ids = append(ids, n.ID)
	}
	if strings.Join(ids, ",") != "s,end,orphan" {
		t.Errorf("order = %v", ids)
	}
}

func TestGenerate_Empty(t *testing.T) {
	out, err := Generate(graph.Graph{}, FormatASCII, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Flow (empty)\n" {
		t.Errorf("got %q", out)
	}
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	if _, err := Generate(ageGraph(), Format("svg"), Options{}); err == nil {
		t.Error("expected error for unsupported format")
	}
}
