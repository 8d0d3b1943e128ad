package validate

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/graph"
)

func node(id string, k graph.Kind) graph.Node {
	return graph.Node{ID: id, Kind: k}
}

func edge(id, src, tgt string, b graph.Branch) graph.Edge {
	return graph.Edge{ID: id, Source: src, Target: tgt, Branch: b}
}

func ageGraph() graph.Graph {
	return graph.New([]graph.Node{
		node("start", graph.KindStart),
		{ID: "age", Kind: graph.KindInput, Data: graph.Data{VariableName: "age", Value: "25"}},
		{ID: "check", Kind: graph.KindCondition, Data: graph.Data{Expression: "age >= 18"}},
		{ID: "adult", Kind: graph.KindEnd, Data: graph.Data{Label: "Adult"}},
		{ID: "minor", Kind: graph.KindEnd, Data: graph.Data{Label: "Minor"}},
	}, []graph.Edge{
		edge("e1", "start", "age", graph.BranchNone),
		edge("e2", "age", "check", graph.BranchNone),
		edge("e3", "check", "adult", graph.BranchTrue),
		edge("e4", "check", "minor", graph.BranchFalse),
	})
}

func kinds(issues []Issue) []Kind {
	var out []Kind
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func unreachableSet(r Result) []string {
	var out []string
	for _, i := range r.IssuesOf(KindUnreachable) {
		out = append(out, i.NodeID)
	}
	return out
}

func TestValidate_FullyConnected(t *testing.T) {
	res := Validate(ageGraph())
	if !res.IsValid {
		t.Fatalf("expected valid, got errors: %v", res.Errors)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Errorf("errors=%v warnings=%v", res.Errors, res.Warnings)
	}
	want := Summary{NodeCount: 5, EdgeCount: 4, StartCount: 1, EndCount: 2, ReachableCount: 5}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
}

func TestValidate_Empty(t *testing.T) {
	res := Validate(graph.Graph{})
	if res.IsValid {
		t.Fatal("empty graph should be invalid")
	}
	if !res.Has(KindMissingStart) || !res.Has(KindMissingEnd) {
		t.Errorf("errors = %v", kinds(res.Errors))
	}
	if res.Errors == nil || res.Warnings == nil {
		t.Error("issue lists should be non-nil for JSON encoding")
	}
	if res.Summary != (Summary{}) {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name     string
		graph    graph.Graph
		kind     Kind
		severity Severity
		nodeID   string
	}{
		{
			name:     "R1 missing start",
			graph:    graph.New([]graph.Node{node("end", graph.KindEnd)}, nil),
			kind:     KindMissingStart,
			severity: SeverityError,
		},
		{
			name: "R2 multiple start",
			graph: graph.New(
				[]graph.Node{node("s1", graph.KindStart), node("s2", graph.KindStart), node("end", graph.KindEnd)},
				[]graph.Edge{edge("e1", "s1", "end", ""), edge("e2", "s2", "end", "")},
			),
			kind:     KindMultipleStart,
			severity: SeverityWarning,
			nodeID:   "s2",
		},
		{
			name:     "R3 missing end",
			graph:    graph.New([]graph.Node{node("start", graph.KindStart)}, nil),
			kind:     KindMissingEnd,
			severity: SeverityError,
		},
		{
			name:     "R4 disconnected start",
			graph:    graph.New([]graph.Node{node("start", graph.KindStart), node("end", graph.KindEnd)}, nil),
			kind:     KindDisconnectedStart,
			severity: SeverityError,
			nodeID:   "start",
		},
		{
			name:     "R5 orphaned end",
			graph:    ageGraph().RemoveEdge("e4"),
			kind:     KindOrphanedEnd,
			severity: SeverityError,
			nodeID:   "minor",
		},
		{
			name:     "R6 orphaned node",
			graph:    ageGraph().WithNode(node("calc", graph.KindFunction)),
			kind:     KindOrphanedNode,
			severity: SeverityError,
			nodeID:   "calc",
		},
		{
			name:     "R7 incomplete branch",
			graph:    ageGraph().RemoveEdge("e4"),
			kind:     KindIncompleteBranch,
			severity: SeverityWarning,
			nodeID:   "check",
		},
		{
			name: "R8 unreachable",
			graph: ageGraph().
				WithNode(node("island", graph.KindFunction)).
				WithEdge(edge("loop", "island", "island", "")),
			kind:     KindUnreachable,
			severity: SeverityWarning,
			nodeID:   "island",
		},
		{
			name:     "dangling edge",
			graph:    ageGraph().WithEdge(edge("ghost", "check", "nowhere", graph.BranchTrue)),
			kind:     KindDanglingEdge,
			severity: SeverityError,
		},
		{
			name:     "duplicate node",
			graph:    ageGraph().WithNode(node("adult", graph.KindEnd)),
			kind:     KindDuplicateNode,
			severity: SeverityError,
			nodeID:   "adult",
		},
		{
			name:     "invalid kind",
			graph:    ageGraph().WithNode(node("weird", graph.Kind("loop"))),
			kind:     KindInvalidKind,
			severity: SeverityError,
			nodeID:   "weird",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.graph)
			found := res.IssuesOf(tt.kind)
			if len(found) == 0 {
				t.Fatalf("no %s issue; got %v", tt.kind, res.Issues())
			}
			issue := found[0]
			if issue.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", issue.Severity, tt.severity)
			}
			if tt.nodeID != "" && issue.NodeID != tt.nodeID {
				t.Errorf("nodeId = %q, want %q", issue.NodeID, tt.nodeID)
			}
			if tt.severity == SeverityError && res.IsValid {
				t.Errorf("isValid = true despite %s", tt.kind)
			}
		})
	}
}

func TestValidate_WarningsDoNotBlock(t *testing.T) {
	g := ageGraph().
		WithNode(node("s2", graph.KindStart)).
		WithEdge(edge("e5", "s2", "age", ""))
	res := Validate(g)
	if !res.IsValid {
		t.Fatalf("warnings must not invalidate: %v", res.Errors)
	}
	if !res.Has(KindMultipleStart) {
		t.Errorf("warnings = %v", kinds(res.Warnings))
	}
}

func TestValidate_DanglingEdgeIgnoredForConnectivity(t *testing.T) {
	// The only edge into "minor" points from a node that does not exist.
	g := ageGraph().RemoveEdge("e4").WithEdge(edge("bad", "ghost", "minor", ""))
	res := Validate(g)
	if !res.Has(KindOrphanedEnd) {
		t.Errorf("dangling edge should not satisfy R5: %v", kinds(res.Errors))
	}
	issue := res.IssuesOf(KindDanglingEdge)[0]
	if issue.EdgeID != "bad" || !strings.Contains(issue.Message, `source "ghost"`) {
		t.Errorf("dangling issue = %+v", issue)
	}
}

func TestValidate_ReachabilityMonotonic(t *testing.T) {
	base := graph.New([]graph.Node{
		node("start", graph.KindStart),
		node("x", graph.KindFunction),
		node("end", graph.KindEnd),
	}, []graph.Edge{
		edge("e1", "start", "end", ""),
		edge("e2", "x", "end", ""),
	})
	if got := unreachableSet(Validate(base)); !slices.Equal(got, []string{"x"}) {
		t.Fatalf("unreachable = %v, want [x]", got)
	}

	connected := base.WithEdge(edge("e3", "start", "x", ""))
	res := Validate(connected)
	if got := unreachableSet(res); len(got) != 0 {
		t.Errorf("after connecting, unreachable = %v", got)
	}
	if res.Summary.ReachableCount != 3 {
		t.Errorf("reachableCount = %d", res.Summary.ReachableCount)
	}

	cut := connected.RemoveEdge("e3")
	if got := unreachableSet(Validate(cut)); !slices.Equal(got, []string{"x"}) {
		t.Errorf("after removing incoming edges, unreachable = %v", got)
	}
}

func TestValidate_ReachableFromAnyStart(t *testing.T) {
	g := graph.New([]graph.Node{
		node("s1", graph.KindStart),
		node("s2", graph.KindStart),
		node("a", graph.KindEnd),
		node("b", graph.KindEnd),
	}, []graph.Edge{
		edge("e1", "s1", "a", ""),
		edge("e2", "s2", "b", ""),
	})
	if got := unreachableSet(Validate(g)); len(got) != 0 {
		t.Errorf("unreachable = %v", got)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	g := ageGraph().RemoveEdge("e4").WithNode(node("calc", graph.KindFunction))
	a, b := Validate(g), Validate(g)
	if !slices.Equal(kinds(a.Issues()), kinds(b.Issues())) {
		t.Errorf("issue order differs: %v vs %v", kinds(a.Issues()), kinds(b.Issues()))
	}
}

func TestValidateContext_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := telemetry.WithLogger(context.Background(), logger)

	ValidateContext(ctx, ageGraph())
	if !strings.Contains(buf.String(), `"rule":"R8"`) {
		t.Errorf("expected per-rule debug logs, got: %s", buf.String())
	}
}

func TestOverlaps(t *testing.T) {
	g := graph.New([]graph.Node{
		{ID: "a", Kind: graph.KindStart, Position: graph.Position{X: 0, Y: 0}},
		{ID: "b", Kind: graph.KindEnd, Position: graph.Position{X: 100, Y: 20}},
		{ID: "c", Kind: graph.KindEnd, Position: graph.Position{X: 150, Y: 0}},
		{ID: "d", Kind: graph.KindInput, Position: graph.Position{X: 0, Y: 500}},
	}, nil)

	got := Overlaps(g)
	want := []Overlap{{A: "a", B: "b"}, {A: "b", B: "c"}}
	if !slices.Equal(got, want) {
		t.Errorf("Overlaps = %v, want %v", got, want)
	}
	if Validate(g).Has(Kind("overlap")) {
		t.Error("overlap must not surface as a validation issue")
	}
}
