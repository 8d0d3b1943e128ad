// Package validate classifies a flow graph as structurally runnable.
//
// Every rule runs independently and all violations are collected; a graph
// is valid when no rule reports an error. Warnings never affect validity.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/graph"
)

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies the rule that produced an issue.
type Kind string

const (
	KindDuplicateNode     Kind = "duplicate_node"
	KindDanglingEdge      Kind = "dangling_edge"
	KindInvalidKind       Kind = "invalid_kind"
	KindMissingStart      Kind = "missing_start"      // R1
	KindMultipleStart     Kind = "multiple_start"     // R2
	KindMissingEnd        Kind = "missing_end"        // R3
	KindDisconnectedStart Kind = "disconnected_start" // R4
	KindOrphanedEnd       Kind = "orphaned_end"       // R5
	KindOrphanedNode      Kind = "orphaned_node"      // R6
	KindIncompleteBranch  Kind = "incomplete_branch"  // R7
	KindUnreachable       Kind = "unreachable"        // R8
)

// Issue is one error or warning.
type Issue struct {
	Kind     Kind     `json:"kind"             yaml:"kind"`
	Message  string   `json:"message"          yaml:"message"`
	Severity Severity `json:"severity"         yaml:"severity"`
	NodeID   string   `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty" yaml:"edgeId,omitempty"`
}

func (i Issue) String() string {
	var loc string
	switch {
	case i.NodeID != "":
		loc = " at node " + i.NodeID
	case i.EdgeID != "":
		loc = " at edge " + i.EdgeID
	}
	return fmt.Sprintf("[%s] %s%s", i.Kind, i.Message, loc)
}

func errorf(kind Kind, node, msg string, args ...any) Issue {
	return Issue{
		Kind:     kind,
		NodeID:   node,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityError,
	}
}

func warningf(kind Kind, node, msg string, args ...any) Issue {
	return Issue{
		Kind:     kind,
		NodeID:   node,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityWarning,
	}
}

// Summary holds counts that are populated regardless of validity.
type Summary struct {
	NodeCount      int `json:"nodeCount"      yaml:"nodeCount"`
	EdgeCount      int `json:"edgeCount"      yaml:"edgeCount"`
	StartCount     int `json:"startCount"     yaml:"startCount"`
	EndCount       int `json:"endCount"       yaml:"endCount"`
	ReachableCount int `json:"reachableCount" yaml:"reachableCount"`
}

// Result is the outcome of validating a graph.
type Result struct {
	IsValid  bool    `json:"isValid"  yaml:"isValid"`
	Errors   []Issue `json:"errors"   yaml:"errors"`
	Warnings []Issue `json:"warnings" yaml:"warnings"`
	Summary  Summary `json:"summary"  yaml:"summary"`
}

// Issues returns errors followed by warnings.
func (r Result) Issues() []Issue {
	out := make([]Issue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// IssuesOf returns the issues of the given kind.
func (r Result) IssuesOf(kind Kind) []Issue {
	var out []Issue
	for _, i := range r.Issues() {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// Has reports whether any issue of the given kind was raised.
func (r Result) Has(kind Kind) bool {
	return len(r.IssuesOf(kind)) > 0
}

// Validate runs every rule against g.
func Validate(g graph.Graph) Result {
	return ValidateContext(context.Background(), g)
}

// ValidateContext is Validate with the logger taken from ctx.
func ValidateContext(ctx context.Context, g graph.Graph) Result {
	logger := telemetry.FromContext(ctx)
	ix := newIndex(g)

	var issues []Issue
	for _, r := range rules {
		found := r.check(g, ix)
		logger.Debug("validation rule", "rule", r.name, "issues", len(found))
		issues = append(issues, found...)
	}

	res := Result{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Summary: Summary{
			NodeCount:      g.Len(),
			EdgeCount:      len(g.Edges()),
			StartCount:     len(g.NodesOfKind(graph.KindStart)),
			EndCount:       len(g.NodesOfKind(graph.KindEnd)),
			ReachableCount: len(ix.reachable),
		},
	}
	for _, i := range issues {
		if i.Severity == SeverityError {
			res.Errors = append(res.Errors, i)
		} else {
			res.Warnings = append(res.Warnings, i)
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

// index caches the lookups the rules share. Only edges whose endpoints both
// resolve take part in connectivity.
type index struct {
	ids       map[string]bool
	in, out   map[string]int
	branches  map[string]map[graph.Branch]bool
	reachable map[string]bool
}

func newIndex(g graph.Graph) *index {
	ix := &index{
		ids:      map[string]bool{},
		in:       map[string]int{},
		out:      map[string]int{},
		branches: map[string]map[graph.Branch]bool{},
	}
	for _, n := range g.Nodes() {
		ix.ids[n.ID] = true
	}
	adj := map[string][]string{}
	for _, e := range g.Edges() {
		if !ix.resolves(e) {
			continue
		}
		ix.out[e.Source]++
		ix.in[e.Target]++
		if ix.branches[e.Source] == nil {
			ix.branches[e.Source] = map[graph.Branch]bool{}
		}
		ix.branches[e.Source][e.Branch] = true
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	// R8 reachability: BFS seeded from every start.
	ix.reachable = map[string]bool{}
	var queue []string
	for _, s := range g.NodesOfKind(graph.KindStart) {
		if !ix.reachable[s.ID] {
			ix.reachable[s.ID] = true
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !ix.reachable[next] {
				ix.reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return ix
}

func (ix *index) resolves(e graph.Edge) bool {
	return ix.ids[e.Source] && ix.ids[e.Target]
}

type rule struct {
	name  string
	check func(g graph.Graph, ix *index) []Issue
}

var rules = []rule{
	{"duplicate_node", checkDuplicateNodes},
	{"dangling_edge", checkDanglingEdges},
	{"invalid_kind", checkKinds},
	{"R1", checkMissingStart},
	{"R2", checkMultipleStart},
	{"R3", checkMissingEnd},
	{"R4", checkDisconnectedStart},
	{"R5", checkOrphanedEnd},
	{"R6", checkOrphanedNodes},
	{"R7", checkIncompleteBranches},
	{"R8", checkUnreachable},
}

func checkDuplicateNodes(g graph.Graph, _ *index) []Issue {
	var issues []Issue
	seen := map[string]int{}
	for _, n := range g.Nodes() {
		seen[n.ID]++
		if seen[n.ID] == 2 {
			issues = append(issues, errorf(KindDuplicateNode, n.ID, "node id %q is used more than once", n.ID))
		}
	}
	return issues
}

func checkDanglingEdges(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	for _, e := range g.Edges() {
		var missing []string
		if !ix.ids[e.Source] {
			missing = append(missing, fmt.Sprintf("source %q", e.Source))
		}
		if !ix.ids[e.Target] {
			missing = append(missing, fmt.Sprintf("target %q", e.Target))
		}
		if len(missing) > 0 {
			issue := errorf(KindDanglingEdge, "", "edge refers to unknown %s", strings.Join(missing, " and "))
			issue.EdgeID = e.ID
			issues = append(issues, issue)
		}
	}
	return issues
}

func checkKinds(g graph.Graph, _ *index) []Issue {
	var issues []Issue
	for _, n := range g.Nodes() {
		if !n.Kind.Valid() {
			issues = append(issues, errorf(KindInvalidKind, n.ID, "unknown node type %q", n.Kind))
		}
	}
	return issues
}

// R1: the flow needs somewhere to begin.
func checkMissingStart(g graph.Graph, _ *index) []Issue {
	if len(g.NodesOfKind(graph.KindStart)) == 0 {
		return []Issue{errorf(KindMissingStart, "", "flow has no start node")}
	}
	return nil
}

// R2: only the first start is simulated.
func checkMultipleStart(g graph.Graph, _ *index) []Issue {
	starts := g.NodesOfKind(graph.KindStart)
	if len(starts) <= 1 {
		return nil
	}
	return []Issue{warningf(KindMultipleStart, starts[1].ID,
		"flow has %d start nodes; only %q is used when simulating", len(starts), starts[0].ID)}
}

// R3
func checkMissingEnd(g graph.Graph, _ *index) []Issue {
	if len(g.NodesOfKind(graph.KindEnd)) == 0 {
		return []Issue{errorf(KindMissingEnd, "", "flow has no end node")}
	}
	return nil
}

// R4
func checkDisconnectedStart(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	for _, n := range g.NodesOfKind(graph.KindStart) {
		if ix.out[n.ID] == 0 {
			issues = append(issues, errorf(KindDisconnectedStart, n.ID, "start node %q has no outgoing connection", n.ID))
		}
	}
	return issues
}

// R5
func checkOrphanedEnd(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	for _, n := range g.NodesOfKind(graph.KindEnd) {
		if ix.in[n.ID] == 0 {
			issues = append(issues, errorf(KindOrphanedEnd, n.ID, "end node %q has no incoming connection", n.ID))
		}
	}
	return issues
}

// R6: intermediate nodes need both an incoming and an outgoing edge.
func checkOrphanedNodes(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindStart || n.Kind == graph.KindEnd {
			continue
		}
		noIn, noOut := ix.in[n.ID] == 0, ix.out[n.ID] == 0
		switch {
		case noIn && noOut:
			issues = append(issues, errorf(KindOrphanedNode, n.ID, "%s node %q is not connected", n.Kind, n.ID))
		case noIn:
			issues = append(issues, errorf(KindOrphanedNode, n.ID, "%s node %q has no incoming connection", n.Kind, n.ID))
		case noOut:
			issues = append(issues, errorf(KindOrphanedNode, n.ID, "%s node %q has no outgoing connection", n.Kind, n.ID))
		}
	}
	return issues
}

// R7
func checkIncompleteBranches(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	for _, n := range g.NodesOfKind(graph.KindCondition) {
		var missing []string
		for _, b := range []graph.Branch{graph.BranchTrue, graph.BranchFalse} {
			if !ix.branches[n.ID][b] {
				missing = append(missing, string(b))
			}
		}
		if len(missing) > 0 {
			issues = append(issues, warningf(KindIncompleteBranch, n.ID,
				"condition %q is missing its %s branch", n.ID, strings.Join(missing, " and ")))
		}
	}
	return issues
}

// R8: reachable from any start.
func checkUnreachable(g graph.Graph, ix *index) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindStart || ix.reachable[n.ID] || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		issues = append(issues, warningf(KindUnreachable, n.ID, "%s node %q cannot be reached from a start node", n.Kind, n.ID))
	}
	return issues
}
