package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/graph"
)

// DefaultQueue is the queue named by the endpoint derived from a graph that
// has neither conditions nor functions.
const DefaultQueue = "Default"

// Export returns the rule document for g. Imported, unedited graphs return
// their original document byte for byte.
func Export(g graph.Graph) ([]byte, error) {
	if raw := g.Origin(); raw != nil {
		return raw, nil
	}
	doc, err := Derive(g)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rule document: %w", err)
	}
	return data, nil
}

// Derive rebuilds a rule document from the node kinds of g: a Decision when
// it has conditions, an Endpoint otherwise.
func Derive(g graph.Graph) (any, error) {
	id, label := identity(g)

	if conds := chainOrder(g); len(conds) > 0 {
		exprs := make([]string, len(conds))
		for i, n := range conds {
			exprs[i] = n.Data.Expression
		}
		return Decision{
			ID:      id,
			Type:    string(ShapeDecision),
			Label:   label,
			Details: DecisionDetails{Expressions: exprs},
		}, nil
	}

	details := EndpointDetails{QueueName: DefaultQueue, IsDefault: true}
	if fns := g.NodesOfKind(graph.KindFunction); len(fns) > 0 {
		details = routeDetails(g, fns[0], details)
	}
	return Endpoint{ID: id, Type: string(ShapeEndpoint), Label: label, Details: details}, nil
}

func identity(g graph.Graph) (id, label string) {
	label = g.Name()
	if starts := g.NodesOfKind(graph.KindStart); len(starts) > 0 {
		id = starts[0].Data.ExternalID
		label = firstNonEmpty(label, starts[0].Data.Label)
	}
	return firstNonEmpty(id, label, "rule"), label
}

// routeDetails recovers queueName and isDefault by running the function
// body with the values bound by the input nodes upstream of it. Fields the
// body does not produce, or a body that cannot be computed, keep the
// defaults in d.
func routeDetails(g graph.Graph, fn graph.Node, d EndpointDetails) EndpointDetails {
	out, err := eval.New(eval.Options{}).Compute(fn.Data.Body, upstreamInputs(g, fn.ID))
	if err != nil {
		return d
	}
	if q, ok := out.Record["queueName"].(string); ok {
		d.QueueName = q
	}
	if def, ok := out.Record["isDefault"].(bool); ok {
		d.IsDefault = def
	}
	return d
}

// upstreamInputs binds the variables of every input node that has a path
// to id, applied in authoring order.
func upstreamInputs(g graph.Graph, id string) eval.Vars {
	ancestors := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.EdgesTo(cur) {
			if !ancestors[e.Source] {
				ancestors[e.Source] = true
				queue = append(queue, e.Source)
			}
		}
	}
	vars := eval.Vars{}
	for _, n := range g.NodesOfKind(graph.KindInput) {
		if name := strings.TrimSpace(n.Data.VariableName); ancestors[n.ID] && name != "" {
			vars[name] = eval.ParseScalar(n.Data.Value)
		}
	}
	return vars
}

// chainOrder lists condition nodes following false branches from the first
// start node, then appends any condition the walk did not reach in
// authoring order.
func chainOrder(g graph.Graph) []graph.Node {
	all := g.NodesOfKind(graph.KindCondition)
	if len(all) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(all))
	var out []graph.Node

	var cur string
	if starts := g.NodesOfKind(graph.KindStart); len(starts) > 0 {
		cur = next(g, starts[0].ID, graph.BranchNone)
	}
	for cur != "" && !seen[cur] {
		n, ok := g.Node(cur)
		if !ok || n.Kind != graph.KindCondition {
			break
		}
		seen[cur] = true
		out = append(out, n)
		cur = next(g, cur, graph.BranchFalse)
	}
	for _, n := range all {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

func next(g graph.Graph, id string, b graph.Branch) string {
	if edges := g.EdgesFromBranch(id, b); len(edges) > 0 {
		return edges[0].Target
	}
	return ""
}
