// Package convert translates external rule documents into flow graphs and
// back.
//
// Three document shapes are understood: endpoint, decision and
// evaluation-chain. Graphs produced by Import remember the raw document so
// Export can hand it back unchanged; graphs authored directly are exported by
// re-deriving the closest shape from their node kinds.
package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/graph"
)

// ErrUnrecognizedShape is returned when a document matches none of the
// known rule shapes.
var ErrUnrecognizedShape = errors.New("unrecognized rule document shape")

// Shape names a rule document layout.
type Shape string

const (
	ShapeEndpoint        Shape = "endpoint"
	ShapeDecision        Shape = "decision"
	ShapeEvaluationChain Shape = "evaluation-chain"
)

// Endpoint routes to a single queue.
type Endpoint struct {
	ID      string          `json:"id"`
	Type    string          `json:"type" jsonschema:"enum=endpoint"`
	Label   string          `json:"label"`
	Details EndpointDetails `json:"details"`
}

type EndpointDetails struct {
	QueueName string `json:"queueName"`
	IsDefault bool   `json:"isDefault"`
}

// Decision tests a list of expressions in order.
type Decision struct {
	ID      string          `json:"id"`
	Type    string          `json:"type" jsonschema:"enum=decision"`
	Label   string          `json:"label"`
	Details DecisionDetails `json:"details"`
}

type DecisionDetails struct {
	Expressions []string `json:"expressions"`
}

// EvaluationChain maps ordered expressions to results, falling back to
// Default when none holds.
type EvaluationChain struct {
	Name        string       `json:"Name"`
	Description string       `json:"Description,omitempty"`
	Evaluations []Evaluation `json:"Evaluations"`
	Default     string       `json:"Default"`
}

// Evaluation is one clause of an EvaluationChain. A Result refers to another
// rule when ResultType is "rule" or when it carries the "rule:" prefix.
type Evaluation struct {
	Expression string `json:"Expression"`
	Result     string `json:"Result"`
	ResultType string `json:"ResultType,omitempty" jsonschema:"enum=rule,enum=value"`
}

// RulePrefix marks a result that names another rule.
const RulePrefix = "rule:"

// Detect reports the shape of a single rule document.
func Detect(raw []byte) (Shape, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if t, ok := probe["type"]; ok {
		var typ string
		if err := json.Unmarshal(t, &typ); err != nil {
			return "", fmt.Errorf("%w: type is not a string", ErrUnrecognizedShape)
		}
		switch Shape(typ) {
		case ShapeEndpoint:
			return ShapeEndpoint, nil
		case ShapeDecision:
			return ShapeDecision, nil
		}
		return "", fmt.Errorf("%w: unknown type %q", ErrUnrecognizedShape, typ)
	}
	if _, ok := probe["Evaluations"]; ok {
		return ShapeEvaluationChain, nil
	}
	return "", ErrUnrecognizedShape
}

// Import converts a rule document into a graph. data may hold a bare object
// or an array, in which case the first element is used.
func Import(data []byte) (graph.Graph, error) {
	docs, err := split(data)
	if err != nil {
		return graph.Graph{}, err
	}
	return importOne(docs[0])
}

// ImportAll converts every element of an array document. A bare object
// yields a single graph.
func ImportAll(data []byte) ([]graph.Graph, error) {
	docs, err := split(data)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Graph, 0, len(docs))
	for i, raw := range docs {
		g, err := importOne(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func split(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnrecognizedShape)
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("decode rule array: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: empty rule array", ErrUnrecognizedShape)
	}
	return docs, nil
}

func importOne(raw json.RawMessage) (graph.Graph, error) {
	shape, err := Detect(raw)
	if err != nil {
		return graph.Graph{}, err
	}
	var b builder
	switch shape {
	case ShapeEndpoint:
		var doc Endpoint
		if err := json.Unmarshal(raw, &doc); err != nil {
			return graph.Graph{}, fmt.Errorf("decode endpoint: %w", err)
		}
		b.endpoint(doc)
	case ShapeDecision:
		var doc Decision
		if err := json.Unmarshal(raw, &doc); err != nil {
			return graph.Graph{}, fmt.Errorf("decode decision: %w", err)
		}
		b.decision(doc)
	case ShapeEvaluationChain:
		var doc EvaluationChain
		if err := json.Unmarshal(raw, &doc); err != nil {
			return graph.Graph{}, fmt.Errorf("decode evaluation chain: %w", err)
		}
		b.chain(doc)
	}
	return graph.New(b.nodes, b.edges, graph.WithName(b.name), graph.WithOrigin(raw)), nil
}

// ---------------------------------------------------------------------------
// Graph construction
// ---------------------------------------------------------------------------

const (
	rowHeight   = 150
	branchWidth = 300
)

type builder struct {
	name  string
	nodes []graph.Node
	edges []graph.Edge
}

func (b *builder) node(id string, k graph.Kind, data graph.Data, col, row int) string {
	b.nodes = append(b.nodes, graph.Node{
		ID:       id,
		Kind:     k,
		Data:     data,
		Position: graph.Position{X: float64(col * branchWidth), Y: float64(row * rowHeight)},
	})
	return id
}

func (b *builder) connect(source, target string, br graph.Branch) {
	b.edges = append(b.edges, graph.Edge{
		ID:     fmt.Sprintf("e_%s_%s", source, target),
		Source: source,
		Target: target,
		Branch: br,
	})
}

func (b *builder) endpoint(doc Endpoint) {
	b.name = firstNonEmpty(doc.Label, doc.ID)
	start := b.node("start", graph.KindStart, graph.Data{Label: doc.Label, ExternalID: doc.ID}, 0, 0)
	fn := b.node("route", graph.KindFunction, graph.Data{Body: routeBody(doc.Details)}, 0, 1)
	end := b.node("end", graph.KindEnd, graph.Data{Label: "Route to " + doc.Details.QueueName}, 0, 2)
	b.connect(start, fn, graph.BranchNone)
	b.connect(fn, end, graph.BranchNone)
}

func (b *builder) decision(doc Decision) {
	b.name = firstNonEmpty(doc.Label, doc.ID)
	prev := b.node("start", graph.KindStart, graph.Data{Label: doc.Label, ExternalID: doc.ID}, 0, 0)
	branch := graph.BranchNone
	for i, expr := range doc.Details.Expressions {
		n := i + 1
		cond := b.node(fmt.Sprintf("cond_%d", n), graph.KindCondition, graph.Data{Expression: expr}, 0, n)
		b.connect(prev, cond, branch)
		match := b.node(fmt.Sprintf("end_%d", n), graph.KindEnd, graph.Data{Label: fmt.Sprintf("Condition %d matched", n)}, 1, n)
		b.connect(cond, match, graph.BranchTrue)
		prev, branch = cond, graph.BranchFalse
	}
	failed := b.node("end_failed", graph.KindEnd, graph.Data{Label: "All conditions failed"}, 0, len(doc.Details.Expressions)+1)
	b.connect(prev, failed, branch)
}

func (b *builder) chain(doc EvaluationChain) {
	b.name = doc.Name
	prev := b.node("start", graph.KindStart, graph.Data{Label: doc.Name, ExternalID: doc.Name}, 0, 0)
	branch := graph.BranchNone
	for i, ev := range doc.Evaluations {
		n := i + 1
		cond := b.node(fmt.Sprintf("cond_%d", n), graph.KindCondition, graph.Data{Expression: ev.Expression}, 0, n)
		b.connect(prev, cond, branch)
		result := b.node(fmt.Sprintf("end_%d", n), graph.KindEnd, resultData(ev.Result, ev.ResultType), 1, n)
		b.connect(cond, result, graph.BranchTrue)
		prev, branch = cond, graph.BranchFalse
	}
	def := b.node("end_default", graph.KindEnd, resultData(doc.Default, ""), 0, len(doc.Evaluations)+1)
	b.connect(prev, def, branch)
}

// resultData builds the payload of a result End node, turning rule
// references into a LinkTarget.
func resultData(result, resultType string) graph.Data {
	if target, ok := ruleReference(result, resultType); ok {
		return graph.Data{Label: graph.LinkLabel(target), LinkTarget: target}
	}
	return graph.Data{Label: result}
}

func ruleReference(result, resultType string) (string, bool) {
	if rest, ok := strings.CutPrefix(result, RulePrefix); ok {
		rest = strings.TrimSpace(rest)
		return rest, rest != ""
	}
	if strings.EqualFold(resultType, "rule") && strings.TrimSpace(result) != "" {
		return strings.TrimSpace(result), true
	}
	return "", false
}

func routeBody(d EndpointDetails) string {
	return fmt.Sprintf("return { queueName: %s, isDefault: %s }", eval.Literal(d.QueueName), eval.Literal(d.IsDefault))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
