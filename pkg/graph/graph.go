// Package graph defines the flow graph model: typed nodes joined by directed
// edges, where edges leaving a condition node carry a true/false branch.
//
// A Graph is an immutable value. Every edit returns a new Graph and the
// accessors hand out copies, so a Graph can be validated and simulated from
// several goroutines while its owner keeps editing its own copy.
package graph

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Kind enumerates the five node kinds.
type Kind string

const (
	KindStart     Kind = "start"
	KindInput     Kind = "input"
	KindCondition Kind = "condition"
	KindFunction  Kind = "function"
	KindEnd       Kind = "end"
)

// Kinds lists every node kind in canonical order.
var Kinds = []Kind{KindStart, KindInput, KindCondition, KindFunction, KindEnd}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStart, KindInput, KindCondition, KindFunction, KindEnd:
		return true
	}
	return false
}

// Position is the canvas location of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Data is the universal node payload. Fields are populated based on Kind.
type Data struct {
	// Start / End
	Label      string `json:"label,omitempty"      yaml:"label,omitempty"`
	ExternalID string `json:"externalId,omitempty" yaml:"externalId,omitempty"`
	LinkTarget string `json:"linkTarget,omitempty" yaml:"linkTarget,omitempty"`

	// Input
	VariableName string `json:"variableName,omitempty" yaml:"variableName,omitempty"`
	Value        string `json:"value,omitempty"        yaml:"value,omitempty"`

	// Condition
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Function
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
}

// Node is a single step of the flow.
type Node struct {
	ID       string   `json:"id"       yaml:"id"`
	Kind     Kind     `json:"type"     yaml:"type" jsonschema:"enum=start,enum=input,enum=condition,enum=function,enum=end"`
	Position Position `json:"position" yaml:"position,omitempty"`
	Data     Data     `json:"data"     yaml:"data,omitempty"`
}

// DisplayLabel returns the label shown for the node, falling back to the
// kind-specific payload and finally the id.
func (n Node) DisplayLabel() string {
	switch {
	case n.Data.Label != "":
		return n.Data.Label
	case n.Kind == KindInput && n.Data.VariableName != "":
		return n.Data.VariableName + " = " + n.Data.Value
	case n.Kind == KindCondition && n.Data.Expression != "":
		return n.Data.Expression
	case n.Kind == KindEnd && n.Data.LinkTarget != "":
		return LinkLabel(n.Data.LinkTarget)
	}
	return n.ID
}

// LinkMarker prefixes end-node labels that point at another rule.
const LinkMarker = "→ "

// LinkLabel renders the display label for a cross-rule link.
func LinkLabel(target string) string {
	return LinkMarker + target
}

// ParseLinkLabel extracts a link target from a legacy end-node label.
func ParseLinkLabel(label string) (string, bool) {
	target, ok := strings.CutPrefix(label, LinkMarker)
	target = strings.TrimSpace(target)
	if !ok || target == "" {
		return "", false
	}
	return target, true
}

// ---------------------------------------------------------------------------
// Edge
// ---------------------------------------------------------------------------

// Branch selects which outcome of a condition node an edge serves.
type Branch string

const (
	BranchNone  Branch = ""
	BranchTrue  Branch = "true"
	BranchFalse Branch = "false"
)

// BranchFor maps a boolean outcome to its branch selector.
func BranchFor(b bool) Branch {
	if b {
		return BranchTrue
	}
	return BranchFalse
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"                     yaml:"id"`
	Source string `json:"source"                 yaml:"source"`
	Target string `json:"target"                 yaml:"target"`
	Branch Branch `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty" jsonschema:"enum=true,enum=false,enum="`
}

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

// Graph is an immutable flow graph. The zero value is an empty graph.
type Graph struct {
	name   string
	nodes  []Node
	edges  []Edge
	ids    IDGenerator
	seq    int
	origin []byte
}

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithIDGenerator makes edits that create nodes or edges draw ids from gen
// instead of the per-graph sequence.
func WithIDGenerator(gen IDGenerator) Option {
	return func(g *Graph) { g.ids = gen }
}

// WithName sets the graph name.
func WithName(name string) Option {
	return func(g *Graph) { g.name = name }
}

// WithOrigin attaches the raw external document the graph was built from.
func WithOrigin(raw []byte) Option {
	return func(g *Graph) { g.origin = clone(raw) }
}

// New builds a graph from the given nodes and edges. The slices are copied.
// End nodes whose label still encodes a link target get LinkTarget filled in.
func New(nodes []Node, edges []Edge, opts ...Option) Graph {
	g := Graph{
		nodes: clone(nodes),
		edges: clone(edges),
	}
	for _, opt := range opts {
		opt(&g)
	}
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.Kind == KindEnd && n.Data.LinkTarget == "" {
			if target, ok := ParseLinkLabel(n.Data.Label); ok {
				n.Data.LinkTarget = target
			}
		}
	}
	return g
}

// Name returns the graph name.
func (g Graph) Name() string { return g.name }

// Origin returns a copy of the external document the graph was imported
// from, or nil when the graph was authored directly or edited since.
func (g Graph) Origin() []byte { return clone(g.origin) }

// Len returns the number of nodes.
func (g Graph) Len() int { return len(g.nodes) }

// Nodes returns a copy of the node list in authoring order.
func (g Graph) Nodes() []Node { return clone(g.nodes) }

// Edges returns a copy of the edge list in authoring order.
func (g Graph) Edges() []Edge { return clone(g.edges) }

// Node returns the first node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether a node with the given id exists.
func (g Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// NodesOfKind returns the nodes of kind k in authoring order.
func (g Graph) NodesOfKind(k Kind) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// EdgesFrom returns all edges leaving id, in definition order.
func (g Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFromBranch returns the edges leaving id that serve branch b.
func (g Graph) EdgesFromBranch(id string, b Branch) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id && e.Branch == b {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns all edges arriving at id.
func (g Graph) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Copy-on-write edits
// ---------------------------------------------------------------------------

// Renamed returns a copy of g with a new name.
func (g Graph) Renamed(name string) Graph {
	out := g.copy()
	out.name = name
	return out
}

// WithNode returns a copy of g with n appended. Duplicate ids are allowed
// and left for validation to report.
func (g Graph) WithNode(n Node) Graph {
	out := g.edited()
	out.nodes = append(out.nodes, n)
	return out
}

// AddNode appends a node of kind k with a generated id.
func (g Graph) AddNode(k Kind, data Data, pos Position) (Graph, string) {
	out := g.edited()
	id := out.nextID(string(k))
	out.nodes = append(out.nodes, Node{ID: id, Kind: k, Position: pos, Data: data})
	return out, id
}

// UpdateNode returns a copy of g where fn has been applied to the node with
// the given id. Unknown ids leave the graph unchanged.
func (g Graph) UpdateNode(id string, fn func(n *Node)) Graph {
	idx := g.indexOf(id)
	if idx < 0 {
		return g
	}
	out := g.edited()
	fn(&out.nodes[idx])
	return out
}

// Moved returns a copy of g with the node repositioned. Moving is a
// presentation change and keeps the import origin.
func (g Graph) Moved(id string, pos Position) Graph {
	idx := g.indexOf(id)
	if idx < 0 {
		return g
	}
	out := g.copy()
	out.nodes[idx].Position = pos
	return out
}

// RemoveNode returns a copy of g without the node and its incident edges.
func (g Graph) RemoveNode(id string) Graph {
	out := g.edited()
	nodes := out.nodes[:0]
	for _, n := range out.nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	out.nodes = nodes
	edges := out.edges[:0]
	for _, e := range out.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	out.edges = edges
	return out
}

// WithEdge returns a copy of g with e appended. Dangling endpoints are
// allowed and left for validation to report.
func (g Graph) WithEdge(e Edge) Graph {
	out := g.edited()
	out.edges = append(out.edges, e)
	return out
}

// Connect appends an edge from source to target with a generated id.
func (g Graph) Connect(source, target string, b Branch) (Graph, string) {
	out := g.edited()
	id := out.nextID("edge")
	out.edges = append(out.edges, Edge{ID: id, Source: source, Target: target, Branch: b})
	return out, id
}

// RemoveEdge returns a copy of g without the edge.
func (g Graph) RemoveEdge(id string) Graph {
	out := g.edited()
	edges := out.edges[:0]
	for _, e := range out.edges {
		if e.ID != id {
			edges = append(edges, e)
		}
	}
	out.edges = edges
	return out
}

func (g Graph) indexOf(id string) int {
	for i, n := range g.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// copy returns a deep copy of g that shares no backing arrays with it.
func (g Graph) copy() Graph {
	return Graph{
		name:   g.name,
		nodes:  clone(g.nodes),
		edges:  clone(g.edges),
		ids:    g.ids,
		seq:    g.seq,
		origin: clone(g.origin),
	}
}

// edited is copy for structural edits: the import origin no longer
// describes the graph and is dropped.
func (g Graph) edited() Graph {
	out := g.copy()
	out.origin = nil
	return out
}

func (g *Graph) nextID(prefix string) string {
	if g.ids != nil {
		return g.ids.NextID(prefix)
	}
	for {
		g.seq++
		id := fmt.Sprintf("%s_%d", prefix, g.seq)
		if !g.idInUse(id) {
			return id
		}
	}
}

func (g Graph) idInUse(id string) bool {
	if g.indexOf(id) >= 0 {
		return true
	}
	for _, e := range g.edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

func clone[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
