package validate

import "github.com/ormasoftchile/flowsim/pkg/graph"

// Size is the nominal on-canvas footprint of a node.
type Size struct {
	Width  float64
	Height float64
}

// NominalSizes maps each node kind to its footprint. Unknown kinds use the
// input size.
var NominalSizes = map[graph.Kind]Size{
	graph.KindStart:     {Width: 150, Height: 50},
	graph.KindInput:     {Width: 200, Height: 80},
	graph.KindCondition: {Width: 220, Height: 100},
	graph.KindFunction:  {Width: 220, Height: 100},
	graph.KindEnd:       {Width: 150, Height: 50},
}

// Overlap is a pair of nodes whose footprints intersect, in node order.
type Overlap struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Overlaps returns every pair of nodes whose footprints intersect. Boxes
// that merely touch do not overlap. The result is purely presentational
// and has no bearing on Validate.
func Overlaps(g graph.Graph) []Overlap {
	nodes := g.Nodes()
	var out []Overlap
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if intersects(nodes[i], nodes[j]) {
				out = append(out, Overlap{A: nodes[i].ID, B: nodes[j].ID})
			}
		}
	}
	return out
}

func sizeOf(k graph.Kind) Size {
	if s, ok := NominalSizes[k]; ok {
		return s
	}
	return NominalSizes[graph.KindInput]
}

func intersects(a, b graph.Node) bool {
	sa, sb := sizeOf(a.Kind), sizeOf(b.Kind)
	return a.Position.X < b.Position.X+sb.Width &&
		b.Position.X < a.Position.X+sa.Width &&
		a.Position.Y < b.Position.Y+sb.Height &&
		b.Position.Y < a.Position.Y+sa.Height
}
