package graph

import (
	"encoding/json"
	"fmt"
)

// wireGraph is the JSON shape shared with the editor:
// {"nodes":[{id,type,position,data}], "edges":[{id,source,target,sourceHandle}]}.
type wireGraph struct {
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// MarshalJSON implements json.Marshaler.
func (g Graph) MarshalJSON() ([]byte, error) {
	w := wireGraph{Name: g.name, Nodes: g.nodes, Edges: g.edges}
	if w.Nodes == nil {
		w.Nodes = []Node{}
	}
	if w.Edges == nil {
		w.Edges = []Edge{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var w wireGraph
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}
	*g = New(w.Nodes, w.Edges, WithName(w.Name))
	return nil
}
