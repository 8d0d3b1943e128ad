package graph

import "github.com/google/uuid"

// IDGenerator produces identifiers for nodes and edges created by edits.
// The default, used when no generator is configured, is a sequence carried
// by the Graph value itself ("start_1", "edge_2", ...).
type IDGenerator interface {
	NextID(prefix string) string
}

// UUIDs generates random identifiers of the form "<prefix>-<uuid>".
type UUIDs struct{}

// NextID implements IDGenerator.
func (UUIDs) NextID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
