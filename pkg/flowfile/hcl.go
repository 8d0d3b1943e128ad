package flowfile

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/ormasoftchile/flowsim/pkg/graph"
)

// HCL layout:
//
//	name    = "Age check"
//	version = "1.0"
//
//	node "check" {
//	  type       = "condition"
//	  expression = "age >= 18"
//	}
//
//	edge "e3" {
//	  source = "check"
//	  target = "adult"
//	  branch = "true"
//	}
//
// HCL treats "${" as interpolation, so system variables are written "$${name}".

type hclFile struct {
	Name      string     `hcl:"name,optional"`
	Version   string     `hcl:"version,optional"`
	CreatedAt string     `hcl:"created_at,optional"`
	Nodes     []*hclNode `hcl:"node,block"`
	Edges     []*hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID           string  `hcl:"id,label"`
	Type         string  `hcl:"type"`
	X            float64 `hcl:"x,optional"`
	Y            float64 `hcl:"y,optional"`
	Label        string  `hcl:"label,optional"`
	ExternalID   string  `hcl:"external_id,optional"`
	LinkTarget   string  `hcl:"link_target,optional"`
	VariableName string  `hcl:"variable,optional"`
	Value        string  `hcl:"value,optional"`
	Expression   string  `hcl:"expression,optional"`
	Body         string  `hcl:"body,optional"`
}

type hclEdge struct {
	ID     string `hcl:"id,label"`
	Source string `hcl:"source"`
	Target string `hcl:"target"`
	Branch string `hcl:"branch,optional"`
}

func decodeHCL(data []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse HCL: %w", diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("decode HCL: %w", diags)
	}

	doc := &Document{
		Name:    raw.Name,
		Version: raw.Version,
		Nodes:   make([]graph.Node, 0, len(raw.Nodes)),
		Edges:   make([]graph.Edge, 0, len(raw.Edges)),
	}
	if raw.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, raw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		doc.CreatedAt = t
	}
	for _, n := range raw.Nodes {
		doc.Nodes = append(doc.Nodes, graph.Node{
			ID:       n.ID,
			Kind:     graph.Kind(n.Type),
			Position: graph.Position{X: n.X, Y: n.Y},
			Data: graph.Data{
				Label:        n.Label,
				ExternalID:   n.ExternalID,
				LinkTarget:   n.LinkTarget,
				VariableName: n.VariableName,
				Value:        n.Value,
				Expression:   n.Expression,
				Body:         n.Body,
			},
		})
	}
	for _, e := range raw.Edges {
		doc.Edges = append(doc.Edges, graph.Edge{
			ID:     e.ID,
			Source: e.Source,
			Target: e.Target,
			Branch: graph.Branch(e.Branch),
		})
	}
	return doc, nil
}

// encodeHCL writes doc in the layout decodeHCL reads. The validation result
// is not part of the HCL format.
func encodeHCL(doc *Document) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("name", cty.StringVal(doc.Name))
	body.SetAttributeValue("version", cty.StringVal(doc.Version))
	if !doc.CreatedAt.IsZero() {
		body.SetAttributeValue("created_at", cty.StringVal(doc.CreatedAt.Format(time.RFC3339)))
	}

	for _, n := range doc.Nodes {
		body.AppendNewline()
		b := body.AppendNewBlock("node", []string{n.ID}).Body()
		b.SetAttributeValue("type", cty.StringVal(string(n.Kind)))
		b.SetAttributeValue("x", cty.NumberFloatVal(n.Position.X))
		b.SetAttributeValue("y", cty.NumberFloatVal(n.Position.Y))
		optional(b, "label", n.Data.Label)
		optional(b, "external_id", n.Data.ExternalID)
		optional(b, "link_target", n.Data.LinkTarget)
		optional(b, "variable", n.Data.VariableName)
		optional(b, "value", n.Data.Value)
		optional(b, "expression", n.Data.Expression)
		optional(b, "body", n.Data.Body)
	}
	for _, e := range doc.Edges {
		body.AppendNewline()
		b := body.AppendNewBlock("edge", []string{e.ID}).Body()
		b.SetAttributeValue("source", cty.StringVal(e.Source))
		b.SetAttributeValue("target", cty.StringVal(e.Target))
		optional(b, "branch", string(e.Branch))
	}
	return f.Bytes()
}

func optional(b *hclwrite.Body, name, value string) {
	if value != "" {
		b.SetAttributeValue(name, cty.StringVal(value))
	}
}
