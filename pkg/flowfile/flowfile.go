// Package flowfile loads and saves flow documents: a graph plus the name,
// creation time, format version and optionally the last validation result.
//
// JSON and YAML files go through two phases. The structural phase is a
// strict decode that rejects unknown fields; the semantic phase checks the
// decoded document against the generated JSON Schema. HCL files are decoded
// with gohcl and then share the semantic phase.
package flowfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

// Version is written into every saved document.
const Version = "1.0"

// ErrUnsupportedFormat is returned for file extensions other than .json,
// .yaml, .yml and .hcl.
var ErrUnsupportedFormat = errors.New("unsupported flow file format")

// Format identifies a flow file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatOf maps a file name to its format by extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Document is a saved flow.
type Document struct {
	Name       string           `json:"name"                 yaml:"name"`
	CreatedAt  time.Time        `json:"createdAt"            yaml:"createdAt"`
	Version    string           `json:"version"              yaml:"version"`
	Nodes      []graph.Node     `json:"nodes"                yaml:"nodes"`
	Edges      []graph.Edge     `json:"edges"                yaml:"edges"`
	Validation *validate.Result `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// New wraps g in a document stamped with the current time. A non-nil
// validation result is embedded as is.
func New(g graph.Graph, result *validate.Result) *Document {
	return &Document{
		Name:       g.Name(),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		Version:    Version,
		Nodes:      g.Nodes(),
		Edges:      g.Edges(),
		Validation: result,
	}
}

// Graph returns the flow graph described by d.
func (d *Document) Graph() graph.Graph {
	return graph.New(d.Nodes, d.Edges, graph.WithName(d.Name))
}

// Problem is one reason a flow file was rejected.
type Problem struct {
	Phase   string `json:"phase"` // structural, semantic
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return fmt.Sprintf("[%s] %s", p.Phase, p.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", p.Phase, p.Path, p.Message)
}

// LoadError reports every problem found while loading one file.
type LoadError struct {
	File     string
	Problems []Problem
}

func (e *LoadError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("load %s: %s", e.File, strings.Join(parts, "; "))
}

// Load reads a flow file, picking the decoder from the extension.
func Load(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	doc, err := Parse(data, format, path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse decodes data in the given format. name is only used in HCL
// diagnostics.
func Parse(data []byte, format Format, name string) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatJSON:
		doc, err = decodeJSON(data)
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatHCL:
		doc, err = decodeHCL(data, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, &LoadError{File: name, Problems: []Problem{{Phase: "structural", Message: err.Error()}}}
	}
	if problems := ValidateDocument(doc); len(problems) > 0 {
		return nil, &LoadError{File: name, Problems: problems}
	}
	return doc, nil
}

// Save writes doc to path in the format implied by the extension.
func Save(path string, doc *Document) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(doc, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write flow file: %w", err)
	}
	return nil
}

// Marshal encodes doc in the given format.
func Marshal(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(doc)
	case FormatYAML:
		return encodeYAML(doc)
	case FormatHCL:
		return encodeHCL(doc), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func decodeJSON(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &doc, nil
}

func encodeJSON(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	return append(data, '\n'), nil
}
