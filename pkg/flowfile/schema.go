package flowfile

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaID = "https://github.com/ormasoftchile/flowsim/schemas/flow-v1.json"

// GenerateFlowJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Document struct.
func GenerateFlowJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Document{})
	s.ID = schemaID
	s.Title = "flowsim flow"
	s.Description = "Schema for saved flowsim flow documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	data, err := GenerateFlowJSONSchema()
	if err != nil {
		return nil, err
	}
	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("flow-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("flow-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
})

// ValidateDocument runs the semantic phase: doc is re-encoded as JSON and
// checked against the flow schema. An empty result means the document
// passed.
func ValidateDocument(doc *Document) []Problem {
	sch, err := compiledSchema()
	if err != nil {
		return []Problem{{Phase: "semantic", Message: err.Error()}}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return []Problem{{Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err)}}
	}
	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return []Problem{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []Problem{{Phase: "semantic", Message: err.Error()}}
	}
	var problems []Problem
	for _, cause := range leaves(ve) {
		problems = append(problems, Problem{
			Phase:   "semantic",
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return problems
}

func leaves(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leaves(cause)...)
	}
	return flat
}
