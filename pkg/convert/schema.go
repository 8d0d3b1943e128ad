package convert

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateRuleJSONSchema produces a JSON Schema Draft 2020-12 document that
// accepts any one of the rule document shapes.
func GenerateRuleJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true

	s := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          "https://github.com/ormasoftchile/flowsim/schemas/rule-v1.json",
		Title:       "flowsim rule document",
		Description: "Endpoint, decision or evaluation-chain rule accepted by flowsim convert import",
	}
	for _, shape := range []any{&Endpoint{}, &Decision{}, &EvaluationChain{}} {
		sub := r.Reflect(shape)
		sub.Version = ""
		sub.ID = ""
		s.OneOf = append(s.OneOf, sub)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rule schema: %w", err)
	}
	return data, nil
}
