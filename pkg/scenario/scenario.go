// Package scenario runs a flow against stored test configurations and
// checks the resulting trace.
//
// Scenarios live next to the flow by convention:
//
//	flows/routing.json
//	flows/scenarios/routing/weekend.yaml
//	flows/scenarios/routing/gold-tier.yaml
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/flowsim/pkg/eval"
)

// Scenario is one stored test case. Every expectation is optional; omitted
// fields are not asserted.
type Scenario struct {
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"        json:"tags,omitempty"`
	Skip        bool     `yaml:"skip,omitempty"        json:"skip,omitempty"`

	// Config is the test configuration handed to conditions.
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
	// Vars seeds the variable environment before the start node.
	Vars     map[string]string `yaml:"vars,omitempty"      json:"vars,omitempty"`
	MaxSteps int               `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`

	ExpectedStatus     string            `yaml:"expected_status,omitempty"     json:"expected_status,omitempty"`
	ExpectedEnd        string            `yaml:"expected_end,omitempty"        json:"expected_end,omitempty"`
	MustReach          []string          `yaml:"must_reach,omitempty"          json:"must_reach,omitempty"`
	MustNotReach       []string          `yaml:"must_not_reach,omitempty"      json:"must_not_reach,omitempty"`
	ExpectedVariables  map[string]string `yaml:"expected_variables,omitempty"  json:"expected_variables,omitempty"`
	ExpectedConditions map[string]bool   `yaml:"expected_conditions,omitempty" json:"expected_conditions,omitempty"`
	ExpectedWarnings   []string          `yaml:"expected_warnings,omitempty"   json:"expected_warnings,omitempty"`
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a Scenario from raw YAML bytes. Unknown fields are
// rejected so a misspelt expectation does not silently pass.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// LoadConfig reads a test configuration map from a YAML or JSON file.
// Non-string values are converted to their string form.
func LoadConfig(path string) (eval.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg := make(eval.Config, len(raw))
	for k, v := range raw {
		cfg[k] = display(v)
	}
	return cfg, nil
}

// VarsFrom parses the scenario's string variables the way an input node
// would.
func VarsFrom(raw map[string]string) eval.Vars {
	vars := make(eval.Vars, len(raw))
	for k, v := range raw {
		vars[k] = eval.ParseScalar(v)
	}
	return vars
}
