//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/flowsim/pkg/convert"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for _, s := range []struct {
		path string
		gen  func() ([]byte, error)
	}{
		{"schemas/flow-v1.json", flowfile.GenerateFlowJSONSchema},
		{"schemas/rule-v1.json", convert.GenerateRuleJSONSchema},
	} {
		data, err := s.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", s.path, err)
			os.Exit(1)
		}
		if err := os.WriteFile(s.path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote " + s.path)
	}
}
