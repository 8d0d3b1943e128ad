package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/pkg/convert"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
)

var schemaCmd = &cobra.Command{
	Use:       "schema <flow|rule>",
	Short:     "Print the JSON Schema of flow files or rule documents",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"flow", "rule"},
	RunE:      runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	switch args[0] {
	case "flow":
		data, err = flowfile.GenerateFlowJSONSchema()
	case "rule":
		data, err = convert.GenerateRuleJSONSchema()
	default:
		return fmt.Errorf("unknown schema %q (want flow or rule)", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
