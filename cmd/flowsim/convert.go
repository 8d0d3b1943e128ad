package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/convert"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/validate"
)

var (
	convertOut    string
	convertOutDir string
	convertFormat string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Translate between rule documents and flow graphs",
}

var convertImportCmd = &cobra.Command{
	Use:   "import <rules.json>",
	Short: "Build flow files from a rule document",
	Long: `Recognizes endpoint, decision and evaluation-chain rule documents and lays each
one out as a flow graph. A single rule is written to --out (or stdout); an array of
rules is written one file per rule into --out-dir.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvertImport,
}

var convertExportCmd = &cobra.Command{
	Use:   "export <flow>",
	Short: "Derive a rule document from a flow file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvertExport,
}

func init() {
	convertImportCmd.Flags().StringVarP(&convertOut, "out", "o", "", "Output flow file (.json, .yaml or .hcl)")
	convertImportCmd.Flags().StringVar(&convertOutDir, "out-dir", "", "Output directory when the document holds several rules")
	convertImportCmd.Flags().StringVar(&convertFormat, "format", "json", "Flow file format for stdout and --out-dir (json, yaml, hcl)")

	convertCmd.AddCommand(convertImportCmd)
	convertCmd.AddCommand(convertExportCmd)
}

func runConvertImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rule document: %w", err)
	}
	graphs, err := convert.ImportAll(data)
	if err != nil {
		return err
	}
	logger := telemetry.FromContext(cmd.Context())

	if len(graphs) > 1 || convertOutDir != "" {
		if convertOutDir == "" {
			return fmt.Errorf("%s holds %d rules; use --out-dir", args[0], len(graphs))
		}
		if err := os.MkdirAll(convertOutDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		for i, g := range graphs {
			name := g.Name()
			if name == "" {
				name = fmt.Sprintf("rule-%d", i+1)
			}
			path := filepath.Join(convertOutDir, name+"."+convertFormat)
			if err := flowfile.Save(path, importedDocument(cmd, g)); err != nil {
				return err
			}
			logger.Info("rule imported", "rule", name, "file", path)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("✓"), path)
		}
		return nil
	}

	doc := importedDocument(cmd, graphs[0])
	if convertOut != "" {
		if err := flowfile.Save(convertOut, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("✓"), convertOut)
		return nil
	}
	out, err := flowfile.Marshal(doc, flowfile.Format(convertFormat))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// importedDocument validates g and wraps it for saving.
func importedDocument(cmd *cobra.Command, g graph.Graph) *flowfile.Document {
	res := validate.ValidateContext(cmd.Context(), g)
	metrics.ObserveValidation(res.IsValid)
	return flowfile.New(g, &res)
}

func runConvertExport(cmd *cobra.Command, args []string) error {
	g, err := loadFlow(args[0])
	if err != nil {
		return err
	}
	data, err := convert.Export(g)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
