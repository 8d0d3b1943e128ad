package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/scenario"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// exitError carries a process exit code through cobra without printing a
// second error message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

var (
	metrics     = telemetry.NewMetrics()
	dumpMetrics bool
)

func main() {
	logger := telemetry.SetupLogger()
	ctx := telemetry.WithLogger(context.Background(), logger)

	err := rootCmd.ExecuteContext(ctx)
	if dumpMetrics {
		if werr := metrics.WriteText(os.Stderr); werr != nil {
			logger.Warn("write metrics", "error", werr)
		}
	}
	if err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "flowsim",
	Short:         "Validate, simulate and convert decision flows",
	Long:          "flowsim checks flow graphs for structural problems, walk them against a test configuration, and translate rule documents to and from graphs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flowsim %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Dump Prometheus metrics to stderr on exit")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- shared helpers ---

// loadFlow reads a flow file. Flows without a name take the file name.
func loadFlow(path string) (graph.Graph, error) {
	doc, err := flowfile.Load(path)
	if err != nil {
		return graph.Graph{}, err
	}
	g := doc.Graph()
	if g.Name() == "" {
		g = g.Renamed(scenario.FlowName(path))
	}
	return g, nil
}

// loadConfig merges an optional configuration file with repeated
// --var key=value flags; flags win.
func loadConfig(path string, vars []string) (eval.Config, error) {
	cfg := eval.Config{}
	if path != "" {
		loaded, err := scenario.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	overrides, err := parseVars(vars)
	if err != nil {
		return nil, err
	}
	for k, v := range overrides {
		cfg[k] = v
	}
	return cfg, nil
}

// parseVars splits key=value pairs.
func parseVars(vars []string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for _, kv := range vars {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", kv)
		}
		out[key] = value
	}
	return out, nil
}
