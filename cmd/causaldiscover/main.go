package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/config"
	"github.com/efebarandurmaz/causaldiscover/internal/report"
)

var version = "dev"

func main() {
	var (
		configPath  string
		dataPath    string
		projectPath string
		columns     string
		algorithm   string
		jsonReport  bool
	)

	rootCmd := &cobra.Command{
		Use:     "causaldiscover",
		Short:   "Interactive causal discovery over tabular data",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Run causal discovery once and save the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(configPath, dataPath, projectPath, columns, algorithm, jsonReport)
		},
	}
	discoverCmd.Flags().StringVar(&dataPath, "data", "", "CSV dataset with a header row")
	discoverCmd.Flags().StringVar(&projectPath, "project", "project.json", "Project file to read constraints from and write results to")
	discoverCmd.Flags().StringVar(&columns, "columns", "", "Comma-separated columns to include in the model (default: all non-text columns)")
	discoverCmd.Flags().StringVar(&algorithm, "algorithm", "", "Discovery algorithm (default from config)")
	discoverCmd.Flags().BoolVar(&jsonReport, "json", false, "Output metrics as JSON")
	_ = discoverCmd.MarkFlagRequired("data")

	var (
		algorithms []string
	)
	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several algorithms concurrently and diff each against the first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(configPath, dataPath, projectPath, columns, algorithms, jsonReport)
		},
	}
	compareCmd.Flags().StringVar(&dataPath, "data", "", "CSV dataset with a header row")
	compareCmd.Flags().StringVar(&projectPath, "project", "", "Project file to read constraints from")
	compareCmd.Flags().StringVar(&columns, "columns", "", "Comma-separated columns to include in the model")
	compareCmd.Flags().StringSliceVar(&algorithms, "algorithms", []string{"NOTEARS", "DirectLiNGAM", "PC"}, "Algorithms to run; the first is the baseline")
	compareCmd.Flags().BoolVar(&jsonReport, "json", false, "Output metrics as JSON")
	_ = compareCmd.MarkFlagRequired("data")

	var (
		weight     float64
		confidence float64
	)
	diffCmd := &cobra.Command{
		Use:   "diff [from-id to-id]",
		Short: "Show differences between two stored snapshots (default: the latest two)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or two snapshot ids, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, configPath, args, weight, confidence, jsonReport)
		},
	}
	diffCmd.Flags().Float64Var(&weight, "weight", 0, "Weight threshold (default from config)")
	diffCmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence threshold (default from config)")
	diffCmd.Flags().BoolVar(&jsonReport, "json", false, "Output differences as JSON")

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSnapshots(configPath)
		},
	}

	var (
		outputPath string
		format     string
	)
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Export the relationships of a project as CSV, DOT or Mermaid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(projectPath, outputPath, format, weight, confidence)
		},
	}
	reportCmd.Flags().StringVar(&projectPath, "project", "project.json", "Project file")
	reportCmd.Flags().StringVar(&outputPath, "output", "", "Output file (default: stdout)")
	reportCmd.Flags().StringVar(&format, "format", report.FormatCSV, "Output format: csv, dot or mermaid")
	reportCmd.Flags().Float64Var(&weight, "weight", 0, "Weight threshold for dot and mermaid")
	reportCmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence threshold for dot and mermaid")

	constraintsCmd := &cobra.Command{
		Use:   "constraints <op> <column> [target]",
		Short: "Edit the constraints of a project file",
		Long: "Operations on an edge: " + opNames(true) + ".\n" +
			"Operations on a variable: " + opNames(false) + ".",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConstraints(projectPath, args)
		},
	}
	constraintsCmd.Flags().StringVar(&projectPath, "project", "project.json", "Project file")

	var (
		embeddedWorker bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an interactive discovery session over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, dataPath, projectPath, columns, embeddedWorker)
		},
	}
	serveCmd.Flags().StringVar(&dataPath, "data", "", "CSV dataset to load at startup")
	serveCmd.Flags().StringVar(&projectPath, "project", "", "Project file to restore constraints and columns from")
	serveCmd.Flags().StringVar(&columns, "columns", "", "Comma-separated columns to include in the model")
	serveCmd.Flags().BoolVar(&embeddedWorker, "embedded-worker", false, "Run a Temporal worker in-process (temporal transport only)")

	algorithmsCmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List available discovery algorithms",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available discovery algorithms:")
			fmt.Println()
			for _, a := range causal.Algorithms {
				fmt.Printf("  %s\n", a)
			}
			fmt.Println()
			fmt.Println("Configure in causaldiscover.yaml or via environment:")
			fmt.Println("  CAUSALDISCOVER_DISCOVERY_ALGORITHM=PC")
		},
	}

	rootCmd.AddCommand(discoverCmd, compareCmd, diffCmd, snapshotsCmd, reportCmd, constraintsCmd, serveCmd, algorithmsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func splitColumns(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
