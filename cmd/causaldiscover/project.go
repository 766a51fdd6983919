package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
	"github.com/efebarandurmaz/causaldiscover/internal/report"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
)

func runDiff(cmd *cobra.Command, configPath string, ids []string, weight, confidence float64, jsonOutput bool) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("weight") {
		weight = cfg.Thresholds.Weight
	}
	if !cmd.Flags().Changed("confidence") {
		confidence = cfg.Thresholds.Confidence
	}

	store, err := snapshot.NewStore(cfg.Snapshot.Dir, cfg.Snapshot.HistoryLimit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		list := store.List()
		if len(list) < 2 {
			return fmt.Errorf("need two snapshots to diff, found %d in %s", len(list), cfg.Snapshot.Dir)
		}
		ids = []string{list[1].ID, list[0].ID}
	}
	from, err := store.Load(ids[0])
	if err != nil {
		return err
	}
	to, err := store.Load(ids[1])
	if err != nil {
		return err
	}

	diff := snapshot.FindDifferencesBetweenGraphs(from.Graph, to.Graph, weight, confidence)
	if jsonOutput {
		data, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printDiff(os.Stdout, from, to, diff)
	return nil
}

func printDiff(w io.Writer, from, to *snapshot.Snapshot, diff *snapshot.GraphDifferences) {
	fmt.Fprintf(w, "%s (generation %d, %s) -> %s (generation %d, %s)\n",
		from.ID, from.Generation, from.Algorithm, to.ID, to.Generation, to.Algorithm)
	if diff.Empty() {
		fmt.Fprintln(w, "  no differences")
		return
	}
	for _, r := range diff.Added {
		fmt.Fprintf(w, "  + %s\n", describe(r))
	}
	for _, r := range diff.Removed {
		fmt.Fprintf(w, "  - %s\n", describe(r))
	}
	for _, r := range diff.Reversed {
		fmt.Fprintf(w, "  ~ %s (reversed)\n", describe(r))
	}
}

func describe(r causal.Relationship) string {
	s := r.Source.ColumnName + " -> " + r.Target.ColumnName
	if r.Weight != nil {
		s += fmt.Sprintf(" [w=%.3f]", *r.Weight)
	}
	if r.Confidence != nil {
		s += fmt.Sprintf(" [c=%.3f]", *r.Confidence)
	}
	return s
}

func listSnapshots(configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := snapshot.NewStore(cfg.Snapshot.Dir, cfg.Snapshot.HistoryLimit)
	if err != nil {
		return err
	}
	list := store.List()
	if len(list) == 0 {
		fmt.Printf("No snapshots in %s\n", cfg.Snapshot.Dir)
		return nil
	}
	for _, s := range list {
		fmt.Printf("%s  gen %-4d %-13s %3d variables %4d relationships  %s\n",
			s.ID, s.Generation, s.Algorithm, s.VariableCount, s.RelationshipCount,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runReport(projectPath, outputPath, format string, weight, confidence float64) error {
	project, err := readProject(projectPath)
	if err != nil {
		return err
	}
	if project == nil || project.Results.Graph == nil {
		return fmt.Errorf("project %s has no discovery results", projectPath)
	}

	w := io.Writer(os.Stdout)
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	g := project.Results.Graph
	switch format {
	case "", report.FormatCSV:
		return report.WriteCSV(w, report.Generate(g, project.Constraints))
	case report.FormatDOT:
		_, err = io.WriteString(w, report.ExportDOT(g, project.Constraints, weight, confidence))
	case report.FormatMermaid:
		_, err = io.WriteString(w, report.ExportMermaid(g, weight, confidence))
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	return err
}

func opNames(edge bool) string {
	var names []string
	if edge {
		for name := range constraints.EdgeOps {
			names = append(names, name)
		}
	} else {
		for name := range constraints.VariableOps {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// runConstraints applies one edit to the constraints stored in a project.
// The next discover run picks them up.
func runConstraints(projectPath string, args []string) error {
	project, err := readProject(projectPath)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project %s does not exist; run discover first", projectPath)
	}
	op := strings.ToLower(args[0])

	if edit, ok := constraints.VariableOps[op]; ok {
		if len(args) != 2 {
			return fmt.Errorf("%s takes one column", op)
		}
		if err := checkColumns(project, args[1]); err != nil {
			return err
		}
		project.Constraints = edit(project.Constraints, causal.VariableReference{ColumnName: args[1]})
		return saveConstraints(projectPath, project)
	}

	edit, ok := constraints.EdgeOps[op]
	if !ok {
		return fmt.Errorf("unknown operation %q (edge: %s; variable: %s)", op, opNames(true), opNames(false))
	}
	if len(args) != 3 || args[1] == args[2] {
		return fmt.Errorf("%s takes two different columns", op)
	}
	if err := checkColumns(project, args[1], args[2]); err != nil {
		return err
	}
	rel, found := graph.RelationshipForColumnNames(project.Results.Graph, args[1], args[2])
	if !found {
		rel = causal.NewRelationship(
			causal.VariableReference{ColumnName: args[1]},
			causal.VariableReference{ColumnName: args[2]},
		)
	}
	project.Constraints = edit(project.Constraints, rel)
	return saveConstraints(projectPath, project)
}

func checkColumns(project *snapshot.Project, columns ...string) error {
	for _, col := range columns {
		if !slices.Contains(project.InModelColumnNames, col) {
			return errors.New("column " + col + " is not in the model")
		}
	}
	return nil
}

func saveConstraints(projectPath string, project *snapshot.Project) error {
	if err := writeProject(projectPath, project); err != nil {
		return err
	}
	data, err := json.MarshalIndent(project.Constraints, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
