package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/scoring"
	"github.com/Benny93/depsphere-go/internal/view"
)

// AnalyzeCmd builds the dependency graph of a solution or project.
type AnalyzeCmd struct {
	Input string `arg:"" optional:"" default:"." help:"Solution, project, or directory containing one"`
	Out   string `short:"o" type:"path" help:"Write the graph JSON to this file"`
	JSON  bool   `help:"Print the graph JSON to stdout instead of a summary"`
	View  string `type:"path" help:"Write the view model JSON to this file"`
	Save  bool   `help:"Save the graph to the workspace snapshot store"`
	Top   int    `default:"5" help:"Number of top types in the summary"`

	AnalysisFlags `embed:""`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	ws, err := openWorkspace(ctx, g, c.Input, c.AnalysisFlags)
	if err != nil {
		return err
	}
	defer ws.Close()

	if !c.JSON && !g.Quiet {
		color.New(color.FgGreen).Fprintf(g.Out(), "Analyzing %s\n", ws.manifest)
	}

	start := time.Now()
	result, err := ws.build(ctx, progressPrinter(g))
	if errors.Is(err, context.Canceled) {
		ws.logger.Debug("analysis cancelled")
		return err
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if c.Out != "" {
		if err := writeJSON(c.Out, result); err != nil {
			return err
		}
	}
	if c.View != "" {
		v, err := view.Build(result, view.Options{
			Levels:      ws.opts.Levels,
			MethodNames: view.CollectMethodNames(result),
		})
		if err != nil {
			return err
		}
		if err := writeJSON(c.View, v); err != nil {
			return err
		}
	}
	if c.Save {
		if err := saveSnapshot(ctx, ws, result); err != nil {
			return err
		}
	}

	if c.JSON {
		return printJSON(g.Out(), result)
	}
	return printSummary(g, result, ws, c.Top, elapsed)
}

// progressPrinter writes build progress to stderr unless --quiet is set.
func progressPrinter(g *Globals) analyzer.ProgressFunc {
	if g.Quiet {
		return nil
	}
	return func(p analyzer.Progress) {
		fmt.Fprintln(g.Err(), p.String())
	}
}

func saveSnapshot(ctx context.Context, ws *workspace, g *graph.DependencyGraph) error {
	store, err := ws.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Save(ctx, ws.manifest, g); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	ws.logger.Info("snapshot saved", "path", ws.manifest, "nodes", len(g.Nodes))
	return nil
}

func printSummary(g *Globals, result *graph.DependencyGraph, ws *workspace, top int, elapsed time.Duration) error {
	if g.Quiet {
		return nil
	}

	ranked, err := scoring.Rank(result.Nodes, ws.opts.Levels.HotspotTopPercent, ws.opts.Levels.CriticalTopPercent)
	if err != nil {
		return err
	}

	out := g.Out()
	color.New(color.FgGreen).Fprintln(out, "\n✓ Analysis complete")
	fmt.Fprintf(out, "  Types:     %d\n", len(result.Nodes))
	fmt.Fprintf(out, "  Edges:     %d\n", len(result.Edges))
	fmt.Fprintf(out, "  Duration:  %.2fs\n", elapsed.Seconds())

	if len(ranked) > 0 && top > 0 {
		fmt.Fprintln(out, "\nTop types:")
		printRanked(out, ranked[:min(top, len(ranked))])
	}
	return nil
}
