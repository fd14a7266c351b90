package cmd

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/Benny93/depsphere-go/internal/realtime"
	"github.com/Benny93/depsphere-go/internal/storage"
)

// WatchCmd builds the graph once and then applies workspace changes.
type WatchCmd struct {
	Input string `arg:"" optional:"" default:"." help:"Solution, project, or directory containing one"`
	Save  bool   `help:"Save every updated graph to the workspace snapshot store"`

	AnalysisFlags `embed:""`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	ws, err := openWorkspace(ctx, g, c.Input, c.AnalysisFlags)
	if err != nil {
		return err
	}
	defer ws.Close()

	initial, err := ws.build(ctx, progressPrinter(g))
	if err != nil {
		return err
	}

	var store storage.SnapshotStore
	if c.Save {
		badger, err := ws.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = badger.Close() }()
		if err := badger.Save(ctx, ws.manifest, initial); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		store = badger
	}

	session := ws.session(initial, store)
	unsubscribe := session.Subscribe(func(u realtime.Update) {
		printUpdate(g, u)
	})
	defer unsubscribe()

	out := g.Out()
	fmt.Fprintln(out, "## Watch Mode")
	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", ws.root)
	fmt.Fprintf(out, "Graph: %d types, %d edges\n\n", len(initial.Nodes), len(initial.Edges))

	if err := ws.watch(ctx, session); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(out, "\nWatch mode stopped.")
	return nil
}

func printUpdate(g *Globals, u realtime.Update) {
	if g.Quiet {
		return
	}
	p := u.Patch
	color.New(color.FgCyan).Fprintf(g.Out(), "[%s] ", u.Mode)
	fmt.Fprintf(g.Out(), "%d events: +%d/-%d types, +%d/-%d edges (%d types total)\n",
		len(u.Events),
		len(p.UpsertNodes), len(p.RemoveNodeIDs),
		len(p.UpsertEdges), len(p.RemoveEdges),
		len(u.Graph.Nodes),
	)
}
