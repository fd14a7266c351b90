package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/Benny93/depsphere-go/internal/storage"
)

// SnapshotCmd groups the snapshot store commands.
type SnapshotCmd struct {
	List   SnapshotListCmd   `cmd:"" help:"List saved snapshots"`
	Export SnapshotExportCmd `cmd:"" help:"Write a saved snapshot as graph JSON"`
	Delete SnapshotDeleteCmd `cmd:"" help:"Delete a saved snapshot"`
}

// StoreFlags locate the snapshot store.
type StoreFlags struct {
	Workspace string `short:"w" default:"." type:"path" help:"Workspace root holding the .depsphere store"`
}

func (f StoreFlags) open(readOnly bool) (*storage.BadgerBackend, error) {
	dbPath := filepath.Join(f.Workspace, filepath.FromSlash(storeDir))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no snapshot store at %s. Run 'depsphere-go analyze --save' first", f.Workspace)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// SnapshotListCmd lists saved snapshots.
type SnapshotListCmd struct {
	StoreFlags `embed:""`
}

// Run executes the snapshot list command.
func (c *SnapshotListCmd) Run(g *Globals) error {
	store, err := c.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	infos, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(g.Out(), "No saved snapshots found")
		return nil
	}

	tw := tabwriter.NewWriter(g.Out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPES\tEDGES\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.AnalysisPath, info.NodeCount, info.EdgeCount, info.SavedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// SnapshotExportCmd writes a saved snapshot as graph JSON.
type SnapshotExportCmd struct {
	Path string `arg:"" help:"Analysis path the snapshot was saved under"`
	Out  string `short:"o" type:"path" help:"Output file (default: stdout)"`

	StoreFlags `embed:""`
}

// Run executes the snapshot export command.
func (c *SnapshotExportCmd) Run(g *Globals) error {
	store, err := c.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snapshot, err := store.Load(context.Background(), c.Path)
	if err != nil {
		return err
	}
	if c.Out == "" {
		return printJSON(g.Out(), snapshot.Graph)
	}
	return writeJSON(c.Out, snapshot.Graph)
}

// SnapshotDeleteCmd deletes a saved snapshot.
type SnapshotDeleteCmd struct {
	Path  string `arg:"" help:"Analysis path the snapshot was saved under"`
	Force bool   `short:"f" help:"Skip confirmation"`

	StoreFlags `embed:""`
}

// Run executes the snapshot delete command.
func (c *SnapshotDeleteCmd) Run(g *Globals) error {
	if !c.Force {
		fmt.Fprintf(g.Out(), "Delete snapshot of %s? [y/N] ", c.Path)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(g.Out(), "Aborted")
			return nil
		}
	}

	store, err := c.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(context.Background(), c.Path); err != nil {
		return err
	}
	fmt.Fprintf(g.Out(), "Deleted snapshot of %s\n", c.Path)
	return nil
}
