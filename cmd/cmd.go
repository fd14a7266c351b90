// Package cmd provides CLI command implementations for DepSphere.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Globals holds the flags shared by every command.
type Globals struct {
	Verbose bool `short:"v" help:"Enable verbose output"`
	Quiet   bool `short:"q" help:"Suppress non-essential output"`

	stdout io.Writer
	stderr io.Writer
}

// Out returns the writer for command output.
func (g *Globals) Out() io.Writer {
	if g.stdout == nil {
		return os.Stdout
	}
	return g.stdout
}

// Err returns the writer for logs and progress.
func (g *Globals) Err() io.Writer {
	if g.stderr == nil {
		return os.Stderr
	}
	return g.stderr
}

// Logger returns a text logger on Err. The level is Debug with --verbose,
// Warn with --quiet and Info otherwise.
func (g *Globals) Logger() *slog.Logger {
	level := slog.LevelInfo
	switch {
	case g.Verbose:
		level = slog.LevelDebug
	case g.Quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(g.Err(), &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: colorLevel,
	}))
}

// colorLevel colors the level attribute. fatih/color disables itself when
// output is not a terminal.
func colorLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}

	var c *color.Color
	switch {
	case level >= slog.LevelError:
		c = color.New(color.FgRed, color.Bold)
	case level >= slog.LevelWarn:
		c = color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.Faint)
	}
	return slog.String(slog.LevelKey, c.Sprint(level.String()))
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals `embed:""`

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Analyze  AnalyzeCmd  `cmd:"" help:"Build the dependency graph of a solution or project"`
	Watch    WatchCmd    `cmd:"" help:"Build once, then keep the graph fresh as files change"`
	Stats    StatsCmd    `cmd:"" help:"Print edge statistics, cycles and hotspots of a graph file"`
	Diff     DiffCmd     `cmd:"" help:"Print the patch between two graph files"`
	Show     ShowCmd     `cmd:"" help:"Show the source of a node in a graph file"`
	MCP      MCPCmd      `cmd:"" help:"Start MCP server (stdio transport)"`
	Serve    ServeCmd    `cmd:"" help:"Start MCP server on the SDK stdio transport"`
	Snapshot SnapshotCmd `cmd:"" help:"Manage saved graph snapshots"`
	Setup    SetupCmd    `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("depsphere-go"),
		kong.Description("Weighted type dependency graphs for C# codebases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Writers(c.Out(), c.Err()),
		kong.Vars{
			"version":      Version,
			"hotspot_top":  strconv.FormatFloat(config.DefaultHotspotTop, 'g', -1, 64),
			"critical_top": strconv.FormatFloat(config.DefaultCriticalTop, 'g', -1, 64),
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}

// Helper functions

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// readGraph loads a graph JSON file and normalizes it.
func readGraph(path string) (*graph.DependencyGraph, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph: %w", err)
	}
	var g graph.DependencyGraph
	if err := json.Unmarshal(content, &g); err != nil {
		return nil, fmt.Errorf("parsing graph %s: %w", path, err)
	}
	return graph.NewDependencyGraph(g.Nodes, g.Edges), nil
}

// writeJSON writes v as indented JSON to path, creating parent directories.
func writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	content = append(content, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
