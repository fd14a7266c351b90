package cmd

import (
	"context"
	"os"

	"github.com/Benny93/depsphere-go/mcp"
)

// MCPCmd starts the MCP server over a live graph.
type MCPCmd struct {
	Input string `arg:"" optional:"" default:"." help:"Solution, project, or directory containing one"`
	Watch bool   `short:"w" help:"Enable file watching"`

	AnalysisFlags `embed:""`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	return serveMCP(g, c.Input, c.Watch, c.AnalysisFlags, func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, os.Stdin, os.Stdout)
	})
}

// ServeCmd starts the MCP server on the SDK stdio transport.
type ServeCmd struct {
	Input string `arg:"" optional:"" default:"." help:"Solution, project, or directory containing one"`
	Watch bool   `short:"w" help:"Enable file watching"`

	AnalysisFlags `embed:""`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	return serveMCP(g, c.Input, c.Watch, c.AnalysisFlags, func(ctx context.Context, server *mcp.Server) error {
		return server.Serve(ctx)
	})
}

// serveMCP builds the graph and runs serve over a live session. Nothing but
// protocol messages may reach stdout, so progress is not printed.
func serveMCP(g *Globals, input string, watch bool, flags AnalysisFlags, serve func(context.Context, *mcp.Server) error) error {
	ctx, stop := signalContext()
	defer stop()

	ws, err := openWorkspace(ctx, g, input, flags)
	if err != nil {
		return err
	}
	defer ws.Close()

	initial, err := ws.build(ctx, nil)
	if err != nil {
		return err
	}
	session := ws.session(initial, nil)

	if watch {
		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		defer func() {
			cancel()
			<-done
		}()
		go func() {
			defer close(done)
			if err := ws.watch(watchCtx, session); err != nil {
				ws.logger.Error("watching workspace", "error", err)
			}
		}()
		ws.logger.Info("file watching enabled", "root", ws.root)
	}

	ws.logger.Info("starting MCP server", "types", len(initial.Nodes))
	return serve(ctx, mcp.NewServer(session, ws.opts.Levels))
}
