package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const mcpServerName = "depsphere-go"

// SetupCmd registers the MCP server with an AI client.
type SetupCmd struct {
	Input  string `arg:"" optional:"" default:"." help:"Solution, project, or directory the server analyzes"`
	Client string `enum:"claude,cursor,qwen" default:"claude" help:"Client to configure (claude|cursor|qwen)"`
	Global bool   `help:"Write the client's global configuration instead of the project-local one"`
	File   string `type:"path" help:"Custom configuration file path"`
	Print  bool   `help:"Print the server entry instead of writing a file"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	input, err := filepath.Abs(c.Input)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	entry := serverEntry(input)

	if c.Print {
		return printJSON(g.Out(), map[string]any{
			"mcpServers": map[string]any{mcpServerName: entry},
		})
	}

	path := c.File
	switch {
	case path != "":
	case c.Global:
		path, err = globalConfigPath(c.Client)
		if err != nil {
			return err
		}
	default:
		path = localConfigPath(searchDir(input), c.Client)
	}

	if err := mergeServerEntry(path, entry); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(g.Out(), "✓ Registered %s in %s\n", mcpServerName, path)
	return nil
}

func serverEntry(input string) map[string]any {
	return map[string]any{
		"command": mcpServerName,
		"args":    []string{"mcp", "--watch", input},
	}
}

// mergeServerEntry sets the depsphere entry under mcpServers in the JSON
// file at path and keeps every other key.
func mergeServerEntry(path string, entry map[string]any) error {
	config := map[string]any{}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading config: %w", err)
	default:
		if err := json.Unmarshal(content, &config); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	servers, _ := config["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[mcpServerName] = entry
	config["mcpServers"] = servers

	return writeJSON(path, config)
}

// Path helpers

func localConfigPath(basePath, client string) string {
	return filepath.Join(basePath, clientConfigDir(client), "mcp.json")
}

func globalConfigPath(client string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(homeDir, clientConfigDir(client), "global", "mcp.json"), nil
}

func clientConfigDir(client string) string {
	switch client {
	case "cursor":
		return ".cursor"
	case "qwen":
		return ".qwen"
	default:
		return ".claude"
	}
}
