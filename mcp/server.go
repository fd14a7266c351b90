// Package mcp provides the MCP (Model Context Protocol) server for DepSphere.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/scoring"
	"github.com/Benny93/depsphere-go/internal/view"
)

const (
	serverName    = "depsphere-go"
	serverVersion = "0.1.0"
)

// Server represents the MCP server.
type Server struct {
	source GraphSource
	levels config.Levels
	server *mcp.Server
}

// GraphSource supplies the current dependency graph. A realtime session
// satisfies it.
type GraphSource interface {
	Graph() *graph.DependencyGraph
	AnalysisPath() string
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over source. Levels drive the
// critical and hotspot classification in tool output.
func NewServer(source GraphSource, levels config.Levels) *Server {
	s := &Server{
		source: source,
		levels: levels,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	idSchema := &jsonschema.Schema{Type: "string", Description: "Fully qualified type id or unique simple name"}
	return []Tool{
		{
			Name:        "depsphere_find",
			Description: "Find types whose id contains the query, case-insensitively.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Substring of the type id"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "depsphere_hotspots",
			Description: "List the highest scoring types with their level and metrics.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"limit": {Type: "integer", Description: "Maximum number of results"},
					"level": {Type: "string", Description: "Only list types of this level: critical, hotspot or normal"},
				},
			},
		},
		{
			Name:        "depsphere_node",
			Description: "Show a type's metrics, its incoming and outgoing dependencies and its source excerpt.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":      idSchema,
					"context": {Type: "integer", Description: "Source lines shown around the declaration"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "depsphere_dependents",
			Description: "Blast radius analysis: find every type that depends on a given type, transitively.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":    idSchema,
					"depth": {Type: "integer", Description: "Maximum traversal depth"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "depsphere_stats",
			Description: "Edge statistics: node and edge counts and density per edge kind.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "depsphere_cycles",
			Description: "List dependency cycles (strongly connected components with more than one type).",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "depsphere_detect_changes",
			Description: "Map changed files to the types they declare and the types that depend on them.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"files": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "List of changed file paths",
					},
				},
				Required: []string{"files"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "depsphere://overview",
			Name:        "Graph Overview",
			Description: "Node and edge counts, level thresholds and the top critical types",
			MimeType:    "text/plain",
		},
		{
			URI:         "depsphere://graph",
			Name:        "Dependency Graph",
			Description: "The current dependency graph as JSON",
			MimeType:    "application/json",
		},
		{
			URI:         "depsphere://view",
			Name:        "Graph View",
			Description: "Positioned and colored nodes and edges as JSON",
			MimeType:    "application/json",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("tool %s failed: %v", name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	g := s.source.Graph()
	switch name {
	case "depsphere_find":
		query, _ := args["query"].(string)
		return handleFind(g, query, intArg(args, "limit", 20)), nil
	case "depsphere_hotspots":
		level, _ := args["level"].(string)
		return handleHotspots(g, s.levels, intArg(args, "limit", 10), scoring.Level(strings.ToLower(level)))
	case "depsphere_node":
		id, _ := args["id"].(string)
		return handleNode(g, s.levels, id, intArg(args, "context", 2))
	case "depsphere_dependents":
		id, _ := args["id"].(string)
		return handleDependents(g, id, intArg(args, "depth", 3)), nil
	case "depsphere_stats":
		return handleStats(g), nil
	case "depsphere_cycles":
		return handleCycles(g), nil
	case "depsphere_detect_changes":
		filesArg, _ := args["files"].([]any)
		files := make([]string, 0, len(filesArg))
		for _, f := range filesArg {
			if file, ok := f.(string); ok {
				files = append(files, file)
			}
		}
		return handleDetectChanges(g, files), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g := s.source.Graph()
	switch uri {
	case "depsphere://overview":
		return getOverview(g, s.source.AnalysisPath(), s.levels)
	case "depsphere://graph":
		return marshalResource(g)
	case "depsphere://view":
		v, err := view.Build(g, view.Options{Levels: s.levels})
		if err != nil {
			return "", err
		}
		return marshalResource(v)
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return errors.New("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// MCP over stdio requires compact JSON, one message per line.

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// Notifications carry no id and get no response.
		if _, ok := req["id"]; !ok {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

// Serve runs the server over the SDK's stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return resultResponse(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return resultResponse(id, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
			"resources": map[string]any{
				"listChanged": false,
			},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}
	return resultResponse(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return resultResponse(id, map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": result,
			},
		},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}
	return resultResponse(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	mimeType := "text/plain"
	for _, res := range s.ListResources() {
		if res.URI == uri {
			mimeType = res.MimeType
		}
	}

	return resultResponse(id, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      uri,
				"mimeType": mimeType,
				"text":     content,
			},
		},
	})
}

// registerTools registers every tool with the SDK server. All handlers
// dispatch through CallTool.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, s.toolHandler(tool.Name))
	}
}

func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", name, err)
			}
		}

		text, err := s.CallTool(ctx, name, args)
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

// Helper functions

func resultResponse(id any, result map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// intArg reads a positive integer argument. JSON numbers decode as float64.
// maxIntArg bounds integer tool arguments.
const maxIntArg = 1 << 20

func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key].(float64)
	if !ok || v < 1 {
		return fallback
	}
	return int(min(v, maxIntArg))
}

func marshalResource(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding resource: %w", err)
	}
	return string(data), nil
}

// resolveNodeID maps a symbol to a node id: an exact id first, then a
// unique simple-name match.
func resolveNodeID(g *graph.DependencyGraph, symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if _, ok := g.Node(symbol); ok {
		return symbol, nil
	}

	var matches []string
	for _, node := range g.Nodes {
		if node.ID == symbol || strings.HasSuffix(node.ID, "."+symbol) {
			matches = append(matches, node.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("type '%s' not found in graph", symbol)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("type '%s' is ambiguous: %s", symbol, strings.Join(matches, ", "))
	}
}

func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
