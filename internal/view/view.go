// Package view builds the presentation model of a dependency graph and
// opens the source of its nodes.
package view

import (
	"math"
	"os"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/parsers"
	"github.com/Benny93/depsphere-go/internal/scoring"
)

// Node and edge colors.
const (
	ColorCritical  = "#ef4444"
	ColorHotspot   = "#f97316"
	ColorNormal    = "#3b82f6"
	ColorInherit   = "#22c55e"
	ColorImplement = "#f59e0b"
	ColorReference = "#94a3b8"
)

// Node is a positioned, colored graph node.
type Node struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Z           float64           `json:"z"`
	Size        float64           `json:"size"`
	Color       string            `json:"color"`
	Level       scoring.Level     `json:"level"`
	Metrics     graph.TypeMetrics `json:"metrics"`
	MethodNames []string          `json:"methodNames,omitempty"`
}

// Edge is a colored graph edge. Kind is lowercase.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

// GraphView is the render model of a graph.
type GraphView struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Options control view construction.
type Options struct {
	Levels config.Levels

	// MethodNames optionally lists method names per node id.
	MethodNames map[string][]string
}

// DefaultOptions returns options with the default level thresholds.
func DefaultOptions() Options {
	return Options{Levels: config.Default().Levels}
}

// Build lays nodes out on a circle in id order. Size grows with score,
// radius with size, and depth with the in-degree difference from the
// average.
func Build(g *graph.DependencyGraph, opts Options) (*GraphView, error) {
	if g == nil {
		g = graph.Empty()
	}

	levels, err := scoring.Classify(g.Nodes, opts.Levels.HotspotTopPercent, opts.Levels.CriticalTopPercent)
	if err != nil {
		return nil, err
	}

	n := len(g.Nodes)
	avgInDegree := 0.0
	if n > 0 {
		total := 0
		for _, node := range g.Nodes {
			total += node.Metrics.InDegree
		}
		avgInDegree = float64(total) / float64(n)
	}

	v := &GraphView{
		Nodes: make([]Node, 0, n),
		Edges: make([]Edge, 0, len(g.Edges)),
	}
	for i, node := range g.Nodes {
		size := 8 + node.Metrics.WeightScore*24
		radius := 30 + size*0.2
		angle := 2 * math.Pi * float64(i) / float64(n)
		level := levels[node.ID]

		v.Nodes = append(v.Nodes, Node{
			ID:          node.ID,
			Label:       node.ID,
			X:           math.Cos(angle) * radius,
			Y:           math.Sin(angle) * radius,
			Z:           (float64(node.Metrics.InDegree) - avgInDegree) * 4,
			Size:        size,
			Color:       nodeColor(level),
			Level:       level,
			Metrics:     node.Metrics,
			MethodNames: opts.MethodNames[node.ID],
		})
	}

	for _, edge := range g.Edges {
		v.Edges = append(v.Edges, Edge{
			From:  edge.From,
			To:    edge.To,
			Kind:  edge.Kind.String(),
			Color: edgeColor(edge.Kind),
		})
	}
	return v, nil
}

// CollectMethodNames parses the declaring file of every node and returns
// the direct method names per node id. Unreadable files are skipped.
func CollectMethodNames(g *graph.DependencyGraph) map[string][]string {
	names := make(map[string][]string)
	if g == nil {
		return names
	}

	parser := parsers.NewCSharpParser()
	parsed := make(map[string]bool)
	for _, node := range g.Nodes {
		if node.Location == nil || parsed[node.Location.FilePath] {
			continue
		}
		path := node.Location.FilePath
		parsed[path] = true

		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		result, err := parser.Parse(path, content)
		if err != nil {
			continue
		}
		for _, decl := range result.Types {
			if methods := decl.MethodNames(); len(methods) > 0 {
				names[decl.ID()] = append(names[decl.ID()], methods...)
			}
		}
	}
	return names
}

func nodeColor(level scoring.Level) string {
	switch level {
	case scoring.LevelCritical:
		return ColorCritical
	case scoring.LevelHotspot:
		return ColorHotspot
	default:
		return ColorNormal
	}
}

func edgeColor(kind graph.EdgeKind) string {
	switch kind {
	case graph.EdgeInherit:
		return ColorInherit
	case graph.EdgeImplement:
		return ColorImplement
	default:
		return ColorReference
	}
}
