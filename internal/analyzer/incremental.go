package analyzer

import (
	"fmt"
	"os"

	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/parsers"
)

var sourceParser = parsers.NewCSharpParser()

// FileAnalysis is the syntactic analysis of one file. FanOut, InDegree and
// WeightScore of its nodes are zero; callers recompute them graph-wide.
type FileAnalysis struct {
	Nodes []graph.DependencyNode
	Edges []graph.DependencyEdge
}

// Empty reports whether the analysis found no types.
func (a FileAnalysis) Empty() bool {
	return len(a.Nodes) == 0
}

// AnalyzeFile analyzes one source file against knownIDs. A missing or
// unreadable file yields an empty analysis.
func AnalyzeFile(path string, knownIDs []string) (FileAnalysis, error) {
	if path == "" {
		return FileAnalysis{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return FileAnalysis{}, nil
	}
	return AnalyzeSource(path, content, knownIDs)
}

// AnalyzeSource analyzes C# source as if read from path. References resolve
// against knownIDs plus the types declared in the source.
func AnalyzeSource(path string, content []byte, knownIDs []string) (FileAnalysis, error) {
	result, err := sourceParser.Parse(path, content)
	if err != nil {
		return FileAnalysis{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(result.Types) == 0 {
		return FileAnalysis{}, nil
	}

	nodes := make([]graph.DependencyNode, 0, len(result.Types))
	universe := make([]string, 0, len(knownIDs)+len(result.Types))
	universe = append(universe, knownIDs...)
	for _, decl := range result.Types {
		loc := decl.Location
		nodes = append(nodes, graph.DependencyNode{
			ID: decl.ID(),
			Metrics: graph.TypeMetrics{
				MethodCount:    decl.Counts.Methods,
				StatementCount: decl.Counts.Statements,
				BranchCount:    decl.Counts.Branches,
				CallSiteCount:  decl.Counts.CallSites,
			},
			Location: &loc,
		})
		universe = append(universe, decl.ID())
	}

	resolver := NewResolver(universe)
	edges := make(map[graph.DependencyEdge]struct{})
	add := func(from, raw, namespace string, kind graph.EdgeKind) {
		to, ok := resolver.Resolve(namespace, raw)
		if !ok || to == from {
			return
		}
		edges[graph.DependencyEdge{From: from, To: to, Kind: kind}] = struct{}{}
	}

	for _, decl := range result.Types {
		from := decl.ID()
		for i, base := range decl.BaseTypes {
			add(from, base, decl.Namespace, baseEdgeKind(decl.Kind, i))
		}
		for _, ref := range decl.References {
			add(from, ref.Text, decl.Namespace, graph.EdgeReference)
		}
		for _, access := range decl.MemberAccesses {
			add(from, access.Receiver, decl.Namespace, graph.EdgeReference)
		}
	}

	// Keep the first declaration of an id that is declared twice in a file.
	unique := make([]graph.DependencyNode, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			unique = append(unique, n)
		}
	}
	graph.SortNodes(unique)

	edgeList := make([]graph.DependencyEdge, 0, len(edges))
	for e := range edges {
		edgeList = append(edgeList, e)
	}
	graph.SortEdges(edgeList)

	return FileAnalysis{Nodes: unique, Edges: edgeList}, nil
}

// baseEdgeKind classifies the i-th base-list entry without semantic
// information: interfaces only inherit, classes and records inherit from
// the first entry and implement the rest, and structs only implement.
func baseEdgeKind(kind parsers.TypeKind, i int) graph.EdgeKind {
	switch kind {
	case parsers.KindInterface:
		return graph.EdgeInherit
	case parsers.KindClass, parsers.KindRecord:
		if i == 0 {
			return graph.EdgeInherit
		}
		return graph.EdgeImplement
	default:
		return graph.EdgeImplement
	}
}
