package graph

import (
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// EdgeKindStat is the count and density of one edge kind.
type EdgeKindStat struct {
	Kind    EdgeKind `json:"kind"`
	Count   int      `json:"count"`
	Density float64  `json:"density"`
}

// EdgeStatistics summarizes how densely a graph is connected.
type EdgeStatistics struct {
	NodeCount                 int            `json:"nodeCount"`
	EdgeCount                 int            `json:"edgeCount"`
	PossibleDirectedEdgeCount int            `json:"possibleDirectedEdgeCount"`
	OverallDensity            float64        `json:"overallDensity"`
	KindStats                 []EdgeKindStat `json:"kindStats"`
}

// Statistics computes edge statistics for g. Density is the edge count over
// the n(n-1) possible directed edges, and 0 for graphs with fewer than two
// nodes.
func Statistics(g *DependencyGraph) EdgeStatistics {
	n := len(g.Nodes)
	possible := 0
	if n > 1 {
		possible = n * (n - 1)
	}

	counts := make(map[EdgeKind]int, len(EdgeKinds))
	for _, edge := range g.Edges {
		counts[edge.Kind]++
	}

	stats := EdgeStatistics{
		NodeCount:                 n,
		EdgeCount:                 len(g.Edges),
		PossibleDirectedEdgeCount: possible,
		OverallDensity:            ratio(len(g.Edges), possible),
		KindStats:                 make([]EdgeKindStat, 0, len(EdgeKinds)),
	}
	for _, kind := range EdgeKinds {
		stats.KindStats = append(stats.KindStats, EdgeKindStat{
			Kind:    kind,
			Count:   counts[kind],
			Density: ratio(counts[kind], possible),
		})
	}
	return stats
}

// Cycles returns the strongly connected components of g that contain more
// than one node. Each component is sorted by id and the components are
// ordered by their first id.
func Cycles(g *DependencyGraph) [][]string {
	if len(g.Nodes) == 0 {
		return nil
	}

	index := make(map[string]int64, len(g.Nodes))
	dg := simple.NewDirectedGraph()
	for i, node := range g.Nodes {
		index[node.ID] = int64(i)
		dg.AddNode(simple.Node(int64(i)))
	}
	for _, edge := range g.Edges {
		from, okFrom := index[edge.From]
		to, okTo := index[edge.To]
		if !okFrom || !okTo || from == to {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(from), simple.Node(to)))
	}

	var cycles [][]string
	for _, component := range topo.TarjanSCC(dg) {
		if len(component) < 2 {
			continue
		}
		ids := make([]string, 0, len(component))
		for _, node := range component {
			ids = append(ids, g.Nodes[node.ID()].ID)
		}
		slices.Sort(ids)
		cycles = append(cycles, ids)
	}
	slices.SortFunc(cycles, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return cycles
}

func ratio(numerator, denominator int) float64 {
	if denominator <= 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}
