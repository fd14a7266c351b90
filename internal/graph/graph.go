package graph

import (
	"path/filepath"
	"strings"
	"sync"
)

// WorkingGraph is a mutable, id-keyed dependency graph used while a build or
// an incremental update is in progress. Call Snapshot to obtain the immutable
// DependencyGraph handed to consumers.
//
// Edges are keyed by value; there is no separate edge id. Removing a node
// cascades to every edge where the node appears as source or target.
// Adjacency indexes keep GetOutgoing and GetIncoming O(result).
type WorkingGraph struct {
	mu    sync.RWMutex
	nodes map[string]DependencyNode
	edges map[DependencyEdge]struct{}

	// Secondary indexes, kept in sync by add/remove helpers.
	outgoing map[string]map[DependencyEdge]struct{}
	incoming map[string]map[DependencyEdge]struct{}
}

// NewWorkingGraph creates a new empty working graph.
func NewWorkingGraph() *WorkingGraph {
	return &WorkingGraph{
		nodes:    make(map[string]DependencyNode),
		edges:    make(map[DependencyEdge]struct{}),
		outgoing: make(map[string]map[DependencyEdge]struct{}),
		incoming: make(map[string]map[DependencyEdge]struct{}),
	}
}

// FromSnapshot creates a working graph holding a copy of g.
func FromSnapshot(g *DependencyGraph) *WorkingGraph {
	w := NewWorkingGraph()
	if g == nil {
		return w
	}
	for _, node := range g.Nodes {
		w.nodes[node.ID] = node.Clone()
	}
	for _, edge := range g.Edges {
		w.addEdgeLocked(edge)
	}
	return w
}

// NodeCount returns the number of nodes.
func (g *WorkingGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *WorkingGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// AddNode adds a node, replacing any existing node with the same id.
func (g *WorkingGraph) AddNode(node DependencyNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node.Clone()
}

// GetNode returns the node with the given id.
func (g *WorkingGraph) GetNode(id string) (DependencyNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	return node, ok
}

// HasNode reports whether a node with the given id exists.
func (g *WorkingGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeIDs returns the ids of all nodes in unspecified order.
func (g *WorkingGraph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// SetMetrics replaces the metrics of an existing node.
// Returns false if the node does not exist.
func (g *WorkingGraph) SetMetrics(id string, metrics TypeMetrics) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	node.Metrics = metrics
	g.nodes[id] = node
	return true
}

// RemoveNode removes a node and cascade-deletes all edges that touch it.
// Returns true if the node existed.
func (g *WorkingGraph) RemoveNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	g.cascadeEdgesForNode(id)
	return true
}

// NodesByFile returns the ids of nodes declared in filePath. Paths are
// compared after cleaning and case-insensitively.
func (g *WorkingGraph) NodesByFile(filePath string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	target := filepath.Clean(filePath)
	ids := make([]string, 0)
	for id, node := range g.nodes {
		if node.Location == nil || node.Location.FilePath == "" {
			continue
		}
		if strings.EqualFold(filepath.Clean(node.Location.FilePath), target) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddEdge inserts an edge. Self edges and edges whose endpoints are not both
// present are rejected. Returns true if the edge is now in the graph.
func (g *WorkingGraph) AddEdge(edge DependencyEdge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if edge.From == edge.To {
		return false
	}
	if _, ok := g.nodes[edge.From]; !ok {
		return false
	}
	if _, ok := g.nodes[edge.To]; !ok {
		return false
	}
	g.addEdgeLocked(edge)
	return true
}

// HasEdge reports whether the edge exists.
func (g *WorkingGraph) HasEdge(edge DependencyEdge) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[edge]
	return ok
}

// GetOutgoing returns edges originating from the given node.
// If kinds are provided, only edges of those kinds are returned.
func (g *WorkingGraph) GetOutgoing(id string, kinds ...EdgeKind) []DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterKinds(g.outgoing[id], kinds)
}

// GetIncoming returns edges targeting the given node.
// If kinds are provided, only edges of those kinds are returned.
func (g *WorkingGraph) GetIncoming(id string, kinds ...EdgeKind) []DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterKinds(g.incoming[id], kinds)
}

// Snapshot returns an immutable, sorted copy of the graph.
func (g *WorkingGraph) Snapshot() *DependencyGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]DependencyNode, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node.Clone())
	}
	SortNodes(nodes)

	edges := make([]DependencyEdge, 0, len(g.edges))
	for edge := range g.edges {
		edges = append(edges, edge)
	}
	SortEdges(edges)

	return &DependencyGraph{Nodes: nodes, Edges: edges}
}

// Stats returns a summary of graph size.
func (g *WorkingGraph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"nodes": len(g.nodes),
		"edges": len(g.edges),
	}
}

// addEdgeLocked must be called with the write lock held.
func (g *WorkingGraph) addEdgeLocked(edge DependencyEdge) {
	if edge.From == edge.To {
		return
	}
	g.edges[edge] = struct{}{}

	if g.outgoing[edge.From] == nil {
		g.outgoing[edge.From] = make(map[DependencyEdge]struct{})
	}
	g.outgoing[edge.From][edge] = struct{}{}

	if g.incoming[edge.To] == nil {
		g.incoming[edge.To] = make(map[DependencyEdge]struct{})
	}
	g.incoming[edge.To][edge] = struct{}{}
}

// cascadeEdgesForNode removes all edges where the node is source or target.
// Must be called with the write lock held.
func (g *WorkingGraph) cascadeEdgesForNode(id string) {
	for edge := range g.outgoing[id] {
		delete(g.edges, edge)
		delete(g.incoming[edge.To], edge)
	}
	delete(g.outgoing, id)

	for edge := range g.incoming[id] {
		delete(g.edges, edge)
		delete(g.outgoing[edge.From], edge)
	}
	delete(g.incoming, id)
}

func filterKinds(set map[DependencyEdge]struct{}, kinds []EdgeKind) []DependencyEdge {
	result := make([]DependencyEdge, 0, len(set))
	for edge := range set {
		if len(kinds) == 0 || containsKind(kinds, edge.Kind) {
			result = append(result, edge)
		}
	}
	SortEdges(result)
	return result
}

func containsKind(kinds []EdgeKind, kind EdgeKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
