package graph

import (
	"slices"
)

// GraphPatch is the delta turning one snapshot into another.
type GraphPatch struct {
	UpsertNodes   []DependencyNode `json:"upsertNodes"`
	RemoveNodeIDs []string         `json:"removeNodeIds"`
	UpsertEdges   []DependencyEdge `json:"upsertEdges"`
	RemoveEdges   []DependencyEdge `json:"removeEdges"`
}

// EmptyPatch returns a patch with no changes.
func EmptyPatch() GraphPatch {
	return GraphPatch{
		UpsertNodes:   []DependencyNode{},
		RemoveNodeIDs: []string{},
		UpsertEdges:   []DependencyEdge{},
		RemoveEdges:   []DependencyEdge{},
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p GraphPatch) IsEmpty() bool {
	return len(p.UpsertNodes) == 0 && len(p.RemoveNodeIDs) == 0 &&
		len(p.UpsertEdges) == 0 && len(p.RemoveEdges) == 0
}

// Diff computes the patch from old to updated. A node is upserted when it
// is missing from old or differs in any field; it is removed when missing
// from updated. Edges are compared as sets of (from, to, kind).
func Diff(old, updated *DependencyGraph) GraphPatch {
	if old == nil {
		old = Empty()
	}
	if updated == nil {
		updated = Empty()
	}

	patch := EmptyPatch()

	oldNodes := make(map[string]DependencyNode, len(old.Nodes))
	for _, node := range old.Nodes {
		oldNodes[node.ID] = node
	}
	newIDs := make(map[string]struct{}, len(updated.Nodes))
	for _, node := range updated.Nodes {
		newIDs[node.ID] = struct{}{}
		if prev, ok := oldNodes[node.ID]; !ok || !prev.Equal(node) {
			patch.UpsertNodes = append(patch.UpsertNodes, node.Clone())
		}
	}
	for _, node := range old.Nodes {
		if _, ok := newIDs[node.ID]; !ok {
			patch.RemoveNodeIDs = append(patch.RemoveNodeIDs, node.ID)
		}
	}

	oldEdges := old.EdgeSet()
	newEdges := updated.EdgeSet()
	for _, edge := range updated.Edges {
		if _, ok := oldEdges[edge]; !ok {
			patch.UpsertEdges = append(patch.UpsertEdges, edge)
		}
	}
	for _, edge := range old.Edges {
		if _, ok := newEdges[edge]; !ok {
			patch.RemoveEdges = append(patch.RemoveEdges, edge)
		}
	}

	SortNodes(patch.UpsertNodes)
	slices.Sort(patch.RemoveNodeIDs)
	SortEdges(patch.UpsertEdges)
	SortEdges(patch.RemoveEdges)
	return patch
}

// Apply returns a new snapshot with the patch applied to g. Removals are
// applied before upserts, and edges whose endpoints no longer exist are
// dropped.
func (p GraphPatch) Apply(g *DependencyGraph) *DependencyGraph {
	w := FromSnapshot(g)
	for _, id := range p.RemoveNodeIDs {
		w.RemoveNode(id)
	}
	for _, edge := range p.RemoveEdges {
		w.removeEdge(edge)
	}
	for _, node := range p.UpsertNodes {
		w.AddNode(node)
	}
	for _, edge := range p.UpsertEdges {
		w.AddEdge(edge)
	}
	return w.Snapshot()
}

func (g *WorkingGraph) removeEdge(edge DependencyEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, edge)
	delete(g.outgoing[edge.From], edge)
	delete(g.incoming[edge.To], edge)
}
