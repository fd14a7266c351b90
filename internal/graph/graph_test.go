package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, path string) DependencyNode {
	n := DependencyNode{ID: id, Metrics: TypeMetrics{MethodCount: 1}}
	if path != "" {
		n.Location = &SourceLocation{FilePath: path, StartLine: 1, StartColumn: 1, EndLine: 2, EndColumn: 1}
	}
	return n
}

func TestNewWorkingGraph(t *testing.T) {
	t.Parallel()

	g := NewWorkingGraph()

	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestWorkingGraph_AddNode(t *testing.T) {
	t.Parallel()

	t.Run("AddSingle", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("App.A", "/src/A.cs"))

		got, ok := g.GetNode("App.A")
		require.True(t, ok)
		assert.Equal(t, "/src/A.cs", got.Location.FilePath)
		assert.Equal(t, 1, g.NodeCount())
	})

	t.Run("ReplaceExisting", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("App.A", "/src/A.cs"))

		updated := node("App.A", "/src/Moved.cs")
		updated.Metrics.StatementCount = 7
		g.AddNode(updated)

		got, _ := g.GetNode("App.A")
		assert.Equal(t, 1, g.NodeCount())
		assert.Equal(t, 7, got.Metrics.StatementCount)
		assert.Equal(t, "/src/Moved.cs", got.Location.FilePath)
	})

	t.Run("StoresCopy", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		n := node("App.A", "/src/A.cs")
		g.AddNode(n)

		n.Location.StartLine = 99

		got, _ := g.GetNode("App.A")
		assert.Equal(t, 1, got.Location.StartLine)
	})
}

func TestWorkingGraph_AddEdge(t *testing.T) {
	t.Parallel()

	t.Run("RequiresEndpoints", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("A", ""))

		assert.False(t, g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeReference}))
		assert.Equal(t, 0, g.EdgeCount())
	})

	t.Run("RejectsSelfEdge", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("A", ""))

		assert.False(t, g.AddEdge(DependencyEdge{From: "A", To: "A", Kind: EdgeReference}))
	})

	t.Run("CollapsesDuplicates", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("A", ""))
		g.AddNode(node("B", ""))

		g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeReference})
		g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeReference})
		g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeInherit})

		assert.Equal(t, 2, g.EdgeCount())
		assert.Len(t, g.GetOutgoing("A", EdgeReference), 1)
		assert.Len(t, g.GetIncoming("B"), 2)
	})
}

func TestWorkingGraph_RemoveNode(t *testing.T) {
	t.Parallel()

	t.Run("RemoveNonExistent", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		assert.False(t, g.RemoveNode("missing"))
	})

	t.Run("RemoveCascadesEdges", func(t *testing.T) {
		t.Parallel()
		g := NewWorkingGraph()
		g.AddNode(node("A", ""))
		g.AddNode(node("B", ""))
		g.AddNode(node("C", ""))
		g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeReference})
		g.AddEdge(DependencyEdge{From: "B", To: "C", Kind: EdgeReference})
		g.AddEdge(DependencyEdge{From: "A", To: "C", Kind: EdgeReference})

		assert.True(t, g.RemoveNode("B"))

		assert.Equal(t, 2, g.NodeCount())
		assert.Equal(t, 1, g.EdgeCount())
		assert.Empty(t, g.GetIncoming("C", EdgeInherit))
		assert.Len(t, g.GetIncoming("C"), 1)
		assert.Len(t, g.GetOutgoing("A"), 1)
	})
}

func TestWorkingGraph_NodesByFile(t *testing.T) {
	t.Parallel()

	g := NewWorkingGraph()
	g.AddNode(node("App.A", "/src/Models/A.cs"))
	g.AddNode(node("App.A.Inner", "/src/Models/A.cs"))
	g.AddNode(node("App.B", "/src/B.cs"))
	g.AddNode(node("App.Synth", ""))

	t.Run("MatchesCaseInsensitively", func(t *testing.T) {
		t.Parallel()
		assert.ElementsMatch(t, []string{"App.A", "App.A.Inner"}, g.NodesByFile("/SRC/models/a.cs"))
	})

	t.Run("CleansPath", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"App.B"}, g.NodesByFile("/src/Models/../B.cs"))
	})

	t.Run("NoMatch", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, g.NodesByFile("/src/C.cs"))
	})
}

func TestWorkingGraph_Snapshot(t *testing.T) {
	t.Parallel()

	g := NewWorkingGraph()
	g.AddNode(node("C", ""))
	g.AddNode(node("A", ""))
	g.AddNode(node("B", ""))
	g.AddEdge(DependencyEdge{From: "B", To: "A", Kind: EdgeReference})
	g.AddEdge(DependencyEdge{From: "A", To: "C", Kind: EdgeReference})
	g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeReference})
	g.AddEdge(DependencyEdge{From: "A", To: "B", Kind: EdgeInherit})

	snap := g.Snapshot()

	assert.Equal(t, []string{"A", "B", "C"}, snap.NodeIDs())
	assert.Equal(t, []DependencyEdge{
		{From: "A", To: "B", Kind: EdgeInherit},
		{From: "A", To: "B", Kind: EdgeReference},
		{From: "A", To: "C", Kind: EdgeReference},
		{From: "B", To: "A", Kind: EdgeReference},
	}, snap.Edges)

	t.Run("RoundTripsThroughFromSnapshot", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, snap, FromSnapshot(snap).Snapshot())
	})

	t.Run("Stats", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, map[string]int{"nodes": 3, "edges": 4}, g.Stats())
	})
}

func TestWorkingGraph_SetMetrics(t *testing.T) {
	t.Parallel()

	g := NewWorkingGraph()
	g.AddNode(node("A", ""))

	assert.True(t, g.SetMetrics("A", TypeMetrics{FanOut: 3}))
	assert.False(t, g.SetMetrics("B", TypeMetrics{}))

	got, _ := g.GetNode("A")
	assert.Equal(t, 3, got.Metrics.FanOut)
}
