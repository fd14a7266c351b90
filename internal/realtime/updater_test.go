package realtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/csharp"
	"github.com/Benny93/depsphere-go/internal/graph"
)

type workspace struct {
	dir     string
	project string
	initial *graph.DependencyGraph
	builder *analyzer.Builder
}

func (w workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w workspace) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(w.path(name), []byte(content), 0o644))
}

func newProvider() analyzer.FactProvider {
	return csharp.NewProvider()
}

// newWorkspace writes a two-type project where A references B and builds
// its initial graph.
func newWorkspace(t *testing.T) workspace {
	t.Helper()
	w := workspace{
		dir:     t.TempDir(),
		builder: analyzer.NewBuilder(analyzer.WithGate(semaphore.NewWeighted(1))),
	}
	w.project = w.path("App.csproj")
	w.write(t, "App.csproj", `<Project Sdk="Microsoft.NET.Sdk" />`)
	w.write(t, "A.cs", `class A { B b; }`)
	w.write(t, "B.cs", `class B {}`)

	g, err := w.builder.AnalyzePath(t.Context(), newProvider(), w.project, config.Default(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, g.NodeIDs())
	w.initial = g
	return w
}

func (w workspace) updater(opts ...UpdaterOption) *Updater {
	return NewUpdater(w.builder, newProvider, config.Default(), opts...)
}

func TestUpdater_Apply(t *testing.T) {
	t.Parallel()

	t.Run("NoEvents", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		result, err := w.updater().Apply(t.Context(), w.initial, nil, w.project)
		require.NoError(t, err)
		assert.Equal(t, ModeNone, result.Mode)
		assert.Same(t, w.initial, result.Graph)
		assert.True(t, result.Patch.IsEmpty())
	})

	t.Run("IncrementalAddIndependentType", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		w.write(t, "Lonely.cs", `class Lonely {}`)

		result, err := w.updater().Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentAdded, w.path("Lonely.cs"))}, w.project)
		require.NoError(t, err)

		assert.Equal(t, ModeIncremental, result.Mode)
		require.Len(t, result.Patch.UpsertNodes, 1)
		assert.Equal(t, "Lonely", result.Patch.UpsertNodes[0].ID)
		assert.Empty(t, result.Patch.RemoveNodeIDs)
		assert.Empty(t, result.Patch.UpsertEdges)
		assert.Empty(t, result.Patch.RemoveEdges)
		assert.Equal(t, result.Graph, result.Patch.Apply(w.initial))
	})

	t.Run("IncrementalEditAndRemove", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		w.write(t, "A.cs", `class A { }`)
		require.NoError(t, os.Remove(w.path("B.cs")))

		result, err := w.updater().Apply(t.Context(), w.initial, []graph.GraphChangeEvent{
			event(graph.DocumentChanged, w.path("A.cs")),
			event(graph.DocumentRemoved, w.path("B.cs")),
		}, w.project)
		require.NoError(t, err)

		assert.Equal(t, ModeIncremental, result.Mode)
		assert.Equal(t, []string{"A"}, result.Graph.NodeIDs())
		assert.Empty(t, result.Graph.Edges)
		assert.Equal(t, []string{"B"}, result.Patch.RemoveNodeIDs)
		assert.Equal(t, []graph.DependencyEdge{{From: "A", To: "B", Kind: graph.EdgeReference}}, result.Patch.RemoveEdges)

		a, ok := result.Graph.Node("A")
		require.True(t, ok)
		assert.Zero(t, a.Metrics.FanOut)
	})

	t.Run("PreservesIncomingEdges", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		w.write(t, "B.cs", `class B { void M() {} }`)

		result, err := w.updater().Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentChanged, w.path("B.cs"))}, w.project)
		require.NoError(t, err)

		assert.Equal(t, ModeIncremental, result.Mode)
		assert.Equal(t, []graph.DependencyEdge{{From: "A", To: "B", Kind: graph.EdgeReference}}, result.Graph.Edges)
		b, ok := result.Graph.Node("B")
		require.True(t, ok)
		assert.Equal(t, 1, b.Metrics.MethodCount)
		assert.Equal(t, 1, b.Metrics.InDegree)
	})

	t.Run("RenameTriggersFullRebuild", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		result, err := w.updater().Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentRenamed, w.path("A.cs"))}, w.project)
		require.NoError(t, err)
		assert.Equal(t, ModeFull, result.Mode)
		assert.True(t, result.Patch.IsEmpty())
	})

	t.Run("ProjectChangeTriggersFullRebuild", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		w.write(t, "C.cs", `class C { A a; }`)

		result, err := w.updater().Apply(t.Context(), w.initial, []graph.GraphChangeEvent{
			event(graph.DocumentChanged, w.project),
			event(graph.DocumentAdded, w.path("C.cs")),
		}, w.project)
		require.NoError(t, err)
		assert.Equal(t, ModeFull, result.Mode)
		assert.Equal(t, []string{"A", "B", "C"}, result.Graph.NodeIDs())
	})

	t.Run("PanicFallsBackToFullRebuild", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		u := w.updater(WithFileAnalyzer(func(string, []string) (analyzer.FileAnalysis, error) {
			panic("boom")
		}))

		result, err := u.Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentChanged, w.path("A.cs"))}, w.project)
		require.NoError(t, err)
		assert.Equal(t, ModeFull, result.Mode)
		assert.Equal(t, w.initial.NodeIDs(), result.Graph.NodeIDs())
	})

	t.Run("ErrorWithoutRebuildPath", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		failure := errors.New("analysis failed")
		u := w.updater(WithFileAnalyzer(func(string, []string) (analyzer.FileAnalysis, error) {
			return analyzer.FileAnalysis{}, failure
		}))

		_, err := u.Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentChanged, w.path("A.cs"))}, w.path("Missing.sln"))
		assert.ErrorIs(t, err, failure)
	})

	t.Run("FullRebuildMissingPath", func(t *testing.T) {
		t.Parallel()
		w := newWorkspace(t)
		_, err := w.updater().Apply(t.Context(), w.initial,
			[]graph.GraphChangeEvent{event(graph.DocumentRenamed, w.path("A.cs"))}, w.path("Missing.sln"))
		assert.ErrorIs(t, err, analyzer.ErrNotFound)
	})
}
