package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/depsphere-go/internal/graph"
)

func sampleGraph() *graph.DependencyGraph {
	return graph.NewDependencyGraph(
		[]graph.DependencyNode{
			{
				ID:       "App.Impl",
				Metrics:  graph.TypeMetrics{MethodCount: 1, StatementCount: 3, CallSiteCount: 1, FanOut: 1, WeightScore: 0.8},
				Location: &graph.SourceLocation{FilePath: "/src/Impl.cs", StartLine: 4, StartColumn: 1, EndLine: 12, EndColumn: 2},
			},
			{ID: "App.Dependency", Metrics: graph.TypeMetrics{InDegree: 1, WeightScore: 0.35}},
		},
		[]graph.DependencyEdge{{From: "App.Impl", To: "App.Dependency", Kind: graph.EdgeReference}},
	)
}

func setupTestBadgerBackend(t *testing.T) *BadgerBackend {
	t.Helper()

	backend := NewBadgerBackend()
	require.NoError(t, backend.Initialize(filepath.Join(t.TempDir(), "badger"), false))
	t.Cleanup(func() { backend.Close() })
	return backend
}

func fixedClock(store testStore) time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.setNow(func() time.Time { return now })
	return now
}

func (b *BadgerBackend) setNow(now func() time.Time) { b.now = now }
func (m *MemoryBackend) setNow(now func() time.Time) { m.now = now }

type testStore interface {
	SnapshotStore
	setNow(func() time.Time)
}

func TestSnapshotStore(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) testStore{
		"Badger": func(t *testing.T) testStore { return setupTestBadgerBackend(t) },
		"Memory": func(*testing.T) testStore { return NewMemoryBackend() },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("SaveAndLoad", func(t *testing.T) {
				t.Parallel()
				store := open(t)
				now := fixedClock(store)
				ctx := t.Context()

				require.NoError(t, store.Save(ctx, "/work/App.sln", sampleGraph()))
				snap, err := store.Load(ctx, "/work/App.sln")
				require.NoError(t, err)

				assert.Equal(t, "/work/App.sln", snap.AnalysisPath)
				assert.True(t, now.Equal(snap.SavedAt))
				assert.Equal(t, sampleGraph(), snap.Graph)
			})

			t.Run("SaveReplaces", func(t *testing.T) {
				t.Parallel()
				store := open(t)
				ctx := t.Context()

				require.NoError(t, store.Save(ctx, "/work/App.sln", sampleGraph()))
				require.NoError(t, store.Save(ctx, "/work/App.sln", graph.Empty()))

				snap, err := store.Load(ctx, "/work/App.sln")
				require.NoError(t, err)
				assert.Empty(t, snap.Graph.Nodes)
			})

			t.Run("LoadMissing", func(t *testing.T) {
				t.Parallel()
				_, err := open(t).Load(t.Context(), "/work/None.sln")
				assert.ErrorIs(t, err, ErrSnapshotNotFound)
			})

			t.Run("List", func(t *testing.T) {
				t.Parallel()
				store := open(t)
				ctx := t.Context()

				require.NoError(t, store.Save(ctx, "/work/b/B.sln", graph.Empty()))
				require.NoError(t, store.Save(ctx, "/work/a/A.csproj", sampleGraph()))

				infos, err := store.List(ctx)
				require.NoError(t, err)
				require.Len(t, infos, 2)
				assert.Equal(t, "/work/a/A.csproj", infos[0].AnalysisPath)
				assert.Equal(t, 2, infos[0].NodeCount)
				assert.Equal(t, 1, infos[0].EdgeCount)
				assert.Equal(t, "/work/b/B.sln", infos[1].AnalysisPath)
			})

			t.Run("Delete", func(t *testing.T) {
				t.Parallel()
				store := open(t)
				ctx := t.Context()

				require.NoError(t, store.Save(ctx, "/work/App.sln", sampleGraph()))
				require.NoError(t, store.Delete(ctx, "/work/App.sln"))
				require.NoError(t, store.Delete(ctx, "/work/App.sln"))

				_, err := store.Load(ctx, "/work/App.sln")
				assert.ErrorIs(t, err, ErrSnapshotNotFound)
			})

			t.Run("CancelledContext", func(t *testing.T) {
				t.Parallel()
				ctx, cancel := context.WithCancel(t.Context())
				cancel()
				assert.ErrorIs(t, open(t).Save(ctx, "/work/App.sln", sampleGraph()), context.Canceled)
			})
		})
	}
}

func TestSnapshotStore_Corruption(t *testing.T) {
	t.Parallel()

	corrupt := func(t *testing.T, data []byte) []byte {
		t.Helper()
		rec, err := decodeRecord(data)
		require.NoError(t, err)
		rec.Checksum++
		out, err := json.Marshal(rec)
		require.NoError(t, err)
		return out
	}

	t.Run("Badger", func(t *testing.T) {
		t.Parallel()
		store := setupTestBadgerBackend(t)
		ctx := t.Context()
		require.NoError(t, store.Save(ctx, "/work/App.sln", sampleGraph()))

		key := store.snapshotKey(snapshotKey("/work/App.sln"))
		require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			return txn.Set(key, corrupt(t, data))
		}))

		_, err := store.Load(ctx, "/work/App.sln")
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("Memory", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryBackend()
		ctx := t.Context()
		require.NoError(t, store.Save(ctx, "/work/App.sln", sampleGraph()))

		key := snapshotKey("/work/App.sln")
		store.records[key] = corrupt(t, store.records[key])
		_, err := store.Load(ctx, "/work/App.sln")
		assert.ErrorIs(t, err, ErrCorruptSnapshot)

		store.records[key] = []byte("{not json")
		_, err = store.Load(ctx, "/work/App.sln")
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("ReadOnly", func(t *testing.T) {
		t.Parallel()
		dbPath := filepath.Join(t.TempDir(), "badger")

		writer := NewBadgerBackend()
		require.NoError(t, writer.Initialize(dbPath, false))
		require.NoError(t, writer.Save(t.Context(), "/work/App.sln", sampleGraph()))
		require.NoError(t, writer.Close())

		reader := NewBadgerBackend()
		require.NoError(t, reader.Initialize(dbPath, true))
		defer reader.Close()

		snap, err := reader.Load(t.Context(), "/work/App.sln")
		require.NoError(t, err)
		assert.Len(t, snap.Graph.Nodes, 2)
	})

	t.Run("NotInitialized", func(t *testing.T) {
		t.Parallel()
		backend := NewBadgerBackend()
		_, err := backend.Load(t.Context(), "/work/App.sln")
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.NoError(t, backend.Close())
	})
}
