package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Benny93/depsphere-go/internal/graph"
)

// MemoryBackend is an in-memory implementation of SnapshotStore for testing.
// It stores the same encoded records as the badger backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
	now     func() time.Time
}

// NewMemoryBackend creates a new in-memory snapshot store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string][]byte),
		now:     time.Now,
	}
}

// Initialize implements SnapshotStore.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string][]byte)
	}
	return nil
}

// Close implements SnapshotStore.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

// Save implements SnapshotStore.
func (m *MemoryBackend) Save(ctx context.Context, analysisPath string, g *graph.DependencyGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		return ErrNotInitialized
	}

	key := snapshotKey(analysisPath)
	data, err := encodeSnapshot(key, g, m.now())
	if err != nil {
		return err
	}
	m.records[key] = data
	return nil
}

// Load implements SnapshotStore.
func (m *MemoryBackend) Load(ctx context.Context, analysisPath string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.records == nil {
		return nil, ErrNotInitialized
	}

	data, ok := m.records[snapshotKey(analysisPath)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return decodeSnapshot(data)
}

// List implements SnapshotStore.
func (m *MemoryBackend) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.records == nil {
		return nil, ErrNotInitialized
	}

	infos := make([]SnapshotInfo, 0, len(m.records))
	for _, data := range m.records {
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		infos = append(infos, rec.SnapshotInfo)
	}
	slices.SortFunc(infos, func(a, b SnapshotInfo) int {
		return strings.Compare(a.AnalysisPath, b.AnalysisPath)
	})
	return infos, nil
}

// Delete implements SnapshotStore.
func (m *MemoryBackend) Delete(ctx context.Context, analysisPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		return ErrNotInitialized
	}
	delete(m.records, snapshotKey(analysisPath))
	return nil
}

var _ SnapshotStore = (*MemoryBackend)(nil)
