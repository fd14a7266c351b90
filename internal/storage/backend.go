// Package storage persists dependency graph snapshots keyed by the analysis
// path they were built from.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Benny93/depsphere-go/internal/graph"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a path.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCorruptSnapshot is returned when a stored snapshot fails its
	// checksum or cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrNotInitialized is returned when a backend is used before
	// Initialize or after Close.
	ErrNotInitialized = errors.New("storage backend not initialized")
)

// Snapshot is a stored graph.
type Snapshot struct {
	AnalysisPath string
	SavedAt      time.Time
	Graph        *graph.DependencyGraph
}

// SnapshotInfo describes a stored snapshot without its graph.
type SnapshotInfo struct {
	AnalysisPath string    `json:"analysisPath"`
	SavedAt      time.Time `json:"savedAt"`
	NodeCount    int       `json:"nodeCount"`
	EdgeCount    int       `json:"edgeCount"`
}

// SnapshotStore defines the interface for snapshot storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type SnapshotStore interface {
	// Initialize opens or creates the store at the given path.
	// If readOnly is true, the store is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the store.
	Close() error

	// Save stores g as the snapshot of analysisPath, replacing any
	// previous one.
	Save(ctx context.Context, analysisPath string, g *graph.DependencyGraph) error

	// Load returns the snapshot of analysisPath. The stored checksum is
	// verified before decoding.
	Load(ctx context.Context, analysisPath string) (*Snapshot, error)

	// List returns every stored snapshot ordered by analysis path.
	List(ctx context.Context) ([]SnapshotInfo, error)

	// Delete removes the snapshot of analysisPath. Deleting a missing
	// snapshot is not an error.
	Delete(ctx context.Context, analysisPath string) error
}

// record is the stored form of a snapshot. Checksum is the xxhash of Graph.
type record struct {
	SnapshotInfo
	Checksum uint64          `json:"checksum"`
	Graph    json.RawMessage `json:"graph"`
}

// snapshotKey normalizes an analysis path into a store key.
func snapshotKey(analysisPath string) string {
	if abs, err := filepath.Abs(analysisPath); err == nil {
		return abs
	}
	return filepath.Clean(analysisPath)
}

func encodeSnapshot(key string, g *graph.DependencyGraph, savedAt time.Time) ([]byte, error) {
	if g == nil {
		g = graph.Empty()
	}
	payload, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}
	rec := record{
		SnapshotInfo: SnapshotInfo{
			AnalysisPath: key,
			SavedAt:      savedAt.UTC(),
			NodeCount:    len(g.Nodes),
			EdgeCount:    len(g.Edges),
		},
		Checksum: xxhash.Sum64(payload),
		Graph:    payload,
	}
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return rec, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(rec.Graph) != rec.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorruptSnapshot, rec.AnalysisPath)
	}

	var g graph.DependencyGraph
	if err := json.Unmarshal(rec.Graph, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return &Snapshot{
		AnalysisPath: rec.AnalysisPath,
		SavedAt:      rec.SavedAt,
		Graph:        graph.NewDependencyGraph(g.Nodes, g.Edges),
	}, nil
}
