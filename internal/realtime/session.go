package realtime

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/ingestion"
	"github.com/Benny93/depsphere-go/internal/storage"
)

// Update is published to subscribers after a batch changes the graph.
type Update struct {
	Patch  graph.GraphPatch
	Graph  *graph.DependencyGraph
	Mode   Mode
	Events []graph.GraphChangeEvent
}

// Session owns the live graph of one analysis path. Batches are applied one
// at a time; readers always see a complete snapshot.
type Session struct {
	analysisPath string
	updater      *Updater
	store        storage.SnapshotStore
	logger       *slog.Logger

	mu    sync.RWMutex
	graph *graph.DependencyGraph

	applyMu sync.Mutex
	hashes  map[string]uint64

	subMu       sync.Mutex
	subscribers map[int]func(Update)
	nextSub     int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStore persists every updated snapshot to store.
func WithStore(store storage.SnapshotStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// WithSessionLogger sets the session's logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session over an initial graph. Content fingerprints
// of the files the graph was built from are recorded so that writes which
// leave a file unchanged are skipped.
func NewSession(initial *graph.DependencyGraph, updater *Updater, analysisPath string, opts ...SessionOption) *Session {
	if initial == nil {
		initial = graph.Empty()
	}
	s := &Session{
		analysisPath: analysisPath,
		updater:      updater,
		logger:       slog.Default(),
		graph:        initial,
		hashes:       make(map[string]uint64),
		subscribers:  make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, node := range initial.Nodes {
		if node.Location == nil || node.Location.FilePath == "" {
			continue
		}
		key := fingerprintKey(node.Location.FilePath)
		if _, ok := s.hashes[key]; ok {
			continue
		}
		if content, err := os.ReadFile(node.Location.FilePath); err == nil {
			s.hashes[key] = ingestion.Fingerprint(content)
		}
	}
	return s
}

// AnalysisPath returns the solution or project the session tracks.
func (s *Session) AnalysisPath() string {
	return s.analysisPath
}

// Graph returns the current snapshot.
func (s *Session) Graph() *graph.DependencyGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Subscribe registers fn to receive updates. fn runs on the applying
// goroutine. The returned function removes the subscription.
func (s *Session) Subscribe(fn func(Update)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// Apply applies a batch to the live graph. Changed-file events whose content
// fingerprint is unchanged are dropped first. Subscribers are notified only
// when the patch is not empty.
func (s *Session) Apply(ctx context.Context, events []graph.GraphChangeEvent) (Result, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	current := s.Graph()
	events, seen := s.dropUnchanged(MergeEvents(events))
	if len(events) == 0 {
		return Result{Graph: current, Patch: graph.EmptyPatch(), Mode: ModeNone}, nil
	}

	result, err := s.updater.Apply(ctx, current, events, s.analysisPath)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Debug("applying changes cancelled", "events", len(events), "error", err)
		return Result{}, err
	}
	if err != nil {
		s.logger.Error("applying changes", "events", len(events), "error", err)
		return Result{}, err
	}
	s.commitFingerprints(seen)

	s.mu.Lock()
	s.graph = result.Graph
	s.mu.Unlock()

	if result.Patch.IsEmpty() {
		return result, nil
	}

	s.logger.Info("graph updated",
		"mode", result.Mode,
		"upserted_nodes", len(result.Patch.UpsertNodes),
		"removed_nodes", len(result.Patch.RemoveNodeIDs),
		"upserted_edges", len(result.Patch.UpsertEdges),
		"removed_edges", len(result.Patch.RemoveEdges),
	)

	if s.store != nil {
		if err := s.store.Save(ctx, s.analysisPath, result.Graph); err != nil {
			s.logger.Warn("saving snapshot", "path", s.analysisPath, "error", err)
		}
	}

	s.publish(Update{Patch: result.Patch, Graph: result.Graph, Mode: result.Mode, Events: result.Events})
	return result, nil
}

// OnBatch adapts Apply to a scheduler batch function.
func (s *Session) OnBatch(ctx context.Context) BatchFunc {
	return func(events []graph.GraphChangeEvent) {
		_, _ = s.Apply(ctx, events)
	}
}

// dropUnchanged filters out changed-file events whose content matches the
// recorded fingerprint. It returns the kept events and the fingerprints to
// record once they are applied.
func (s *Session) dropUnchanged(events []graph.GraphChangeEvent) ([]graph.GraphChangeEvent, map[string]fingerprint) {
	kept := events[:0:0]
	seen := make(map[string]fingerprint, len(events))
	for _, event := range events {
		key := fingerprintKey(event.Path)
		if event.Type == graph.DocumentRemoved || event.Type == graph.DocumentRenamed {
			seen[key] = fingerprint{}
			kept = append(kept, event)
			continue
		}

		content, err := os.ReadFile(event.Path)
		if err != nil {
			seen[key] = fingerprint{}
			kept = append(kept, event)
			continue
		}

		sum := ingestion.Fingerprint(content)
		if prev, ok := s.hashes[key]; ok && prev == sum && event.Type == graph.DocumentChanged {
			s.logger.Debug("skipping unchanged file", "path", event.Path)
			continue
		}
		seen[key] = fingerprint{sum: sum, known: true}
		kept = append(kept, event)
	}
	return kept, seen
}

// fingerprint is a pending content hash. An unknown fingerprint forgets the
// file.
type fingerprint struct {
	sum   uint64
	known bool
}

func (s *Session) commitFingerprints(seen map[string]fingerprint) {
	for key, f := range seen {
		if !f.known {
			delete(s.hashes, key)
			continue
		}
		s.hashes[key] = f.sum
	}
}

func (s *Session) publish(update Update) {
	s.subMu.Lock()
	subscribers := make([]func(Update), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subscribers {
		fn(update)
	}
}

func fingerprintKey(path string) string {
	return strings.ToLower(absPath(filepath.Clean(path)))
}
