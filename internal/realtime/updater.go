package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/observability"
	"github.com/Benny93/depsphere-go/internal/scoring"
)

// Mode is the strategy an update used.
type Mode string

const (
	ModeNone        Mode = "none"
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// Result is the outcome of applying a batch.
type Result struct {
	Graph *graph.DependencyGraph
	Patch graph.GraphPatch
	Mode  Mode

	// Events are the merged events that were applied.
	Events []graph.GraphChangeEvent
}

// ProviderFunc returns a fresh fact provider for a full rebuild.
type ProviderFunc func() analyzer.FactProvider

// FileAnalyzer analyzes one file against the known type ids.
type FileAnalyzer func(path string, knownIDs []string) (analyzer.FileAnalysis, error)

// Updater applies change batches to a graph.
type Updater struct {
	builder     *analyzer.Builder
	newProvider ProviderFunc
	opts        config.AnalysisOptions
	analyzeFile FileAnalyzer
	logger      *slog.Logger
	tracer      trace.Tracer
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithUpdaterLogger sets the updater's logger.
func WithUpdaterLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.logger = logger
	}
}

// WithUpdaterTracer sets the tracer used for update spans.
func WithUpdaterTracer(tracer trace.Tracer) UpdaterOption {
	return func(u *Updater) {
		u.tracer = tracer
	}
}

// WithFileAnalyzer replaces analyzer.AnalyzeFile on the incremental path.
func WithFileAnalyzer(fn FileAnalyzer) UpdaterOption {
	return func(u *Updater) {
		u.analyzeFile = fn
	}
}

// NewUpdater creates an updater. Full rebuilds run on builder with a
// provider from newProvider; both paths score with opts.Weights.
func NewUpdater(builder *analyzer.Builder, newProvider ProviderFunc, opts config.AnalysisOptions, options ...UpdaterOption) *Updater {
	u := &Updater{
		builder:     builder,
		newProvider: newProvider,
		opts:        opts,
		analyzeFile: analyzer.AnalyzeFile,
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(u)
	}
	return u
}

// Apply merges events and updates current. Batches made only of added,
// changed or removed .cs files are applied incrementally; anything else
// triggers a full rebuild of analysisPath. If the incremental path fails
// and analysisPath exists, Apply falls back to a full rebuild; otherwise
// the incremental error is returned.
func (u *Updater) Apply(ctx context.Context, current *graph.DependencyGraph, events []graph.GraphChangeEvent, analysisPath string) (Result, error) {
	if current == nil {
		current = graph.Empty()
	}

	merged := MergeEvents(events)
	if len(merged) == 0 {
		return Result{Graph: current, Patch: graph.EmptyPatch(), Mode: ModeNone, Events: merged}, nil
	}

	ctx, span := observability.StartUpdateSpan(ctx, u.tracer, len(merged))
	defer span.End()

	if incrementalEligible(merged) {
		_, incSpan := observability.StartStageSpan(ctx, u.tracer, observability.SpanIncremental)
		updated, err := u.applyIncremental(current, merged)
		observability.RecordError(incSpan, err)
		incSpan.End()

		if err == nil {
			observability.RecordMode(span, string(ModeIncremental))
			observability.RecordGraph(span, len(updated.Nodes), len(updated.Edges))
			u.logger.Debug("incremental update applied", "events", len(merged), "nodes", len(updated.Nodes))
			return Result{Graph: updated, Patch: graph.Diff(current, updated), Mode: ModeIncremental, Events: merged}, nil
		}
		if !canRebuild(analysisPath) {
			observability.RecordError(span, err)
			return Result{}, err
		}
		u.logger.Warn("incremental update failed, rebuilding", "path", analysisPath, "error", err)
	}

	observability.RecordMode(span, string(ModeFull))
	updated, err := u.builder.AnalyzePath(ctx, u.newProvider(), analysisPath, u.opts, nil)
	if err != nil {
		observability.RecordError(span, err)
		return Result{}, err
	}
	observability.RecordGraph(span, len(updated.Nodes), len(updated.Edges))
	return Result{Graph: updated, Patch: graph.Diff(current, updated), Mode: ModeFull, Events: merged}, nil
}

func incrementalEligible(events []graph.GraphChangeEvent) bool {
	for _, event := range events {
		if event.Type == graph.DocumentRenamed || event.Type == graph.ClassMoved {
			return false
		}
		if !strings.EqualFold(filepath.Ext(event.Path), ".cs") {
			return false
		}
	}
	return true
}

func canRebuild(analysisPath string) bool {
	if strings.TrimSpace(analysisPath) == "" {
		return false
	}
	info, err := os.Stat(analysisPath)
	return err == nil && !info.IsDir()
}

// applyIncremental re-analyzes each event's file. A panic from the file
// analyzer is returned as an error.
func (u *Updater) applyIncremental(current *graph.DependencyGraph, events []graph.GraphChangeEvent) (updated *graph.DependencyGraph, err error) {
	defer func() {
		if r := recover(); r != nil {
			updated, err = nil, fmt.Errorf("incremental update panicked: %v", r)
		}
	}()

	w := graph.FromSnapshot(current)
	for _, event := range events {
		path := absPath(event.Path)

		affected := w.NodesByFile(path)
		inAffected := make(map[string]bool, len(affected))
		for _, id := range affected {
			inAffected[id] = true
		}

		var preserved []graph.DependencyEdge
		for _, id := range affected {
			for _, edge := range w.GetIncoming(id) {
				if !inAffected[edge.From] {
					preserved = append(preserved, edge)
				}
			}
		}
		for _, id := range affected {
			w.RemoveNode(id)
		}

		if event.Type == graph.DocumentRemoved || !fileExists(path) {
			continue
		}

		analysis, err := u.analyzeFile(path, w.NodeIDs())
		if err != nil {
			return nil, fmt.Errorf("analyzing %s: %w", path, err)
		}
		for _, node := range analysis.Nodes {
			w.AddNode(node)
		}
		for _, edge := range analysis.Edges {
			w.AddEdge(edge)
		}
		for _, edge := range preserved {
			w.AddEdge(edge)
		}
	}

	return u.recompute(w.Snapshot())
}

// recompute derives fan-out and in-degree from the edges and rescores every
// node.
func (u *Updater) recompute(g *graph.DependencyGraph) (*graph.DependencyGraph, error) {
	inDegree := make(map[string]int)
	targets := make(map[string]map[string]bool)
	for _, edge := range g.Edges {
		inDegree[edge.To]++
		if edge.Kind != graph.EdgeReference {
			continue
		}
		if targets[edge.From] == nil {
			targets[edge.From] = make(map[string]bool)
		}
		targets[edge.From][edge.To] = true
	}

	nodes := make([]graph.DependencyNode, len(g.Nodes))
	for i, node := range g.Nodes {
		node.Metrics.FanOut = len(targets[node.ID])
		node.Metrics.InDegree = inDegree[node.ID]
		nodes[i] = node
	}

	scored, err := scoring.Score(nodes, u.opts.Weights)
	if err != nil {
		return nil, err
	}
	return graph.NewDependencyGraph(scored, g.Edges), nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
