package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/observability"
	"github.com/Benny93/depsphere-go/internal/scoring"
)

// buildGate allows one full build per process.
var buildGate = semaphore.NewWeighted(1)

// rootTypes are never the target of an inherit edge.
var rootTypes = map[string]bool{
	"object":        true,
	"System.Object": true,
}

// Builder runs full graph builds.
type Builder struct {
	gate   *semaphore.Weighted
	logger *slog.Logger
	tracer trace.Tracer
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithTracer sets the tracer used for build spans.
func WithTracer(tracer trace.Tracer) BuilderOption {
	return func(b *Builder) {
		b.tracer = tracer
	}
}

// WithGate replaces the process-wide build gate. Builders sharing a gate
// never build concurrently.
func WithGate(gate *semaphore.Weighted) BuilderOption {
	return func(b *Builder) {
		b.gate = gate
	}
}

// NewBuilder creates a builder that shares the process-wide build gate.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		gate:   buildGate,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AnalyzePath resolves path through provider and builds its graph.
func (b *Builder) AnalyzePath(ctx context.Context, provider FactProvider, path string, opts config.AnalysisOptions, progress ProgressFunc) (*graph.DependencyGraph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	release, err := b.acquire(ctx, progress)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := observability.StartBuildSpan(ctx, b.tracer, path, 0)
	defer span.End()

	progress.report(StageLoad, "resolving "+path, 0, 0)
	resolveCtx, resolveSpan := observability.StartStageSpan(ctx, b.tracer, observability.SpanResolve)
	units, err := provider.Resolve(resolveCtx, path)
	observability.RecordError(resolveSpan, err)
	resolveSpan.End()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("depsphere.unit_count", len(units)))

	g, err := b.build(ctx, provider, units, opts, progress)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordGraph(span, len(g.Nodes), len(g.Edges))
	return g, nil
}

// Build builds the graph of already resolved units.
func (b *Builder) Build(ctx context.Context, provider FactProvider, units []Unit, opts config.AnalysisOptions, progress ProgressFunc) (*graph.DependencyGraph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	release, err := b.acquire(ctx, progress)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := observability.StartBuildSpan(ctx, b.tracer, "", len(units))
	defer span.End()

	g, err := b.build(ctx, provider, units, opts, progress)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordGraph(span, len(g.Nodes), len(g.Edges))
	return g, nil
}

func (b *Builder) acquire(ctx context.Context, progress ProgressFunc) (func(), error) {
	progress.report(StagePrepare, "options validated", 0, 0)
	progress.report(StagePrepare, "waiting for analysis slot", 0, 0)
	if err := b.gate.Acquire(ctx, 1); err != nil {
		b.logger.Debug("build cancelled while waiting for gate", "error", err)
		return nil, err
	}
	progress.report(StagePrepare, "analysis slot acquired", 0, 0)
	return func() { b.gate.Release(1) }, nil
}

// declaration is a declared type and the unit that owns it.
type declaration struct {
	id   string
	unit Unit
}

func (b *Builder) build(ctx context.Context, provider FactProvider, units []Unit, opts config.AnalysisOptions, progress ProgressFunc) (*graph.DependencyGraph, error) {
	progress.report(StageLoad, "units loaded", len(units), len(units))

	decls, err := b.collect(ctx, provider, units, progress)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		declared[d.id] = true
	}

	ctx, span := observability.StartStageSpan(ctx, b.tracer, observability.SpanMetrics,
		attribute.Int("depsphere.type_count", len(decls)))
	defer span.End()

	progress.report(StageMetrics, "collecting declared types", 0, len(decls))

	edges := make(map[graph.DependencyEdge]struct{})
	nodes := make([]graph.DependencyNode, 0, len(decls))
	total := len(decls)
	for i, d := range decls {
		if err := ctx.Err(); err != nil {
			b.logger.Debug("build cancelled", "stage", StageMetrics, "error", err)
			return nil, err
		}

		current := i + 1
		if current == 1 || current == total || current%opts.ProgressInterval == 0 {
			progress.report(StageMetrics, "computing metrics", current, total)
		}

		facts, err := provider.ForType(ctx, d.unit, d.id)
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("collecting facts for %s: %w", d.id, err)
		}

		fanOut := deriveEdges(d.id, facts, declared, edges)
		nodes = append(nodes, graph.DependencyNode{
			ID: d.id,
			Metrics: graph.TypeMetrics{
				MethodCount:    facts.Members.Methods,
				StatementCount: facts.Members.Statements,
				BranchCount:    facts.Members.Branches,
				CallSiteCount:  facts.Members.CallSites,
				FanOut:         fanOut,
			},
			Location: facts.Location,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress.report(StageMetrics, "building graph", total, total)

	inDegree := make(map[string]int, len(nodes))
	edgeList := make([]graph.DependencyEdge, 0, len(edges))
	for e := range edges {
		inDegree[e.To]++
		edgeList = append(edgeList, e)
	}
	for i := range nodes {
		nodes[i].Metrics.InDegree = inDegree[nodes[i].ID]
	}

	scored, err := scoring.Score(nodes, opts.Weights)
	if err != nil {
		return nil, err
	}
	g := graph.NewDependencyGraph(scored, edgeList)

	progress.report(StageComplete, "analysis complete", len(g.Nodes), len(g.Nodes))
	b.logger.Info("graph built", "units", len(units), "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g, nil
}

// collect gathers declared types across units. The first unit to declare
// an id owns it.
func (b *Builder) collect(ctx context.Context, provider FactProvider, units []Unit, progress ProgressFunc) ([]declaration, error) {
	ctx, span := observability.StartStageSpan(ctx, b.tracer, observability.SpanCollect,
		attribute.Int("depsphere.unit_count", len(units)))
	defer span.End()

	seen := make(map[string]bool)
	var decls []declaration
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			b.logger.Debug("build cancelled", "stage", StageCompile, "error", err)
			return nil, err
		}
		progress.report(StageCompile, "compiling "+unit.Name(), i+1, len(units))

		ids, err := provider.DeclaredTypes(ctx, unit)
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("collecting types of %s: %w", unit.Name(), err)
		}
		for _, id := range ids {
			if seen[id] {
				b.logger.Debug("duplicate type declaration ignored", "type", id, "unit", unit.Name())
				continue
			}
			seen[id] = true
			decls = append(decls, declaration{id: id, unit: unit})
		}
	}
	progress.report(StageCompile, "compilation complete", len(units), len(units))
	return decls, nil
}

// deriveEdges adds the edges of one type and returns its fan-out, the number
// of distinct reference targets.
func deriveEdges(id string, facts TypeFacts, declared map[string]bool, edges map[graph.DependencyEdge]struct{}) int {
	add := func(to string, kind graph.EdgeKind) bool {
		if to == id || !declared[to] {
			return false
		}
		edges[graph.DependencyEdge{From: id, To: to, Kind: kind}] = struct{}{}
		return true
	}

	if facts.BaseType != "" && !rootTypes[facts.BaseType] {
		add(facts.BaseType, graph.EdgeInherit)
	}
	for _, iface := range facts.Interfaces {
		add(iface, graph.EdgeImplement)
	}

	targets := make(map[string]bool)
	for _, ref := range facts.ReferencedTypes {
		if add(ref, graph.EdgeReference) {
			targets[ref] = true
		}
	}
	return len(targets)
}
