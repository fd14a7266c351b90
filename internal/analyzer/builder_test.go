package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/semaphore"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/observability"
)

type fakeUnit string

func (u fakeUnit) Name() string { return string(u) }

// fakeProvider serves fixed facts. Types lists declared ids per unit and
// Facts holds facts keyed by "unit/id".
type fakeProvider struct {
	mu      sync.Mutex
	units   []Unit
	types   map[string][]string
	facts   map[string]TypeFacts
	calls   []string
	onFacts func(ctx context.Context, id string)
	onTypes func(ctx context.Context, unit Unit) error
}

func (p *fakeProvider) Resolve(_ context.Context, path string) ([]Unit, error) {
	if path == "missing.sln" {
		return nil, &BuildError{Path: path, Err: ErrNotFound}
	}
	return p.units, nil
}

func (p *fakeProvider) DeclaredTypes(ctx context.Context, unit Unit) ([]string, error) {
	if p.onTypes != nil {
		if err := p.onTypes(ctx, unit); err != nil {
			return nil, err
		}
	}
	return p.types[unit.Name()], nil
}

func (p *fakeProvider) ForType(ctx context.Context, unit Unit, typeID string) (TypeFacts, error) {
	p.mu.Lock()
	p.calls = append(p.calls, unit.Name()+"/"+typeID)
	p.mu.Unlock()
	if p.onFacts != nil {
		p.onFacts(ctx, typeID)
	}
	return p.facts[unit.Name()+"/"+typeID], nil
}

func sampleProvider() *fakeProvider {
	return &fakeProvider{
		units: []Unit{fakeUnit("Sample")},
		types: map[string][]string{"Sample": {"Impl", "Base", "IService", "Dependency"}},
		facts: map[string]TypeFacts{
			"Sample/Impl": {
				BaseType:        "Base",
				Interfaces:      []string{"IService"},
				Members:         MemberCounts{Methods: 1, Statements: 3, CallSites: 1},
				ReferencedTypes: []string{"Dependency", "Dependency", "System.String", "Impl"},
				Location:        &graph.SourceLocation{FilePath: "Impl.cs", StartLine: 1, StartColumn: 1, EndLine: 4, EndColumn: 2},
			},
			"Sample/Base":       {BaseType: "object"},
			"Sample/IService":   {},
			"Sample/Dependency": {Members: MemberCounts{Methods: 1, Statements: 1}},
		},
	}
}

func newTestBuilder(opts ...BuilderOption) *Builder {
	opts = append([]BuilderOption{WithGate(semaphore.NewWeighted(1))}, opts...)
	return NewBuilder(opts...)
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	t.Run("SampleGraph", func(t *testing.T) {
		t.Parallel()
		p := sampleProvider()

		g, err := newTestBuilder().Build(t.Context(), p, p.units, config.Default(), nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"Base", "Dependency", "IService", "Impl"}, g.NodeIDs())
		assert.Equal(t, []graph.DependencyEdge{
			{From: "Impl", To: "Base", Kind: graph.EdgeInherit},
			{From: "Impl", To: "Dependency", Kind: graph.EdgeReference},
			{From: "Impl", To: "IService", Kind: graph.EdgeImplement},
		}, g.Edges)

		impl, _ := g.Node("Impl")
		dep, _ := g.Node("Dependency")
		assert.Equal(t, 1, impl.Metrics.FanOut)
		assert.Equal(t, 0, impl.Metrics.InDegree)
		assert.Equal(t, 1, dep.Metrics.InDegree)
		assert.Greater(t, impl.Metrics.WeightScore, dep.Metrics.WeightScore)
		require.NotNil(t, impl.Location)
		assert.Equal(t, "Impl.cs", impl.Location.FilePath)

		for _, n := range g.Nodes {
			assert.GreaterOrEqual(t, n.Metrics.WeightScore, 0.0)
			assert.LessOrEqual(t, n.Metrics.WeightScore, 1.0)
		}
	})

	t.Run("FirstDeclarationWins", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{
			units: []Unit{fakeUnit("A"), fakeUnit("B")},
			types: map[string][]string{"A": {"Shared"}, "B": {"Shared", "Only"}},
			facts: map[string]TypeFacts{
				"A/Shared": {Members: MemberCounts{Methods: 7}},
				"B/Shared": {Members: MemberCounts{Methods: 1}},
			},
		}

		g, err := newTestBuilder().Build(t.Context(), p, p.units, config.Default(), nil)
		require.NoError(t, err)

		shared, ok := g.Node("Shared")
		require.True(t, ok)
		assert.Equal(t, 7, shared.Metrics.MethodCount)
		assert.ElementsMatch(t, []string{"A/Shared", "B/Only"}, p.calls)
	})

	t.Run("ExternalBaseIgnored", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{
			units: []Unit{fakeUnit("A")},
			types: map[string][]string{"A": {"Widget"}},
			facts: map[string]TypeFacts{
				"A/Widget": {BaseType: "System.Object", Interfaces: []string{"System.IDisposable"}},
			},
		}

		g, err := newTestBuilder().Build(t.Context(), p, p.units, config.Default(), nil)
		require.NoError(t, err)
		assert.Empty(t, g.Edges)
		assert.Len(t, g.Nodes, 1)
	})

	t.Run("EmptyUnits", func(t *testing.T) {
		t.Parallel()
		g, err := newTestBuilder().Build(t.Context(), &fakeProvider{}, nil, config.Default(), nil)
		require.NoError(t, err)
		assert.Empty(t, g.Nodes)
		assert.Empty(t, g.Edges)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		t.Parallel()
		p := sampleProvider()
		opts := config.Default()
		opts.ProgressInterval = 0

		g, err := newTestBuilder().Build(t.Context(), p, p.units, opts, nil)
		assert.ErrorIs(t, err, config.ErrInvalidOptions)
		assert.Nil(t, g)
		assert.Empty(t, p.calls)
	})

	t.Run("ProviderError", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		p := sampleProvider()
		p.onTypes = func(context.Context, Unit) error { return boom }

		_, err := newTestBuilder().Build(t.Context(), p, p.units, config.Default(), nil)
		assert.ErrorIs(t, err, boom)
	})
}

func TestBuilder_Progress(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		units: []Unit{fakeUnit("A"), fakeUnit("B")},
		types: map[string][]string{"A": {"T1", "T2", "T3"}, "B": {"T4", "T5"}},
		facts: map[string]TypeFacts{},
	}
	opts := config.Default()
	opts.ProgressInterval = 2

	var reports []Progress
	_, err := newTestBuilder().Build(t.Context(), p, p.units, opts, func(pr Progress) {
		reports = append(reports, pr)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	assert.Equal(t, StagePrepare, reports[0].Stage)
	assert.Equal(t, StageComplete, reports[len(reports)-1].Stage)

	var compiled, metrics []int
	for _, r := range reports {
		switch {
		case r.Stage == StageCompile && r.Message != "compilation complete":
			compiled = append(compiled, r.Current)
		case r.Stage == StageMetrics && r.Message == "computing metrics":
			metrics = append(metrics, r.Current)
			assert.Equal(t, 5, r.Total)
		}
	}
	assert.Equal(t, []int{1, 2}, compiled)
	assert.Equal(t, []int{1, 2, 4, 5}, metrics)
}

func TestProgress_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[metrics] computing metrics (2/5)", Progress{Stage: StageMetrics, Message: "computing metrics", Current: 2, Total: 5}.String())
	assert.Equal(t, "[prepare] options validated", Progress{Stage: StagePrepare, Message: "options validated"}.String())
}

func TestBuilder_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("DuringMetrics", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		p := sampleProvider()
		p.onFacts = func(context.Context, string) { cancel() }

		g, err := newTestBuilder().Build(ctx, p, p.units, config.Default(), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, g)
		assert.Len(t, p.calls, 1)
	})

	t.Run("BeforeStart", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		p := sampleProvider()
		g, err := newTestBuilder().Build(ctx, p, p.units, config.Default(), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, g)
	})
}

func TestBuilder_Gate(t *testing.T) {
	t.Parallel()

	gate := semaphore.NewWeighted(1)
	first := NewBuilder(WithGate(gate))
	second := NewBuilder(WithGate(gate))

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := sampleProvider()
	blocking.onTypes = func(context.Context, Unit) error {
		close(started)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := first.Build(context.Background(), blocking, blocking.units, config.Default(), nil)
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	var waiting bool
	_, err := second.Build(ctx, sampleProvider(), sampleProvider().units, config.Default(), func(p Progress) {
		if p.Message == "waiting for analysis slot" {
			waiting = true
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, waiting)

	close(release)
	require.NoError(t, <-done)

	g, err := second.Build(t.Context(), sampleProvider(), sampleProvider().units, config.Default(), nil)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)
}

func TestBuilder_AnalyzePath(t *testing.T) {
	t.Parallel()

	t.Run("Resolves", func(t *testing.T) {
		t.Parallel()
		p := sampleProvider()
		g, err := newTestBuilder().AnalyzePath(t.Context(), p, "Sample.sln", config.Default(), nil)
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 4)
	})

	t.Run("MissingPath", func(t *testing.T) {
		t.Parallel()
		g, err := newTestBuilder().AnalyzePath(t.Context(), sampleProvider(), "missing.sln", config.Default(), nil)
		assert.Nil(t, g)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, fs.ErrNotExist)

		var buildErr *BuildError
		require.ErrorAs(t, err, &buildErr)
		assert.Equal(t, "missing.sln", buildErr.Path)
	})
}

func TestBuilder_Spans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	b := newTestBuilder(WithTracer(provider.Tracer(observability.TracerName)))

	p := sampleProvider()
	_, err := b.AnalyzePath(t.Context(), p, "Sample.sln", config.Default(), nil)
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		observability.SpanResolve,
		observability.SpanCollect,
		observability.SpanMetrics,
		observability.SpanBuild,
	}, names)
}

func TestBuildError(t *testing.T) {
	t.Parallel()
	err := &BuildError{Path: "App.csproj", Err: fmt.Errorf("reading: %w", ErrUnsupported)}
	assert.Equal(t, "analyzing App.csproj: reading: unsupported analysis input", err.Error())
	assert.ErrorIs(t, err, ErrUnsupported)
}
