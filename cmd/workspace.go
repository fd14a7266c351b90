package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/csharp"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/ingestion"
	"github.com/Benny93/depsphere-go/internal/observability"
	"github.com/Benny93/depsphere-go/internal/realtime"
	"github.com/Benny93/depsphere-go/internal/storage"
)

// storeDir is the snapshot store location relative to the workspace root.
const storeDir = ".depsphere/badger"

// AnalysisFlags are the analysis option overrides shared by the building
// commands. Zero values leave the configured value unchanged.
type AnalysisFlags struct {
	Config           string             `type:"path" help:"Configuration file (default: .depsphere.toml searched upwards from the input)"`
	ProgressInterval int                `help:"Types between metrics progress reports (1..10000)"`
	Weight           map[string]float64 `help:"Override a metric weight, e.g. --weight fanout=0.2 (method, statement, branch, callsite, fanout, indegree)"`
	HotspotTop       float64            `help:"Fraction of top scoring types classified hotspot or above"`
	CriticalTop      float64            `help:"Fraction of top scoring types classified critical"`
	Debounce         time.Duration      `help:"Quiet period before a batch of changes is applied"`
	OTLPEndpoint     string             `name:"otlp-endpoint" env:"DEPSPHERE_OTLP_ENDPOINT" help:"OTLP gRPC endpoint for build and update traces"`
}

// Options loads the configuration for input and applies the overrides.
func (f AnalysisFlags) Options(input string) (config.AnalysisOptions, error) {
	path := f.Config
	if path == "" {
		path = config.Find(searchDir(input))
	}

	opts := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.AnalysisOptions{}, err
		}
		opts = loaded
	}

	if f.ProgressInterval != 0 {
		if f.ProgressInterval < 1 || f.ProgressInterval > 10000 {
			return config.AnalysisOptions{}, &config.ValidationError{
				Field:  "progress_interval",
				Reason: fmt.Sprintf("must be in 1..10000, got %d", f.ProgressInterval),
			}
		}
		opts.ProgressInterval = f.ProgressInterval
	}
	for name, value := range f.Weight {
		if err := setWeight(&opts.Weights, name, value); err != nil {
			return config.AnalysisOptions{}, err
		}
	}
	if f.HotspotTop != 0 {
		opts.Levels.HotspotTopPercent = f.HotspotTop
	}
	if f.CriticalTop != 0 {
		opts.Levels.CriticalTopPercent = f.CriticalTop
	}
	if f.Debounce != 0 {
		opts.Debounce = config.Duration(f.Debounce)
	}

	if err := opts.Validate(); err != nil {
		return config.AnalysisOptions{}, err
	}
	return opts, nil
}

func setWeight(w *config.Weights, name string, value float64) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "method":
		w.Method = value
	case "statement":
		w.Statement = value
	case "branch":
		w.Branch = value
	case "callsite":
		w.CallSite = value
	case "fanout":
		w.FanOut = value
	case "indegree":
		w.InDegree = value
	default:
		return &config.ValidationError{Field: "weights." + name, Reason: "is not a known weight"}
	}
	return nil
}

// searchDir is the directory the configuration search starts from.
func searchDir(input string) string {
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return filepath.Dir(input)
	}
	return input
}

// resolveManifest returns the absolute solution or project path for input.
// A directory resolves to its shallowest solution, or failing that its
// shallowest project.
func resolveManifest(input string, excludes []string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", &analyzer.BuildError{Path: abs, Err: analyzer.ErrNotFound}
	}
	if err != nil {
		return "", fmt.Errorf("accessing %s: %w", abs, err)
	}
	if !info.IsDir() {
		return abs, nil
	}

	filter, err := ingestion.NewFilter(abs, excludes)
	if err != nil {
		return "", err
	}
	entries, err := ingestion.WalkRepo(abs, filter)
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", abs, err)
	}

	var manifests []ingestion.FileEntry
	for _, e := range entries {
		if e.Kind == ingestion.KindSolution || e.Kind == ingestion.KindProject {
			manifests = append(manifests, e)
		}
	}
	if len(manifests) == 0 {
		return "", &analyzer.BuildError{Path: abs, Err: fmt.Errorf("%w: no solution or project found", analyzer.ErrUnsupported)}
	}

	slices.SortFunc(manifests, func(a, b ingestion.FileEntry) int {
		if a.Kind != b.Kind {
			if a.Kind == ingestion.KindSolution {
				return -1
			}
			return 1
		}
		return cmp.Or(
			cmp.Compare(strings.Count(filepath.ToSlash(a.RelPath), "/"), strings.Count(filepath.ToSlash(b.RelPath), "/")),
			strings.Compare(a.RelPath, b.RelPath),
		)
	})
	return manifests[0].Path, nil
}

// workspace holds the resolved input and the analysis plumbing of one run.
type workspace struct {
	manifest string
	root     string
	opts     config.AnalysisOptions
	logger   *slog.Logger
	tracing  *observability.TracerProvider
	builder  *analyzer.Builder
}

func openWorkspace(ctx context.Context, g *Globals, input string, flags AnalysisFlags) (*workspace, error) {
	opts, err := flags.Options(input)
	if err != nil {
		return nil, err
	}

	manifest, err := resolveManifest(input, opts.Exclude)
	if err != nil {
		return nil, err
	}

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.ServiceVersion = Version
	tracingCfg.OTLPEndpoint = flags.OTLPEndpoint
	tracing, err := observability.InitTracing(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	logger := g.Logger()
	return &workspace{
		manifest: manifest,
		root:     filepath.Dir(manifest),
		opts:     opts,
		logger:   logger,
		tracing:  tracing,
		builder: analyzer.NewBuilder(
			analyzer.WithLogger(logger),
			analyzer.WithTracer(tracing.Tracer()),
		),
	}, nil
}

// Close flushes traces.
func (w *workspace) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.tracing.Shutdown(ctx); err != nil {
		w.logger.Warn("shutting down tracing", "error", err)
	}
}

func (w *workspace) newProvider() analyzer.FactProvider {
	return csharp.NewProvider(
		csharp.WithLogger(w.logger),
		csharp.WithExcludes(w.opts.Exclude),
	)
}

// build runs a full analysis. Progress goes to progress unless nil.
func (w *workspace) build(ctx context.Context, progress analyzer.ProgressFunc) (*graph.DependencyGraph, error) {
	return w.builder.AnalyzePath(ctx, w.newProvider(), w.manifest, w.opts, progress)
}

// openStore opens the workspace snapshot store for writing.
func (w *workspace) openStore() (*storage.BadgerBackend, error) {
	store := storage.NewBadgerBackend()
	if err := store.Initialize(filepath.Join(w.root, filepath.FromSlash(storeDir)), false); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// session starts a live session over initial. A nil store disables
// persistence.
func (w *workspace) session(initial *graph.DependencyGraph, store storage.SnapshotStore) *realtime.Session {
	updater := realtime.NewUpdater(w.builder, w.newProvider, w.opts,
		realtime.WithUpdaterLogger(w.logger),
		realtime.WithUpdaterTracer(w.tracing.Tracer()),
	)

	opts := []realtime.SessionOption{realtime.WithSessionLogger(w.logger)}
	if store != nil {
		opts = append(opts, realtime.WithStore(store))
	}
	return realtime.NewSession(initial, updater, w.manifest, opts...)
}

// watch feeds workspace changes into session until ctx is cancelled.
func (w *workspace) watch(ctx context.Context, session *realtime.Session) error {
	filter, err := ingestion.NewFilter(w.root, w.opts.Exclude)
	if err != nil {
		return err
	}
	watcher, err := ingestion.NewWatcher(w.root, filter, ingestion.WithWatcherLogger(w.logger))
	if err != nil {
		return err
	}

	scheduler, err := realtime.NewScheduler(time.Duration(w.opts.Debounce), session.OnBatch(ctx))
	if err != nil {
		return err
	}
	defer scheduler.Close()

	err = watcher.Run(ctx, func(event graph.GraphChangeEvent) {
		if err := scheduler.Submit(event); err != nil {
			w.logger.Debug("dropping change", "path", event.Path, "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
