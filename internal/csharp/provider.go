// Package csharp provides the analyzer.FactProvider for C# solutions,
// projects and in-memory sources.
//
// Facts come from tree-sitter syntax. Type names bind through usings,
// aliases, enclosing namespaces and nested types; names that bind to no
// declared type are treated as external and dropped.
package csharp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/ingestion"
	"github.com/Benny93/depsphere-go/internal/parsers"
)

// Provider resolves C# inputs into units and answers per-type queries.
// A Provider accumulates a type table across the units it has loaded and is
// not safe for concurrent use.
type Provider struct {
	parser   parsers.Parser
	logger   *slog.Logger
	excludes []string
	limit    int

	units map[analyzer.Unit][]string
	types map[string]*typeEntry
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithExcludes sets doublestar globs, relative to each project directory,
// that remove files from default compile items.
func WithExcludes(patterns []string) Option {
	return func(p *Provider) {
		p.excludes = patterns
	}
}

// WithConcurrency bounds the number of files parsed in parallel.
func WithConcurrency(n int) Option {
	return func(p *Provider) {
		p.limit = n
	}
}

// NewProvider creates a provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		parser: parsers.NewCSharpParser(),
		logger: slog.Default(),
		units:  make(map[analyzer.Unit][]string),
		types:  make(map[string]*typeEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve loads a .sln or .csproj. A solution yields one unit per listed C#
// project, in solution order.
func (p *Provider) Resolve(ctx context.Context, path string) ([]analyzer.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &analyzer.BuildError{Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &analyzer.BuildError{Path: path, Err: analyzer.ErrNotFound}
	}
	if err != nil {
		return nil, &analyzer.BuildError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &analyzer.BuildError{Path: path, Err: fmt.Errorf("%w: directory", analyzer.ErrUnsupported)}
	}

	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".sln":
		return p.resolveSolution(ctx, abs)
	case ".csproj":
		project, err := loadProject(abs, p.excludes)
		if err != nil {
			return nil, &analyzer.BuildError{Path: path, Err: err}
		}
		return []analyzer.Unit{project}, nil
	default:
		return nil, &analyzer.BuildError{Path: path, Err: fmt.Errorf("%w: %q files", analyzer.ErrUnsupported, ext)}
	}
}

func (p *Provider) resolveSolution(ctx context.Context, slnPath string) ([]analyzer.Unit, error) {
	paths, err := solutionProjects(slnPath)
	if err != nil {
		return nil, &analyzer.BuildError{Path: slnPath, Err: err}
	}

	units := make([]analyzer.Unit, 0, len(paths))
	for _, projPath := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		project, err := loadProject(projPath, p.excludes)
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("solution project missing", "solution", slnPath, "project", projPath)
			continue
		}
		if err != nil {
			return nil, &analyzer.BuildError{Path: projPath, Err: err}
		}
		units = append(units, project)
	}
	return units, nil
}

// DeclaredTypes parses unit on first use and returns the ids it declares.
func (p *Provider) DeclaredTypes(ctx context.Context, unit analyzer.Unit) ([]string, error) {
	ids, err := p.load(ctx, unit)
	if err != nil {
		return nil, err
	}
	return slices.Clone(ids), nil
}

// ForType returns the facts of a type owned by unit. Partial declarations
// are merged: counts are summed and the location is the first declaration's.
func (p *Provider) ForType(ctx context.Context, unit analyzer.Unit, typeID string) (analyzer.TypeFacts, error) {
	if _, err := p.load(ctx, unit); err != nil {
		return analyzer.TypeFacts{}, err
	}
	entry, ok := p.types[typeID]
	if !ok || entry.unit != unit {
		return analyzer.TypeFacts{}, fmt.Errorf("type %s is not declared in %s", typeID, unit.Name())
	}

	base, interfaces := p.bases(entry)
	facts := analyzer.TypeFacts{
		BaseType:   base,
		Interfaces: slices.Clone(interfaces),
	}

	refs := make(map[string]bool)
	var counts parsers.Counts
	for _, site := range entry.sites {
		counts = counts.Add(site.decl.Counts)
		for _, ref := range site.decl.References {
			if id, ok := p.resolveType(ref.Text, site); ok {
				refs[id] = true
			}
		}
		for _, access := range site.decl.MemberAccesses {
			for _, id := range p.accessTargets(access, entry.id, site) {
				refs[id] = true
			}
		}
	}

	facts.Members = analyzer.MemberCounts{
		Methods:    counts.Methods,
		Statements: counts.Statements,
		Branches:   counts.Branches,
		CallSites:  counts.CallSites,
	}
	for id := range refs {
		facts.ReferencedTypes = append(facts.ReferencedTypes, id)
	}
	slices.Sort(facts.ReferencedTypes)

	loc := entry.sites[0].decl.Location
	facts.Location = &loc
	return facts, nil
}

// load parses every file of unit and registers its declarations. A type
// already owned by another unit stays with that unit.
func (p *Provider) load(ctx context.Context, unit analyzer.Unit) ([]string, error) {
	if ids, ok := p.units[unit]; ok {
		return ids, nil
	}

	entries, err := p.entries(unit)
	if err != nil {
		return nil, err
	}
	data, err := ingestion.ProcessParsing(ctx, entries, p.parser, p.limit)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", unit.Name(), err)
	}

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, path := range data.Paths() {
		result, _ := data.Get(path)
		scope := newFileScope(result)
		for i := range result.Types {
			decl := &result.Types[i]
			id := decl.ID()
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
			p.register(unit, decl, scope)
		}
	}

	p.units[unit] = ids
	p.logger.Debug("unit parsed", "unit", unit.Name(), "files", len(entries), "types", len(ids))
	return ids, nil
}

func (p *Provider) register(unit analyzer.Unit, decl *parsers.TypeDeclaration, scope *fileScope) {
	id := decl.ID()
	entry, ok := p.types[id]
	if !ok {
		entry = &typeEntry{id: id, kind: decl.Kind, unit: unit}
		p.types[id] = entry
	}
	if entry.unit != unit {
		return
	}
	entry.sites = append(entry.sites, newDeclSite(decl, scope))
}

// entries returns the source files of unit. Files listed by a project but
// missing on disk are skipped.
func (p *Provider) entries(unit analyzer.Unit) ([]ingestion.FileEntry, error) {
	switch u := unit.(type) {
	case *Project:
		entries := make([]ingestion.FileEntry, 0, len(u.Files))
		for _, path := range u.Files {
			content, err := os.ReadFile(path)
			if err != nil {
				p.logger.Warn("skipping unreadable source", "project", u.Name(), "path", path, "error", err)
				continue
			}
			entries = append(entries, ingestion.FileEntry{
				Path:    path,
				RelPath: relTo(u.Dir, path),
				Kind:    ingestion.KindSource,
				Content: content,
				Hash:    ingestion.Fingerprint(content),
			})
		}
		return entries, nil

	case *SourceUnit:
		entries := make([]ingestion.FileEntry, 0, len(u.sources))
		for path, content := range u.sources {
			entries = append(entries, ingestion.FileEntry{
				Path:    path,
				RelPath: path,
				Kind:    ingestion.KindSource,
				Content: content,
				Hash:    ingestion.Fingerprint(content),
			})
		}
		return entries, nil

	default:
		return nil, fmt.Errorf("%w: unit %T", analyzer.ErrUnsupported, unit)
	}
}

func relTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil {
		return rel
	}
	return path
}

var _ analyzer.FactProvider = (*Provider)(nil)
