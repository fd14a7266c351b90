package ingestion

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/depsphere-go/internal/parsers"
)

// ParseData holds parsing results for all files.
type ParseData struct {
	mu    sync.RWMutex
	Files map[string]*parsers.ParseResult
}

// NewParseData creates a new ParseData instance.
func NewParseData() *ParseData {
	return &ParseData{
		Files: make(map[string]*parsers.ParseResult),
	}
}

// AddFile adds parsing results for a file.
func (p *ParseData) AddFile(path string, result *parsers.ParseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Files[path] = result
}

// Get returns the parsing results for a file.
func (p *ParseData) Get(path string) (*parsers.ParseResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result, ok := p.Files[path]
	return result, ok
}

// Paths returns the parsed file paths in sorted order.
func (p *ParseData) Paths() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// ProcessParsing parses every source entry with parser, using at most limit
// goroutines. A limit below one uses GOMAXPROCS. Entries that are not source
// files are skipped. The first parse error or context cancellation stops the
// run.
func ProcessParsing(ctx context.Context, entries []FileEntry, parser parsers.Parser, limit int) (*ParseData, error) {
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}

	data := NewParseData()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, entry := range entries {
		if entry.Kind != KindSource {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := parser.Parse(entry.Path, entry.Content)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", entry.Path, err)
			}
			data.AddFile(entry.Path, result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}
