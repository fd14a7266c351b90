package view

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Benny93/depsphere-go/internal/graph"
)

var (
	// ErrNodeNotFound is returned when the graph has no node with the id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoLocation is returned when a node has no source location.
	ErrNoLocation = errors.New("source location is not available")
)

// SourceDocument is the full source of a node's file with the node's line
// span, 1-based and inclusive.
type SourceDocument struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Content   string `json:"content"`
}

// OpenNode reads the file declaring id. The span is clamped to the file:
// the start to [1, lines] and the end to [start, lines]. An empty file
// yields the span 1..1 with empty content.
func OpenNode(g *graph.DependencyGraph, id string) (SourceDocument, error) {
	node, ok := g.Node(id)
	if !ok {
		return SourceDocument{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if node.Location == nil {
		return SourceDocument{}, fmt.Errorf("%w: %s", ErrNoLocation, id)
	}

	path := node.Location.FilePath
	if strings.TrimSpace(path) == "" {
		return SourceDocument{}, fmt.Errorf("%w: %s", ErrNoLocation, id)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return SourceDocument{}, fmt.Errorf("reading source of %s: %w", id, err)
	}

	lines := splitLines(string(content))
	if len(lines) == 0 {
		return SourceDocument{FilePath: path, StartLine: 1, EndLine: 1}, nil
	}

	start := clamp(node.Location.StartLine, 1, len(lines))
	end := clamp(node.Location.EndLine, start, len(lines))
	return SourceDocument{
		FilePath:  path,
		StartLine: start,
		EndLine:   end,
		Content:   strings.Join(lines, "\n"),
	}, nil
}

// Excerpt returns the node's lines plus up to context lines around them,
// each prefixed with its line number.
func (d SourceDocument) Excerpt(context int) string {
	lines := splitLines(d.Content)
	if len(lines) == 0 {
		return ""
	}

	from := max(1, d.StartLine-max(context, 0))
	to := min(len(lines), d.EndLine+max(context, 0))

	var b strings.Builder
	for n := from; n <= to; n++ {
		fmt.Fprintf(&b, "%5d  %s\n", n, lines[n-1])
	}
	return b.String()
}

// splitLines splits text into lines without terminators. A final line
// terminator does not start another line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	return strings.Split(text, "\n")
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
