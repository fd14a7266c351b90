// Package ingestion discovers C# workspace files and watches them for changes.
package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileKind categorizes tracked workspace files.
type FileKind string

const (
	KindSource   FileKind = "source"
	KindProject  FileKind = "project"
	KindSolution FileKind = "solution"
)

// FileEntry represents a file to be processed.
type FileEntry struct {
	// Path is the absolute file path.
	Path string

	// RelPath is the path relative to the walk root.
	RelPath string

	Kind FileKind

	// Content is the file content.
	Content []byte

	// Hash is the xxhash of the file content.
	Hash uint64
}

// Tracked file extensions and their kinds.
var supportedExtensions = map[string]FileKind{
	".cs":     KindSource,
	".csproj": KindProject,
	".sln":    KindSolution,
}

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	"bin/",
	"obj/",
	".vs/",
	".idea/",
	".depsphere/",
	"node_modules/",
	"TestResults/",
}

// ShouldTrack reports whether path is a C# source, project or solution file.
func ShouldTrack(path string) bool {
	_, ok := Kind(path)
	return ok
}

// Kind returns the kind of a tracked file.
func Kind(path string) (FileKind, bool) {
	if strings.TrimSpace(path) == "" {
		return "", false
	}
	kind, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// Fingerprint returns the content hash used to detect unchanged writes.
func Fingerprint(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// Filter decides which paths under a root are ignored. It combines the
// default patterns, the root .gitignore and doublestar exclude globs.
type Filter struct {
	root     string
	matcher  gitignore.Matcher
	excludes []string
}

// NewFilter creates a filter for root. Exclude globs are matched against
// slash-separated paths relative to root.
func NewFilter(root string, excludes []string) (*Filter, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	patterns, err := loadGitignore(root)
	if err != nil {
		return nil, fmt.Errorf("loading .gitignore: %w", err)
	}

	all := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(patterns))
	for _, p := range defaultIgnorePatterns {
		all = append(all, gitignore.ParsePattern(p, nil))
	}
	all = append(all, patterns...)

	return &Filter{
		root:     root,
		matcher:  gitignore.NewMatcher(all),
		excludes: excludes,
	}, nil
}

// Root returns the directory the filter is relative to.
func (f *Filter) Root() string {
	return f.root
}

// Ignored reports whether path is ignored. Paths outside the root are never
// ignored.
func (f *Filter) Ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}

	if f.matcher.Match(splitPath(rel), isDir) {
		return true
	}

	slashed := filepath.ToSlash(rel)
	for _, pattern := range f.excludes {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, slashed+"/"); ok {
				return true
			}
		}
	}
	return false
}

// WalkRepo walks root and returns every tracked file that the filter does
// not ignore. A nil filter applies only the default patterns.
func WalkRepo(root string, filter *Filter) ([]FileEntry, error) {
	if filter == nil {
		var err error
		if filter, err = NewFilter(root, nil); err != nil {
			return nil, err
		}
	}

	var entries []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && filter.Ignored(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		kind, ok := Kind(d.Name())
		if !ok || filter.Ignored(path, false) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path:    path,
			RelPath: relPath,
			Kind:    kind,
			Content: content,
			Hash:    Fingerprint(content),
		})
		return nil
	})

	return entries, err
}

// loadGitignore loads .gitignore patterns from the root.
func loadGitignore(root string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}
