package csharp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/ingestion"
)

// projectLine matches `Project("{type}") = "Name", "rel\path.csproj", "{id}"`.
var projectLine = regexp.MustCompile(`(?m)^\s*Project\("[^"]*"\)\s*=\s*"([^"]*)"\s*,\s*"([^"]*)"`)

// Project is a .csproj compilation unit.
type Project struct {
	name string

	// Path is the absolute project file path.
	Path string

	// Dir is the project directory.
	Dir string

	// Files are the absolute source paths compiled by the project, sorted.
	Files []string
}

// Name returns the assembly name, or the project file name without extension.
func (p *Project) Name() string {
	return p.name
}

// SourceUnit is an in-memory compilation unit keyed by file path.
type SourceUnit struct {
	name    string
	sources map[string][]byte
}

// NewSourceUnit creates a unit over in-memory sources.
func NewSourceUnit(name string, sources map[string][]byte) *SourceUnit {
	return &SourceUnit{name: name, sources: sources}
}

// Name returns the unit name.
func (u *SourceUnit) Name() string {
	return u.name
}

type projectFile struct {
	PropertyGroups []struct {
		AssemblyName              string `xml:"AssemblyName"`
		EnableDefaultCompileItems string `xml:"EnableDefaultCompileItems"`
	} `xml:"PropertyGroup"`
	ItemGroups []struct {
		Compile []struct {
			Include string `xml:"Include,attr"`
			Remove  string `xml:"Remove,attr"`
		} `xml:"Compile"`
	} `xml:"ItemGroup"`
}

// solutionProjects returns the absolute .csproj paths listed in a solution,
// in file order. Solution folders and non-C# projects are skipped.
func solutionProjects(slnPath string) ([]string, error) {
	content, err := os.ReadFile(slnPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(slnPath)
	seen := make(map[string]bool)
	var paths []string
	for _, m := range projectLine.FindAllStringSubmatch(string(content), -1) {
		rel := filepath.FromSlash(strings.ReplaceAll(m[2], `\`, "/"))
		if !strings.EqualFold(filepath.Ext(rel), ".csproj") {
			continue
		}
		abs := filepath.Clean(filepath.Join(dir, rel))
		if seen[abs] {
			continue
		}
		seen[abs] = true
		paths = append(paths, abs)
	}
	return paths, nil
}

// loadProject reads a .csproj and expands its compile items.
func loadProject(projPath string, excludes []string) (*Project, error) {
	content, err := os.ReadFile(projPath)
	if err != nil {
		return nil, err
	}

	var manifest projectFile
	if err := xml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("parsing project file: %w", err)
	}

	dir := filepath.Dir(projPath)
	project := &Project{
		name: strings.TrimSuffix(filepath.Base(projPath), filepath.Ext(projPath)),
		Path: projPath,
		Dir:  dir,
	}

	defaults := true
	for _, group := range manifest.PropertyGroups {
		if name := strings.TrimSpace(group.AssemblyName); name != "" {
			project.name = name
		}
		if strings.EqualFold(strings.TrimSpace(group.EnableDefaultCompileItems), "false") {
			defaults = false
		}
	}

	files := make(map[string]bool)
	if defaults {
		filter, err := ingestion.NewFilter(dir, excludes)
		if err != nil {
			return nil, err
		}
		matches, err := globFiles(dir, "**/*.cs")
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !filter.Ignored(m, false) {
				files[m] = true
			}
		}
	}

	var removes []string
	for _, group := range manifest.ItemGroups {
		for _, item := range group.Compile {
			for _, pattern := range splitItems(item.Include) {
				matches, err := globFiles(dir, pattern)
				if err != nil {
					return nil, fmt.Errorf("expanding compile item %q: %w", pattern, err)
				}
				for _, m := range matches {
					files[m] = true
				}
			}
			removes = append(removes, splitItems(item.Remove)...)
		}
	}

	for file := range files {
		if removed(dir, file, removes) {
			continue
		}
		project.Files = append(project.Files, file)
	}
	slices.Sort(project.Files)
	return project, nil
}

// splitItems splits an MSBuild item list into slash-separated patterns.
func splitItems(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, path.Clean(strings.ReplaceAll(item, `\`, "/")))
	}
	return items
}

// globFiles expands a slash-separated pattern relative to dir into absolute
// file paths. A literal path that does not exist expands to nothing.
func globFiles(dir, pattern string) ([]string, error) {
	if strings.HasPrefix(pattern, "../") {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, filepath.FromSlash(pattern)), doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for i, m := range matches {
			matches[i] = filepath.Clean(m)
		}
		return matches, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	for i, m := range matches {
		matches[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return matches, nil
}

func removed(dir, file string, patterns []string) bool {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

var (
	_ analyzer.Unit = (*Project)(nil)
	_ analyzer.Unit = (*SourceUnit)(nil)
)
