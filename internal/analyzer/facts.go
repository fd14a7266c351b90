// Package analyzer builds dependency graphs from per-type structural facts
// and analyzes single files for incremental updates.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/Benny93/depsphere-go/internal/graph"
)

var (
	// ErrNotFound is returned when the analysis path does not exist.
	// errors.Is(err, fs.ErrNotExist) also holds.
	ErrNotFound = fmt.Errorf("analysis path not found: %w", fs.ErrNotExist)

	// ErrUnsupported is returned for inputs that are not a solution or project.
	ErrUnsupported = errors.New("unsupported analysis input")
)

// BuildError reports a failure tied to an input manifest.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("analyzing %s: %v", e.Path, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Unit is one compilation unit, typically a project.
type Unit interface {
	Name() string
}

// MemberCounts are the syntactic size counts of a type.
type MemberCounts struct {
	Methods    int
	Statements int
	Branches   int
	CallSites  int
}

// TypeFacts are the resolved structural facts of one declared type.
// All type names are fully qualified ids.
type TypeFacts struct {
	// BaseType is empty when the type has no base class.
	BaseType        string
	Interfaces      []string
	Members         MemberCounts
	ReferencedTypes []string
	Location        *graph.SourceLocation
}

// FactProvider turns an input path into units and answers per-type queries.
// Implementations need not be safe for concurrent use.
type FactProvider interface {
	// Resolve returns the compilation units of a solution or project.
	Resolve(ctx context.Context, path string) ([]Unit, error)

	// DeclaredTypes returns the ids of every type declared in unit.
	DeclaredTypes(ctx context.Context, unit Unit) ([]string, error)

	// ForType returns the facts of a type declared in unit.
	ForType(ctx context.Context, unit Unit, typeID string) (TypeFacts, error)
}

// Stage names a coarse phase of a build.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageLoad     Stage = "load"
	StageCompile  Stage = "compile"
	StageMetrics  Stage = "metrics"
	StageComplete Stage = "complete"
)

// Progress is a build progress report. Current and Total are zero when the
// stage has no count.
type Progress struct {
	Stage   Stage
	Message string
	Current int
	Total   int
}

func (p Progress) String() string {
	if p.Total > 0 {
		return fmt.Sprintf("[%s] %s (%d/%d)", p.Stage, p.Message, p.Current, p.Total)
	}
	return fmt.Sprintf("[%s] %s", p.Stage, p.Message)
}

// ProgressFunc receives progress reports. It is called synchronously on the
// building goroutine.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(stage Stage, message string, current, total int) {
	if f != nil {
		f(Progress{Stage: stage, Message: message, Current: current, Total: total})
	}
}
