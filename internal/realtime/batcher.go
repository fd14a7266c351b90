// Package realtime turns workspace change events into graph updates: it
// batches and debounces events, picks an incremental or full update and owns
// the live graph snapshot.
package realtime

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/Benny93/depsphere-go/internal/graph"
)

// MergeEvents collapses events to one per path, keeping the last event for
// each path. Paths are trimmed and cleaned and compared case-insensitively.
// Events with blank paths are dropped. The result is sorted by path.
func MergeEvents(events []graph.GraphChangeEvent) []graph.GraphChangeEvent {
	merged := make(map[string]graph.GraphChangeEvent, len(events))
	for _, event := range events {
		path := strings.TrimSpace(event.Path)
		if path == "" {
			continue
		}
		event.Path = filepath.Clean(path)
		merged[strings.ToLower(event.Path)] = event
	}

	out := make([]graph.GraphChangeEvent, 0, len(merged))
	for _, event := range merged {
		out = append(out, event)
	}
	slices.SortFunc(out, func(a, b graph.GraphChangeEvent) int {
		if c := strings.Compare(strings.ToLower(a.Path), strings.ToLower(b.Path)); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return out
}
