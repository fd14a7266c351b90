package scoring

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
)

// Level is the severity tier of a node.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHotspot  Level = "hotspot"
	LevelNormal   Level = "normal"
)

// RankedNode is a node with its position and level in the score ranking.
type RankedNode struct {
	Node  graph.DependencyNode `json:"node"`
	Rank  int                  `json:"rank"`
	Level Level                `json:"level"`
}

// Rank orders nodes by score descending, then by id ascending, and assigns
// levels. The top max(1, ceil(n*critical)) nodes are critical; the top
// max(1, ceil(n*hotspot)) nodes, never fewer than the critical count, are
// hotspot or critical.
func Rank(nodes []graph.DependencyNode, hotspot, critical float64) ([]RankedNode, error) {
	if err := config.ValidateLevels(hotspot, critical); err != nil {
		return nil, err
	}

	ordered := slices.Clone(nodes)
	slices.SortFunc(ordered, func(a, b graph.DependencyNode) int {
		if c := cmp.Compare(b.Metrics.WeightScore, a.Metrics.WeightScore); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	criticalCount, hotspotCount := LevelCounts(len(ordered), hotspot, critical)

	ranked := make([]RankedNode, len(ordered))
	for i, node := range ordered {
		level := LevelNormal
		switch {
		case i < criticalCount:
			level = LevelCritical
		case i < hotspotCount:
			level = LevelHotspot
		}
		ranked[i] = RankedNode{Node: node, Rank: i + 1, Level: level}
	}
	return ranked, nil
}

// Classify returns the level of every node keyed by id.
func Classify(nodes []graph.DependencyNode, hotspot, critical float64) (map[string]Level, error) {
	ranked, err := Rank(nodes, hotspot, critical)
	if err != nil {
		return nil, err
	}
	levels := make(map[string]Level, len(ranked))
	for _, r := range ranked {
		levels[r.Node.ID] = r.Level
	}
	return levels, nil
}

// LevelCounts returns how many of n nodes are critical and how many are
// hotspot or above. Both are 0 when n is 0.
func LevelCounts(n int, hotspot, critical float64) (criticalCount, hotspotCount int) {
	if n == 0 {
		return 0, 0
	}
	criticalCount = max(1, int(math.Ceil(float64(n)*critical)))
	hotspotCount = max(1, int(math.Ceil(float64(n)*hotspot)))
	hotspotCount = max(hotspotCount, criticalCount)
	return min(criticalCount, n), min(hotspotCount, n)
}
