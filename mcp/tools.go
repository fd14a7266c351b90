package mcp

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/scoring"
	"github.com/Benny93/depsphere-go/internal/view"
)

// Tool Handlers

func handleFind(g *graph.DependencyGraph, query string, limit int) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "No query provided"
	}

	needle := strings.ToLower(query)
	var matches []graph.DependencyNode
	for _, node := range g.Nodes {
		if strings.Contains(strings.ToLower(node.ID), needle) {
			matches = append(matches, node)
		}
	}
	if len(matches) == 0 {
		return "No results found"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d types matching '%s':\n\n", len(matches), query)
	for i, node := range matches {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(matches)-limit)
			break
		}
		fmt.Fprintf(&sb, "%d. **%s** (score %.3f)%s\n", i+1, node.ID, node.Metrics.WeightScore, locationSuffix(node))
	}

	sb.WriteString("\nNext: Use `depsphere_node` on a specific type for the full picture.")
	return sb.String()
}

func handleHotspots(g *graph.DependencyGraph, levels config.Levels, limit int, level scoring.Level) (string, error) {
	switch level {
	case "", scoring.LevelCritical, scoring.LevelHotspot, scoring.LevelNormal:
	default:
		return "", fmt.Errorf("unknown level %q", level)
	}

	ranked, err := scoring.Rank(g.Nodes, levels.HotspotTopPercent, levels.CriticalTopPercent)
	if err != nil {
		return "", err
	}
	if len(ranked) == 0 {
		return "The graph has no types.", nil
	}

	var sb strings.Builder
	sb.WriteString("# Hotspots\n\n")
	shown := 0
	for _, r := range ranked {
		if level != "" && r.Level != level {
			continue
		}
		if shown == limit {
			break
		}
		shown++
		m := r.Node.Metrics
		fmt.Fprintf(&sb, "%d. **%s** [%s] score %.3f\n", r.Rank, r.Node.ID, r.Level, m.WeightScore)
		fmt.Fprintf(&sb, "   methods %d, statements %d, branches %d, calls %d, fan-out %d, in-degree %d\n",
			m.MethodCount, m.StatementCount, m.BranchCount, m.CallSiteCount, m.FanOut, m.InDegree)
	}
	if shown == 0 {
		fmt.Fprintf(&sb, "No %s types.\n", level)
	}
	return sb.String(), nil
}

func handleNode(g *graph.DependencyGraph, levels config.Levels, symbol string, contextLines int) (string, error) {
	if strings.TrimSpace(symbol) == "" {
		return "No type id provided", nil
	}

	id, err := resolveNodeID(g, symbol)
	if err != nil {
		return err.Error(), nil
	}
	node, _ := g.Node(id)

	levelByID, err := scoring.Classify(g.Nodes, levels.HotspotTopPercent, levels.CriticalTopPercent)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	m := node.Metrics
	fmt.Fprintf(&sb, "# %s\n\n", id)
	fmt.Fprintf(&sb, "Level: %s\n", levelByID[id])
	fmt.Fprintf(&sb, "Score: %.3f\n", m.WeightScore)
	fmt.Fprintf(&sb, "Methods: %d, Statements: %d, Branches: %d, Call sites: %d, Fan-out: %d, In-degree: %d\n",
		m.MethodCount, m.StatementCount, m.BranchCount, m.CallSiteCount, m.FanOut, m.InDegree)

	w := graph.FromSnapshot(g)
	writeEdges(&sb, "Depends on", w.GetOutgoing(id), func(e graph.DependencyEdge) string { return e.To })
	writeEdges(&sb, "Used by", w.GetIncoming(id), func(e graph.DependencyEdge) string { return e.From })

	doc, err := view.OpenNode(g, id)
	switch {
	case err == nil:
		fmt.Fprintf(&sb, "\n## Source (%s:%d-%d)\n\n```csharp\n%s```\n", doc.FilePath, doc.StartLine, doc.EndLine, doc.Excerpt(contextLines))
	case errors.Is(err, view.ErrNoLocation):
		sb.WriteString("\nNo source location.\n")
	default:
		fmt.Fprintf(&sb, "\nSource unavailable: %v\n", err)
	}

	sb.WriteString("\nNext: Use `depsphere_dependents` if planning changes to this type.")
	return sb.String(), nil
}

func writeEdges(sb *strings.Builder, title string, edges []graph.DependencyEdge, other func(graph.DependencyEdge) string) {
	if len(edges) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s (%d)\n", title, len(edges))
	for _, e := range edges {
		fmt.Fprintf(sb, "- %s (%s)\n", other(e), e.Kind)
	}
}

// dependents walks incoming edges breadth-first up to depth and returns the
// reached ids with their distance.
func dependents(g *graph.DependencyGraph, id string, depth int) map[string]int {
	w := graph.FromSnapshot(g)
	dist := map[string]int{id: 0}
	frontier := []string{id}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, cur := range frontier {
			for _, e := range w.GetIncoming(cur) {
				if _, seen := dist[e.From]; seen {
					continue
				}
				dist[e.From] = level
				next = append(next, e.From)
			}
		}
		frontier = next
	}
	delete(dist, id)
	return dist
}

func handleDependents(g *graph.DependencyGraph, symbol string, depth int) string {
	if strings.TrimSpace(symbol) == "" {
		return "No type id provided"
	}

	id, err := resolveNodeID(g, symbol)
	if err != nil {
		return err.Error()
	}

	// No dependency chain is longer than the graph.
	depth = min(depth, len(g.Nodes))
	dist := dependents(g, id, depth)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Impact analysis for: **%s** (depth: %d)\n\n", id, depth)
	if len(dist) == 0 {
		sb.WriteString("No dependents found. Changes to this type stay local.\n")
		return sb.String()
	}

	byDepth := make(map[int]map[string]bool)
	for dep, d := range dist {
		if byDepth[d] == nil {
			byDepth[d] = make(map[string]bool)
		}
		byDepth[d][dep] = true
	}
	levels := make([]int, 0, len(byDepth))
	for d := range byDepth {
		levels = append(levels, d)
	}
	slices.Sort(levels)

	fmt.Fprintf(&sb, "## Affected types (%d)\n", len(dist))
	for _, d := range levels {
		for _, dep := range sortedIDs(byDepth[d]) {
			fmt.Fprintf(&sb, "- [depth %d] %s\n", d, dep)
		}
	}
	return sb.String()
}

func handleStats(g *graph.DependencyGraph) string {
	stats := graph.Statistics(g)

	var sb strings.Builder
	sb.WriteString("# Edge Statistics\n\n")
	fmt.Fprintf(&sb, "**Nodes:** %d\n", stats.NodeCount)
	fmt.Fprintf(&sb, "**Edges:** %d\n", stats.EdgeCount)
	fmt.Fprintf(&sb, "**Possible directed edges:** %d\n", stats.PossibleDirectedEdgeCount)
	fmt.Fprintf(&sb, "**Density:** %.4f\n\n", stats.OverallDensity)
	sb.WriteString("| Kind | Count | Density |\n")
	sb.WriteString("|------|-------|---------|\n")
	for _, k := range stats.KindStats {
		fmt.Fprintf(&sb, "| %s | %d | %.4f |\n", k.Kind, k.Count, k.Density)
	}
	return sb.String()
}

func handleCycles(g *graph.DependencyGraph) string {
	cycles := graph.Cycles(g)
	if len(cycles) == 0 {
		return "No dependency cycles found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Dependency Cycles (%d)\n\n", len(cycles))
	for i, cycle := range cycles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.Join(cycle, ", "))
	}
	return sb.String()
}

// handleDetectChanges maps changed files to declared types and their dependents.
func handleDetectChanges(g *graph.DependencyGraph, files []string) string {
	if len(files) == 0 {
		return "No changed files provided. Please specify files to analyze."
	}

	w := graph.FromSnapshot(g)
	changed := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		for _, id := range w.NodesByFile(abs) {
			changed[id] = true
		}
	}
	if len(changed) == 0 {
		return "No types found in the specified changed files."
	}

	var sb strings.Builder
	sb.WriteString("# Change Detection Report\n\n")
	fmt.Fprintf(&sb, "## Changed Files (%d)\n\n", len(files))
	for _, file := range files {
		fmt.Fprintf(&sb, "- `%s`\n", file)
	}

	fmt.Fprintf(&sb, "\n## Changed Types (%d)\n\n", len(changed))
	for _, id := range sortedIDs(changed) {
		fmt.Fprintf(&sb, "- **%s**\n", id)
	}

	affected := make(map[string]bool)
	for id := range changed {
		for _, e := range w.GetIncoming(id) {
			if !changed[e.From] {
				affected[e.From] = true
			}
		}
	}

	if len(affected) > 0 {
		fmt.Fprintf(&sb, "\n## Impact Analysis (%d affected types)\n\n", len(affected))
		sb.WriteString("These types depend directly on the changed types:\n\n")
		for _, id := range sortedIDs(affected) {
			fmt.Fprintf(&sb, "- **%s**\n", id)
		}
		sb.WriteString("\n**Recommendation:** Review and test these affected types after making changes.\n")
	} else {
		sb.WriteString("\n## Impact Analysis\n\n")
		sb.WriteString("No other types depend directly on these changes.\n")
	}
	return sb.String()
}

// Resource Handlers

func getOverview(g *graph.DependencyGraph, analysisPath string, levels config.Levels) (string, error) {
	ranked, err := scoring.Rank(g.Nodes, levels.HotspotTopPercent, levels.CriticalTopPercent)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# DepSphere Dependency Graph Overview\n\n")
	fmt.Fprintf(&sb, "**Analysis path:** %s\n", analysisPath)
	fmt.Fprintf(&sb, "**Nodes:** %d\n", len(g.Nodes))
	fmt.Fprintf(&sb, "**Edges:** %d\n", len(g.Edges))
	fmt.Fprintf(&sb, "**Levels:** critical top %.0f%%, hotspot top %.0f%%\n",
		levels.CriticalTopPercent*100, levels.HotspotTopPercent*100)

	sb.WriteString("\n## Critical Types\n\n")
	found := false
	for _, r := range ranked {
		if r.Level != scoring.LevelCritical {
			break
		}
		found = true
		fmt.Fprintf(&sb, "- %s (score %.3f)\n", r.Node.ID, r.Node.Metrics.WeightScore)
	}
	if !found {
		sb.WriteString("None.\n")
	}

	sb.WriteString("\n## Edge Kinds\n\n")
	sb.WriteString("- inherit: class extends a base class, or interface extends an interface\n")
	sb.WriteString("- implement: class, struct or record implements an interface\n")
	sb.WriteString("- reference: field, property, parameter, return or creation type, or member access\n")
	return sb.String(), nil
}

func locationSuffix(node graph.DependencyNode) string {
	if node.Location == nil {
		return ""
	}
	return fmt.Sprintf(" in %s:%d", node.Location.FilePath, node.Location.StartLine)
}
