package cmd

import (
	"fmt"
	"strings"

	"github.com/Benny93/depsphere-go/internal/graph"
	"github.com/Benny93/depsphere-go/internal/scoring"
	"github.com/Benny93/depsphere-go/internal/view"
)

// StatsCmd prints edge statistics, cycles and hotspots of a graph file.
type StatsCmd struct {
	Graph       string  `arg:"" type:"existingfile" help:"Graph JSON file written by analyze"`
	Top         int     `short:"n" default:"10" help:"Number of top types to list"`
	HotspotTop  float64 `default:"${hotspot_top}" help:"Fraction of top scoring types classified hotspot or above"`
	CriticalTop float64 `default:"${critical_top}" help:"Fraction of top scoring types classified critical"`
	JSON        bool    `help:"Print statistics as JSON"`
}

// statsReport is the JSON form of the stats command.
type statsReport struct {
	Statistics graph.EdgeStatistics `json:"statistics"`
	Cycles     [][]string           `json:"cycles"`
	Top        []scoring.RankedNode `json:"top"`
}

// Run executes the stats command.
func (c *StatsCmd) Run(g *Globals) error {
	dg, err := readGraph(c.Graph)
	if err != nil {
		return err
	}

	ranked, err := scoring.Rank(dg.Nodes, c.HotspotTop, c.CriticalTop)
	if err != nil {
		return err
	}
	report := statsReport{
		Statistics: graph.Statistics(dg),
		Cycles:     graph.Cycles(dg),
		Top:        ranked[:min(max(c.Top, 0), len(ranked))],
	}
	if report.Cycles == nil {
		report.Cycles = [][]string{}
	}

	if c.JSON {
		return printJSON(g.Out(), report)
	}

	out := g.Out()
	s := report.Statistics
	fmt.Fprintln(out, "## Edge Statistics")
	fmt.Fprintf(out, "  Types:                    %d\n", s.NodeCount)
	fmt.Fprintf(out, "  Edges:                    %d\n", s.EdgeCount)
	fmt.Fprintf(out, "  Possible directed edges:  %d\n", s.PossibleDirectedEdgeCount)
	fmt.Fprintf(out, "  Density:                  %.4f\n", s.OverallDensity)
	for _, k := range s.KindStats {
		fmt.Fprintf(out, "  %-10s %6d  %.4f\n", k.Kind, k.Count, k.Density)
	}

	fmt.Fprintf(out, "\n## Cycles (%d)\n", len(report.Cycles))
	for _, cycle := range report.Cycles {
		fmt.Fprintf(out, "  - %s\n", strings.Join(cycle, " <-> "))
	}

	if len(report.Top) > 0 {
		fmt.Fprintln(out, "\n## Top Types")
		printRanked(out, report.Top)
	}
	return nil
}

// DiffCmd prints the patch that turns one graph file into another.
type DiffCmd struct {
	Old string `arg:"" type:"existingfile" help:"Graph JSON before"`
	New string `arg:"" type:"existingfile" help:"Graph JSON after"`
}

// Run executes the diff command.
func (c *DiffCmd) Run(g *Globals) error {
	before, err := readGraph(c.Old)
	if err != nil {
		return err
	}
	after, err := readGraph(c.New)
	if err != nil {
		return err
	}
	return printJSON(g.Out(), graph.Diff(before, after))
}

// ShowCmd prints the declaration of a node from a graph file.
type ShowCmd struct {
	Graph   string `arg:"" type:"existingfile" help:"Graph JSON file written by analyze"`
	ID      string `arg:"" help:"Fully qualified type id"`
	Context int    `short:"C" default:"3" help:"Lines shown around the declaration"`
	Full    bool   `help:"Print the whole file"`
	JSON    bool   `help:"Print the source document as JSON"`
}

// Run executes the show command.
func (c *ShowCmd) Run(g *Globals) error {
	dg, err := readGraph(c.Graph)
	if err != nil {
		return err
	}

	doc, err := view.OpenNode(dg, c.ID)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(g.Out(), doc)
	}

	out := g.Out()
	fmt.Fprintf(out, "%s:%d-%d\n\n", doc.FilePath, doc.StartLine, doc.EndLine)
	if c.Full {
		fmt.Fprintln(out, doc.Content)
		return nil
	}
	fmt.Fprint(out, doc.Excerpt(c.Context))
	return nil
}
