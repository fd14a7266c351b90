package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Benny93/depsphere-go/internal/scoring"
)

var levelColors = map[scoring.Level]*color.Color{
	scoring.LevelCritical: color.New(color.FgRed, color.Bold),
	scoring.LevelHotspot:  color.New(color.FgYellow),
	scoring.LevelNormal:   color.New(color.FgBlue),
}

func printRanked(w io.Writer, ranked []scoring.RankedNode) {
	for _, r := range ranked {
		level := string(r.Level)
		if c, ok := levelColors[r.Level]; ok {
			level = c.Sprint(level)
		}
		fmt.Fprintf(w, "  %3d. %-9s %.3f  %s\n", r.Rank, level, r.Node.Metrics.WeightScore, r.Node.ID)
	}
}
