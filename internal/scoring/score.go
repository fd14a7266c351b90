package scoring

import (
	"github.com/Benny93/depsphere-go/internal/config"
	"github.com/Benny93/depsphere-go/internal/graph"
)

// metricSeries extracts one raw count from a node's metrics.
type metricSeries func(m graph.TypeMetrics) int

var series = [6]metricSeries{
	func(m graph.TypeMetrics) int { return m.MethodCount },
	func(m graph.TypeMetrics) int { return m.StatementCount },
	func(m graph.TypeMetrics) int { return m.BranchCount },
	func(m graph.TypeMetrics) int { return m.CallSiteCount },
	func(m graph.TypeMetrics) int { return m.FanOut },
	func(m graph.TypeMetrics) int { return m.InDegree },
}

func weightVector(w config.Weights) [6]float64 {
	return [6]float64{w.Method, w.Statement, w.Branch, w.CallSite, w.FanOut, w.InDegree}
}

// Score returns copies of nodes with WeightScore set to the weighted sum of
// their six normalized metrics. Weights are normalized to sum to 1 first;
// invalid weights return an error wrapping config.ErrInvalidOptions.
// Node ids must be unique.
func Score(nodes []graph.DependencyNode, weights config.Weights) ([]graph.DependencyNode, error) {
	normalized, err := config.NormalizeWeights(weights)
	if err != nil {
		return nil, err
	}
	w := weightVector(normalized)

	var norm [6]map[string]float64
	for i, extract := range series {
		raw := make(map[string]int, len(nodes))
		for _, node := range nodes {
			raw[node.ID] = extract(node.Metrics)
		}
		norm[i] = Normalize(raw)
	}

	scored := make([]graph.DependencyNode, len(nodes))
	for i, node := range nodes {
		score := 0.0
		for s := range series {
			score += w[s] * norm[s][node.ID]
		}
		scored[i] = node.Clone()
		scored[i].Metrics.WeightScore = score
	}
	return scored, nil
}
