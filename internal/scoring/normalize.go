// Package scoring turns raw structural counts into normalized importance
// scores and severity levels.
package scoring

import (
	"math"
	"slices"
)

// ClampPercentile is the percentile above which transformed values saturate at 1.
const ClampPercentile = 0.95

// Normalize maps each raw count to [0,1]. Values are log-dampened with
// ln(1+v), clamped at the 95th percentile of the transformed series, and
// divided by that percentile. When the percentile is not positive every
// value is divided by 1 instead.
func Normalize(raw map[string]int) map[string]float64 {
	result := make(map[string]float64, len(raw))
	if len(raw) == 0 {
		return result
	}

	transformed := make(map[string]float64, len(raw))
	sorted := make([]float64, 0, len(raw))
	for id, v := range raw {
		t := math.Log1p(float64(max(v, 0)))
		transformed[id] = t
		sorted = append(sorted, t)
	}
	slices.Sort(sorted)

	p95 := sorted[percentileIndex(len(sorted))]
	if p95 <= 0 {
		p95 = 1
	}

	for id, t := range transformed {
		result[id] = math.Min(t, p95) / p95
	}
	return result
}

// percentileIndex returns ceil(n*0.95)-1 clamped to [0, n-1].
func percentileIndex(n int) int {
	idx := int(math.Ceil(float64(n)*ClampPercentile)) - 1
	return min(max(idx, 0), n-1)
}
