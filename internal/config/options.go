// Package config defines the analysis options for DepSphere and their
// validation rules.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default option values.
const (
	DefaultWeightMethod     = 0.15
	DefaultWeightStatement  = 0.30
	DefaultWeightBranch     = 0.20
	DefaultWeightCallSite   = 0.20
	DefaultWeightFanOut     = 0.10
	DefaultWeightInDegree   = 0.05
	DefaultHotspotTop       = 0.10
	DefaultCriticalTop      = 0.03
	DefaultProgressInterval = 25
	DefaultDebounce         = 500 * time.Millisecond
)

// ErrInvalidOptions is the sentinel wrapped by every configuration error.
var ErrInvalidOptions = errors.New("invalid analysis options")

// ValidationError describes a single invalid option.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidOptions, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidOptions) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidOptions
}

// Weights are the relative factors applied to the six normalized metrics.
type Weights struct {
	Method    float64 `toml:"method" json:"method"`
	Statement float64 `toml:"statement" json:"statement"`
	Branch    float64 `toml:"branch" json:"branch"`
	CallSite  float64 `toml:"callsite" json:"callSite"`
	FanOut    float64 `toml:"fanout" json:"fanOut"`
	InDegree  float64 `toml:"indegree" json:"inDegree"`
}

// Sum returns the sum of all six weights.
func (w Weights) Sum() float64 {
	return w.Method + w.Statement + w.Branch + w.CallSite + w.FanOut + w.InDegree
}

func (w Weights) fields() []struct {
	name  string
	value float64
} {
	return []struct {
		name  string
		value float64
	}{
		{"weights.method", w.Method},
		{"weights.statement", w.Statement},
		{"weights.branch", w.Branch},
		{"weights.callsite", w.CallSite},
		{"weights.fanout", w.FanOut},
		{"weights.indegree", w.InDegree},
	}
}

// Levels holds the percentile thresholds for level classification.
type Levels struct {
	HotspotTopPercent  float64 `toml:"hotspot_top" json:"hotspotTopPercent"`
	CriticalTopPercent float64 `toml:"critical_top" json:"criticalTopPercent"`
}

// AnalysisOptions configures a graph build and realtime updates.
type AnalysisOptions struct {
	Weights Weights `toml:"weights" json:"weights"`
	Levels  Levels  `toml:"levels" json:"levels"`

	// ProgressInterval is the number of types between metrics progress reports.
	ProgressInterval int `toml:"progress_interval" json:"progressInterval"`

	// Exclude holds doublestar globs, relative to the workspace root, that
	// the walker and watcher skip.
	Exclude []string `toml:"exclude" json:"exclude,omitempty"`

	// Debounce is the quiet period before a batch of change events is applied.
	Debounce Duration `toml:"debounce" json:"debounce"`
}

// Default returns the default analysis options.
func Default() AnalysisOptions {
	return AnalysisOptions{
		Weights: Weights{
			Method:    DefaultWeightMethod,
			Statement: DefaultWeightStatement,
			Branch:    DefaultWeightBranch,
			CallSite:  DefaultWeightCallSite,
			FanOut:    DefaultWeightFanOut,
			InDegree:  DefaultWeightInDegree,
		},
		Levels: Levels{
			HotspotTopPercent:  DefaultHotspotTop,
			CriticalTopPercent: DefaultCriticalTop,
		},
		ProgressInterval: DefaultProgressInterval,
		Debounce:         Duration(DefaultDebounce),
	}
}

// Validate checks every option. It never clamps.
func (o AnalysisOptions) Validate() error {
	if _, err := NormalizeWeights(o.Weights); err != nil {
		return err
	}
	if err := ValidateLevels(o.Levels.HotspotTopPercent, o.Levels.CriticalTopPercent); err != nil {
		return err
	}
	if o.ProgressInterval < 1 {
		return &ValidationError{Field: "progress_interval", Reason: fmt.Sprintf("must be >= 1, got %d", o.ProgressInterval)}
	}
	if o.Debounce <= 0 {
		return &ValidationError{Field: "debounce", Reason: fmt.Sprintf("must be > 0, got %s", time.Duration(o.Debounce))}
	}
	return nil
}

// NormalizeWeights scales w so that the six weights sum to 1.
// Negative or non-finite weights and the all-zero case are rejected.
func NormalizeWeights(w Weights) (Weights, error) {
	for _, f := range w.fields() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return Weights{}, &ValidationError{Field: f.name, Reason: "must be a finite number"}
		}
		if f.value < 0 {
			return Weights{}, &ValidationError{Field: f.name, Reason: fmt.Sprintf("must be >= 0, got %g", f.value)}
		}
	}

	largest := 0.0
	for _, f := range w.fields() {
		largest = max(largest, f.value)
	}
	if largest <= 0 {
		return Weights{}, &ValidationError{Field: "weights", Reason: "at least one weight must be > 0"}
	}

	// Scaling by the largest weight first keeps the sum finite.
	scaled := w.divide(largest)
	return scaled.divide(scaled.Sum()), nil
}

func (w Weights) divide(d float64) Weights {
	return Weights{
		Method:    w.Method / d,
		Statement: w.Statement / d,
		Branch:    w.Branch / d,
		CallSite:  w.CallSite / d,
		FanOut:    w.FanOut / d,
		InDegree:  w.InDegree / d,
	}
}

// ValidateLevels checks that both thresholds lie in (0,1] and that the
// critical threshold does not exceed the hotspot threshold.
func ValidateLevels(hotspot, critical float64) error {
	if math.IsNaN(hotspot) || hotspot <= 0 || hotspot > 1 {
		return &ValidationError{Field: "levels.hotspot_top", Reason: fmt.Sprintf("must be in (0,1], got %g", hotspot)}
	}
	if math.IsNaN(critical) || critical <= 0 || critical > 1 {
		return &ValidationError{Field: "levels.critical_top", Reason: fmt.Sprintf("must be in (0,1], got %g", critical)}
	}
	if critical > hotspot {
		return &ValidationError{Field: "levels.critical_top", Reason: fmt.Sprintf("must be <= hotspot_top (%g), got %g", hotspot, critical)}
	}
	return nil
}

// Duration is a time.Duration that encodes as a string such as "750ms".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}
