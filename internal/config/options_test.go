package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	opts := Default()

	assert.NoError(t, opts.Validate())
	assert.InDelta(t, 1.0, opts.Weights.Sum(), 1e-9)
	assert.Equal(t, 0.30, opts.Weights.Statement)
	assert.Equal(t, 0.10, opts.Levels.HotspotTopPercent)
	assert.Equal(t, 0.03, opts.Levels.CriticalTopPercent)
	assert.Equal(t, 25, opts.ProgressInterval)
}

func TestNormalizeWeights(t *testing.T) {
	t.Parallel()

	t.Run("SumsToOne", func(t *testing.T) {
		t.Parallel()
		inputs := []Weights{
			{Method: 1},
			{Method: 2, Statement: 2, Branch: 2, CallSite: 2, FanOut: 2, InDegree: 2},
			{Statement: 0.3, InDegree: 100},
			{Method: 1e-9, FanOut: 3.25},
		}
		for _, w := range inputs {
			got, err := NormalizeWeights(w)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, got.Sum(), 1e-9)
		}
	})

	t.Run("PreservesRatios", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeWeights(Weights{Method: 1, Statement: 3})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, got.Method, 1e-12)
		assert.InDelta(t, 0.75, got.Statement, 1e-12)
	})

	t.Run("HugeWeightsStayFinite", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeWeights(Weights{Method: math.MaxFloat64, Statement: math.MaxFloat64})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got.Method, 1e-12)
		assert.InDelta(t, 0.5, got.Statement, 1e-12)
		assert.InDelta(t, 1.0, got.Sum(), 1e-12)
	})

	t.Run("RejectsAllZero", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizeWeights(Weights{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("RejectsNegative", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizeWeights(Weights{Method: 1, Branch: -0.1})
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "weights.branch", verr.Field)
	})

	t.Run("RejectsNaN", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizeWeights(Weights{Method: math.NaN()})
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})
}

func TestValidateLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hotspot  float64
		critical float64
		wantErr  bool
	}{
		{"Defaults", 0.10, 0.03, false},
		{"EqualThresholds", 0.5, 0.5, false},
		{"FullRange", 1, 1, false},
		{"CriticalAboveHotspot", 0.1, 0.2, true},
		{"ZeroHotspot", 0, 0, true},
		{"HotspotAboveOne", 1.5, 0.1, true},
		{"NegativeCritical", 0.1, -0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateLevels(tt.hotspot, tt.critical)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalysisOptions_Validate(t *testing.T) {
	t.Parallel()

	t.Run("ProgressInterval", func(t *testing.T) {
		t.Parallel()
		opts := Default()
		opts.ProgressInterval = 0
		assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
	})

	t.Run("Debounce", func(t *testing.T) {
		t.Parallel()
		opts := Default()
		opts.Debounce = 0
		assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("OverridesDefaults", func(t *testing.T) {
		t.Parallel()
		opts, err := Parse([]byte(`
progress_interval = 10
debounce = "750ms"
exclude = ["**/Generated/**"]

[weights]
statement = 0.5

[levels]
hotspot_top = 0.2
critical_top = 0.05
`))
		require.NoError(t, err)

		assert.Equal(t, 10, opts.ProgressInterval)
		assert.Equal(t, Duration(750*time.Millisecond), opts.Debounce)
		assert.Equal(t, []string{"**/Generated/**"}, opts.Exclude)
		assert.Equal(t, 0.5, opts.Weights.Statement)
		assert.Equal(t, DefaultWeightMethod, opts.Weights.Method)
		assert.Equal(t, 0.2, opts.Levels.HotspotTopPercent)
	})

	t.Run("RejectsUnknownKeys", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte("colour = \"red\"\n"))
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("ValidatesAfterMerge", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte("[levels]\ncritical_top = 0.5\n"))
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		opts := Default()
		opts.Exclude = []string{"legacy/**"}

		data, err := Marshal(opts)
		require.NoError(t, err)

		parsed, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, opts, parsed)
	})
}

func TestLoadAndFind(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "src", "App")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	cfgPath := filepath.Join(root, FileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("progress_interval = 3\n"), 0o644))

	t.Run("FindWalksUp", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, cfgPath, Find(nested))
	})

	t.Run("Load", func(t *testing.T) {
		t.Parallel()
		opts, err := Load(cfgPath)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.ProgressInterval)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(root, "missing.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
