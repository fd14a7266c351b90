package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the name of the per-workspace configuration file.
const FileName = ".depsphere.toml"

// Load reads a TOML configuration file on top of Default and validates the
// result. Unknown keys are rejected.
func Load(path string) (AnalysisOptions, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return AnalysisOptions{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(content)
}

// Parse decodes TOML content on top of Default and validates the result.
func Parse(content []byte) (AnalysisOptions, error) {
	opts := Default()

	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return AnalysisOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	if err := opts.Validate(); err != nil {
		return AnalysisOptions{}, err
	}
	return opts, nil
}

// Find searches dir and its parents for FileName.
// Returns "" if no configuration file exists.
func Find(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Marshal encodes options as TOML.
func Marshal(opts AnalysisOptions) ([]byte, error) {
	data, err := toml.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}
