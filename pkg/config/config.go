// Package config provides configuration loading and management for medialskel.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"medialskel/pkg/errors"
	"medialskel/pkg/flux"
	"medialskel/pkg/thinning"
	"medialskel/pkg/topology"
)

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers bounds the goroutines used by the parallel stages
		Workers int `yaml:"workers" toml:"workers"`

		// InsideNegative is true when the distance field is negative inside the object
		InsideNegative bool `yaml:"insideNegative" toml:"insideNegative"`
	} `yaml:"processing" toml:"processing"`

	// Flux estimation parameters
	Flux struct {
		// Strategy selects the vector field: full, spoke or low-memory
		Strategy string `yaml:"strategy" toml:"strategy"`

		// Directions is the number of sphere samples
		Directions int `yaml:"directions" toml:"directions"`

		// Iterations of repulsion used to spread the directions
		Iterations int `yaml:"iterations" toml:"iterations"`

		// Seed for the direction generator
		Seed uint64 `yaml:"seed" toml:"seed"`

		// Margin is the depth below which flux is not evaluated
		Margin float64 `yaml:"margin" toml:"margin"`
	} `yaml:"flux" toml:"flux"`

	// Thinning parameters
	Thinning struct {
		// Mode is curve, surface or anchored
		Mode string `yaml:"mode" toml:"mode"`

		// SimpleTest is delta or components
		SimpleTest string `yaml:"simpleTest" toml:"simpleTest"`

		// Threshold is the flux below which end points are kept
		Threshold float64 `yaml:"threshold" toml:"threshold"`

		// SurfaceEnd swaps the neighbour-count end test for the nine-plane
		// rim test in surface mode
		SurfaceEnd bool `yaml:"surfaceEnd" toml:"surfaceEnd"`

		// Endpoints is a CSV of anchored endpoints; anchored mode without
		// it keeps flux-gated curve ends
		Endpoints string `yaml:"endpoints" toml:"endpoints"`

		// MedialSurface thresholds flux at SurfaceThreshold instead of thinning
		MedialSurface bool `yaml:"medialSurface" toml:"medialSurface"`

		// SurfaceThreshold is the flux cut used by MedialSurface
		SurfaceThreshold float64 `yaml:"surfaceThreshold" toml:"surfaceThreshold"`

		// Prune removes curve-like voxels after thinning
		Prune bool `yaml:"prune" toml:"prune"`
	} `yaml:"thinning" toml:"thinning"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults writes distance and flux volumes
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`

		// Compress enables zlib compression of MetaImage output
		Compress bool `yaml:"compress" toml:"compress"`

		// Labels writes the topological label volume
		Labels bool `yaml:"labels" toml:"labels"`

		// BoundaryMap writes thickness mapped onto the object boundary
		BoundaryMap bool `yaml:"boundaryMap" toml:"boundaryMap"`

		// Slices writes PNG overlays along this axis; empty disables them
		Slices string `yaml:"slices" toml:"slices"`

		// Mesh writes STL surfaces of the object and the skeleton
		Mesh bool `yaml:"mesh" toml:"mesh"`

		// Histogram writes a flux histogram PNG
		Histogram bool `yaml:"histogram" toml:"histogram"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.InsideNegative = true

	cfg.Flux.Strategy = string(flux.StrategyFull)
	cfg.Flux.Directions = flux.DefaultDirections
	cfg.Flux.Iterations = flux.DefaultIterations
	cfg.Flux.Seed = flux.DefaultSeed
	cfg.Flux.Margin = flux.DefaultMargin

	cfg.Thinning.Mode = "curve"
	cfg.Thinning.SimpleTest = "delta"
	cfg.Thinning.Threshold = flux.DefaultThreshold
	cfg.Thinning.SurfaceEnd = false
	cfg.Thinning.SurfaceThreshold = flux.SurfaceThreshold
	cfg.Thinning.Prune = false

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.Compress = true
	cfg.Output.Histogram = true
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks that every enumerated setting is known and every count is usable
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "processing.workers must be at least 1, got %d", c.Processing.Workers)
	}
	if _, err := flux.ParseStrategy(c.Flux.Strategy); err != nil {
		return err
	}
	if c.Flux.Directions < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "flux.directions must be at least 1, got %d", c.Flux.Directions)
	}
	if c.Flux.Iterations < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "flux.iterations must not be negative, got %d", c.Flux.Iterations)
	}
	if c.Flux.Margin < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "flux.margin must not be negative, got %g", c.Flux.Margin)
	}
	if _, err := thinning.ParseMode(c.Thinning.Mode); err != nil {
		return err
	}
	if _, err := topology.ParseSimpleTest(c.Thinning.SimpleTest); err != nil {
		return err
	}
	switch strings.ToLower(c.Output.Slices) {
	case "", "x", "y", "z":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "output.slices must be x, y, z or empty, got %q", c.Output.Slices)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "reading config file %s", configPath)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parsing config file %s", configPath)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parsing config file %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration as YAML, or TOML for a .toml path
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating config directory")
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "marshaling config")
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "marshaling config")
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing config file")
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
