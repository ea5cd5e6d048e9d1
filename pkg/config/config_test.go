package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialskel/pkg/errors"
	"medialskel/pkg/flux"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, runtime.NumCPU(), cfg.Processing.Workers)
	assert.True(t, cfg.Processing.InsideNegative)
	assert.Equal(t, "full", cfg.Flux.Strategy)
	assert.Equal(t, 60, cfg.Flux.Directions)
	assert.Equal(t, 8.5, cfg.Flux.Margin)
	assert.InDelta(t, -15.279, cfg.Thinning.Threshold, 1e-3)
	assert.InDelta(t, -16.0, cfg.Thinning.SurfaceThreshold, 1e-12)
	assert.False(t, cfg.Thinning.SurfaceEnd, "surface mode uses the neighbour-count end test by default")
	assert.NoError(t, cfg.Validate())
}

func TestAnchoredModeWithoutEndpointsIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thinning.Mode = "anchored"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Flux, cfg.Flux)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.yaml", "nested/cfg.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := DefaultConfig()
			want.Processing.Workers = 3
			want.Flux.Strategy = string(flux.StrategySpoke)
			want.Flux.Seed = 42
			want.Thinning.Mode = "anchored"
			want.Thinning.Endpoints = "ends.csv"
			want.Output.Slices = "z"

			require.NoError(t, SaveConfig(want, path))
			got, err := LoadConfig(path)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	data := "[thinning]\nmode = \"surface\"\nsimpleTest = \"components\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "surface", cfg.Thinning.Mode)
	assert.Equal(t, "components", cfg.Thinning.SimpleTest)
	assert.Equal(t, flux.DefaultDirections, cfg.Flux.Directions)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("flux: [unclosed"), 0644))
	_, err := LoadConfig(bad)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("flux:\n  strategy: magic\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"workers", func(c *Config) { c.Processing.Workers = 0 }},
		{"strategy", func(c *Config) { c.Flux.Strategy = "half" }},
		{"directions", func(c *Config) { c.Flux.Directions = 0 }},
		{"iterations", func(c *Config) { c.Flux.Iterations = -1 }},
		{"margin", func(c *Config) { c.Flux.Margin = -1 }},
		{"mode", func(c *Config) { c.Thinning.Mode = "volume" }},
		{"simple test", func(c *Config) { c.Thinning.SimpleTest = "guess" }},
		{"slices", func(c *Config) { c.Output.Slices = "w" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "got %v", err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medialskel.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}
