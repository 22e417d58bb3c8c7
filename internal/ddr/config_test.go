package ddr

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, cfg Config) *compiledConfig {
	t.Helper()
	cc, err := compile(cfg)
	require.NoError(t, err)
	return cc
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, ConfigVersion, DefaultConfig().Version)
}

func TestValidateRejectsBrokenTables(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty default area", func(c *Config) { c.DefaultArea = " " }, "default_area"},
		{"no zones", func(c *Config) { c.Zones = nil }, "zones"},
		{"zone without keywords", func(c *Config) { c.Zones[0].Keywords = []string{" "} }, "zones[0]"},
		{"thermal pattern without group", func(c *Config) { c.ThermalPattern = `\d+\s*C` }, "thermal_pattern"},
		{"thermal pattern invalid", func(c *Config) { c.ThermalPattern = `(` }, "thermal_pattern"},
		{"missing action rule", func(c *Config) { c.TagRules = c.TagRules[:1] }, "tag_rules"},
		{"duplicate rule", func(c *Config) { c.TagRules[1].Category = CategoryCause }, "tag_rules[1]"},
		{"observation rule", func(c *Config) { c.TagRules[0].Category = CategoryObservation }, "tag_rules[0]"},
		{"bad negation", func(c *Config) { c.TagRules[2].Negation = `[` }, "tag_rules[2].negation"},
		{"jaccard above one", func(c *Config) { c.JaccardThreshold = 1.5 }, "jaccard_threshold"},
		{"jaccard zero", func(c *Config) { c.JaccardThreshold = 0 }, "jaccard_threshold"},
		{"inverted normal range", func(c *Config) { c.NormalRange = Range{Min: 30, Max: 20} }, "normal_range"},
		{"hotspot inside normal range", func(c *Config) { c.HotspotThreshold = 25 }, "hotspot_threshold"},
		{"conflict order missing check", func(c *Config) { c.ConflictOrder = c.ConflictOrder[:2] }, "conflict_order"},
		{"conflict order unknown check", func(c *Config) { c.ConflictOrder[0] = "spread" }, "conflict_order"},
		{"min text length", func(c *Config) { c.MinTextLength = 0 }, "min_text_length"},
		{"no moisture phrases", func(c *Config) { c.MoisturePhrases = nil }, "moisture_phrases"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewPipeline(cfg)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestLoadConfigYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	blob := "version: test-1\njaccard_threshold: 0.8\ndefault_area: Unassigned\n"
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", cfg.Version)
	assert.Equal(t, 0.8, cfg.JaccardThreshold)
	assert.Equal(t, "Unassigned", cfg.DefaultArea)
	assert.Equal(t, DefaultConfig().Zones, cfg.Zones)
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	blob := "spread_threshold = 12.0\nhotspot_threshold = 45.0\n\n[normal_range]\nmin = 18.0\nmax = 30.0\n"
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.SpreadThreshold)
	assert.Equal(t, 45.0, cfg.HotspotThreshold)
	assert.Equal(t, Range{Min: 18, Max: 30}, cfg.NormalRange)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jaccard_threshold: 2\n"), 0o644))

	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "jaccard_threshold", cfgErr.Field)
}

func TestLoadConfigUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))
	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCompiledConfigDoesNotAliasConflictOrder(t *testing.T) {
	cfg := DefaultConfig()
	cc := mustCompile(t, cfg)
	cfg.ConflictOrder[0] = ConflictCategorical
	assert.Equal(t, ConflictNumeric, cc.ConflictOrder[0])
}
