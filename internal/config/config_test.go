package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddr.yaml")
	blob := "addr: \":9090\"\noutput_dir: out\nhistory_limit: 10\nocr_enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	t.Setenv("DDR_OUTPUT_DIR", "/var/ddr/out")
	t.Setenv("DDR_OCR_ENABLED", "true")
	t.Setenv("DDR_EXTRACT_TIMEOUT_SECONDS", "15")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/var/ddr/out", cfg.OutputDir)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.True(t, cfg.OCREnabled)
	assert.Equal(t, 15*time.Second, cfg.ExtractTimeout())
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "ddr.db", cfg.DBPath)
}

func TestLoadUsesConfigPathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: custom.db\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.DBPath)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	t.Setenv("DDR_HISTORY_LIMIT", "many")
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DDR_HISTORY_LIMIT")
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.LogFormat = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.ExtractTimeoutSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())
}
