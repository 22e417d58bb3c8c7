package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ddr-generator/internal/store"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DDR_DB_PATH", filepath.Join(dir, "ddr.db"))
	t.Setenv("DDR_OUTPUT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("DDR_RENDER_PDF", "false")
	t.Setenv("DDR_OCR_ENABLED", "false")
	t.Setenv("DDR_LOG_LEVEL", "error")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleDocs(t *testing.T, dir string) (string, string) {
	inspection := writeFile(t, dir, "inspection.txt", strings.Join([]string{
		"Bathroom floor near the shower shows dampness and fungus growth.",
		"Dampness is likely due to a leaking concealed pipe joint.",
		"Recommend replacing the pipe joint and re-grouting the shower tiles.",
	}, "\n"))
	thermal := writeFile(t, dir, "thermal.txt", "Bathroom floor near shower reads 24.5 C, within normal range.\n")
	return inspection, thermal
}

func TestGenerateWritesMarkdownAndJSON(t *testing.T) {
	dir := setupEnv(t)
	inspection, thermal := sampleDocs(t, dir)
	mdPath := filepath.Join(dir, "report.md")
	jsonPath := filepath.Join(dir, "report.json")

	_, err := execute(t, "generate", "--inspection", inspection, "--thermal", thermal,
		"--out", mdPath, "--json", jsonPath, "--no-store")
	require.NoError(t, err)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Detailed Diagnostic Report")
	assert.Contains(t, string(md), "Moisture observed in Bathroom while thermal values include normal range readings.")

	_, err = os.Stat(filepath.Join(dir, "ddr.db"))
	assert.True(t, os.IsNotExist(err), "--no-store must not create the history database")

	rebuilt, err := execute(t, "render", "--input", jsonPath)
	require.NoError(t, err)
	assert.Equal(t, string(md), rebuilt)
}

func TestGenerateStoresRunForHistoryAndShow(t *testing.T) {
	dir := setupEnv(t)
	inspection, thermal := sampleDocs(t, dir)

	_, err := execute(t, "generate", "--inspection", inspection, "--thermal", thermal, "--out", filepath.Join(dir, "r.md"))
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(dir, "ddr.db"))
	require.NoError(t, err)
	runs, err := s.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Len(t, runs, 1)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, runs[0].Severity)

	out, err = execute(t, "show", runs[0].ID, "--raw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Detailed Diagnostic Report"), out)

	_, err = execute(t, "show", "no-such-run")
	assert.ErrorContains(t, err, "no stored report")
}

func TestGenerateRequiresBothDocuments(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "generate", "--inspection", "a.txt")
	assert.ErrorContains(t, err, "thermal")
}

func TestHistoryTableMarkdown(t *testing.T) {
	out := historyTable([]store.Run{{ID: "abc", Severity: "High", ConflictsCount: 2, ExtractionCount: 9, RulesVersion: "2026.11"}}, true)
	assert.Contains(t, out, "| abc |")
	assert.Contains(t, out, "High")
}
