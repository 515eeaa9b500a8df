package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestReadConfig_MissingDefaultFileUsesDefaults(t *testing.T) {
	cfg, err := readConfig(filepath.Join(t.TempDir(), defaultConfigPath), false)
	require.NoError(t, err)
	assert.Equal(t, "OutputData", cfg.OutputRoot)
	assert.Equal(t, []string{"./runbatch.sh"}, cfg.Runner.Cmd)
}

func TestReadConfig_MissingExplicitFileFails(t *testing.T) {
	_, err := readConfig(filepath.Join(t.TempDir(), "nope.yaml"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestReadConfig_UsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), defaultConfigPath)
	require.NoError(t, writeTestFile(path, `output_root: /data/OutputData
runner:
  cmd: [bash, runbatch.sh]
retention:
  keep_last: 10
  keep_days: 5
`))

	cfg, err := readConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "/data/OutputData", cfg.OutputRoot)
	assert.Equal(t, []string{"bash", "runbatch.sh"}, cfg.Runner.Cmd)
	assert.Equal(t, 10, cfg.Retention.KeepLast)
	assert.Equal(t, 5, cfg.Retention.KeepDays)
}

func TestReadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), defaultConfigPath)
	require.NoError(t, writeTestFile(path, "output_root: /from/file\n"))

	t.Setenv("CUTSCAN_OUTPUT_ROOT", "/from/env")
	t.Setenv("CUTSCAN_RUNNER_CMD", "bash,runbatch.sh")
	t.Setenv("CUTSCAN_RETENTION_KEEP_LAST", "3")
	t.Setenv("CUTSCAN_MIRROR_TIMEOUT", "2m")

	cfg, err := readConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.OutputRoot)
	assert.Equal(t, []string{"bash", "runbatch.sh"}, cfg.Runner.Cmd)
	assert.Equal(t, 3, cfg.Retention.KeepLast)
	assert.Equal(t, 2*time.Minute, cfg.Mirror.Timeout)
}

func TestReadConfig_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), defaultConfigPath)
	require.NoError(t, writeTestFile(path, "budgets:\n  max_iterations: 1\n"))

	_, err := readConfig(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config schema validation failed")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, loadDotEnv(filepath.Join(dir, ".env")), "missing file is ignored")

	path := filepath.Join(dir, ".env")
	require.NoError(t, writeTestFile(path, "CUTSCAN_TEST_DOTENV=loaded\n"))
	t.Setenv("CUTSCAN_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CUTSCAN_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CUTSCAN_TEST_DOTENV"))
}
