package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "OutputData", cfg.OutputRoot)
	assert.Equal(t, "Reference", cfg.ReferenceName)
	assert.Equal(t, []string{"./runbatch.sh"}, cfg.Runner.Cmd)
	assert.Equal(t, "--configKeyValues", cfg.Workflow.Flag)
	assert.Equal(t, "reference_workflow.json", cfg.Workflow.ReferenceFile)
	assert.Equal(t, 15*time.Second, cfg.Mirror.Timeout)
	assert.False(t, cfg.Mirror.Enabled())
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(newViper(t, `
output_root: /data/out
runner:
  cmd: [bash, runbatch.sh]
  work_dir: /data/GenProduction
mirror:
  endpoint: localhost:9000
  bucket: cutscan
  timeout: 1m30s
retention:
  keep_last: 10
  keep_days: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "/data/out", cfg.OutputRoot)
	assert.Equal(t, []string{"bash", "runbatch.sh"}, cfg.Runner.Cmd)
	assert.Equal(t, "/data/GenProduction", cfg.Runner.WorkDir)
	assert.True(t, cfg.Mirror.Enabled())
	assert.Equal(t, 90*time.Second, cfg.Mirror.Timeout)
	assert.Equal(t, RetentionPolicy{KeepLast: 10, KeepDays: 5}, cfg.Retention)
}

func TestDecodeCommaListOverride(t *testing.T) {
	t.Parallel()

	v := newViper(t, "")
	v.Set("runner.cmd", "bash,runbatch.sh")
	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "runbatch.sh"}, cfg.Runner.Cmd)
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	_, err := Decode(newViper(t, "unknown_key: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config schema validation failed")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Problems, 1)

	_, err = Decode(newViper(t, "retention:\n  keep_last: -1\n"))
	require.Error(t, err)

	_, err = Decode(newViper(t, "mirror:\n  timeout: soon\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid, err := Decode(newViper(t, ""))
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"empty output root": func(c *Config) { c.OutputRoot = " " },
		"empty runner":      func(c *Config) { c.Runner.Cmd = nil },
		"flag":              func(c *Config) { c.Workflow.Flag = "configKeyValues" },
		"mirror bucket":     func(c *Config) { c.Mirror.Endpoint = "localhost:9000" },
		"empty reference":   func(c *Config) { c.ReferenceName = "" },
	}
	for name, mutate := range cases {
		cfg := valid
		cfg.Runner.Cmd = append([]string(nil), valid.Runner.Cmd...)
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
