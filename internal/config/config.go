// Package config provides configuration loading and management for cutscan.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CUTSCAN_OUTPUT_ROOT.
const EnvPrefix = "CUTSCAN"

// Config is the root configuration.
type Config struct {
	OutputRoot    string          `json:"output_root"    mapstructure:"output_root"`
	SpacesFile    string          `json:"spaces_file"    mapstructure:"spaces_file"`
	ReferenceName string          `json:"reference_name" mapstructure:"reference_name"`
	DBPath        string          `json:"db_path"        mapstructure:"db_path"`
	Runner        RunnerConfig    `json:"runner"         mapstructure:"runner"`
	Workflow      WorkflowConfig  `json:"workflow"       mapstructure:"workflow"`
	Mirror        MirrorConfig    `json:"mirror"         mapstructure:"mirror"`
	Retention     RetentionPolicy `json:"retention"      mapstructure:"retention"`
}

// RunnerConfig describes the external pipeline launcher.
type RunnerConfig struct {
	Cmd     []string `json:"cmd"               mapstructure:"cmd"`
	WorkDir string   `json:"work_dir"          mapstructure:"work_dir"`
	Env     []string `json:"env,omitempty"     mapstructure:"env"`
}

// WorkflowConfig names the descriptor files and the patched flag.
type WorkflowConfig struct {
	Flag          string `json:"flag"           mapstructure:"flag"`
	ReferenceFile string `json:"reference_file" mapstructure:"reference_file"`
	WorkingFile   string `json:"working_file"   mapstructure:"working_file"`
}

// MirrorConfig configures the optional object-store copy of run records.
// The mirror is disabled while Endpoint is empty.
type MirrorConfig struct {
	Endpoint  string        `json:"endpoint"   mapstructure:"endpoint"`
	Bucket    string        `json:"bucket"     mapstructure:"bucket"`
	AccessKey string        `json:"access_key" mapstructure:"access_key"`
	SecretKey string        `json:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool          `json:"use_ssl"    mapstructure:"use_ssl"`
	Region    string        `json:"region"     mapstructure:"region"`
	Prefix    string        `json:"prefix"     mapstructure:"prefix"`
	Timeout   time.Duration `json:"timeout"    mapstructure:"timeout"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m MirrorConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != ""
}

// RetentionPolicy defines how many old sweeps to keep in the ledger.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// SetDefaults registers every key so that environment overrides are visible.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_root", "OutputData")
	v.SetDefault("spaces_file", "")
	v.SetDefault("reference_name", "Reference")
	v.SetDefault("db_path", filepath.Join(".cutscan", "cutscan.db"))
	v.SetDefault("runner.cmd", []string{"./runbatch.sh"})
	v.SetDefault("runner.work_dir", ".")
	v.SetDefault("runner.env", []string{})
	v.SetDefault("workflow.flag", "--configKeyValues")
	v.SetDefault("workflow.reference_file", "reference_workflow.json")
	v.SetDefault("workflow.working_file", "workflow.json")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.use_ssl", false)
	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("mirror.timeout", "15s")
	v.SetDefault("retention.keep_last", 0)
	v.SetDefault("retention.keep_days", 0)
}

// Decode validates the raw settings of v against the schema and decodes
// them into a Config.
func Decode(v *viper.Viper) (Config, error) {
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputRoot) == "" {
		return errors.New("output_root must not be empty")
	}
	if len(c.Runner.Cmd) == 0 || strings.TrimSpace(c.Runner.Cmd[0]) == "" {
		return errors.New("runner.cmd must name an executable")
	}
	if strings.TrimSpace(c.ReferenceName) == "" {
		return errors.New("reference_name must not be empty")
	}
	if !strings.HasPrefix(c.Workflow.Flag, "-") {
		return fmt.Errorf("workflow.flag %q must start with '-'", c.Workflow.Flag)
	}
	if c.Retention.KeepLast < 0 || c.Retention.KeepDays < 0 {
		return errors.New("retention values must be >= 0")
	}
	if c.Mirror.Enabled() && strings.TrimSpace(c.Mirror.Bucket) == "" {
		return errors.New("mirror.bucket is required when mirror.endpoint is set")
	}
	return nil
}
