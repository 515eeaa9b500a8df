package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/metalagman/cutscan/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "cutscan.yaml"

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return readConfig(cfgFile, cmd.Flags().Changed("config"))
}

// readConfig layers defaults, the config file and CUTSCAN_* environment
// variables. A missing file is tolerated unless it was asked for explicitly.
func readConfig(path string, required bool) (config.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
		log.Debug().Str("path", path).Msg("config file not found, using defaults")
	}
	return config.Decode(v)
}
