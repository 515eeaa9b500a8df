package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/metalagman/cutscan/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd().ExecuteContext(ctx)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cutscan",
		Short:         "cutscan sweeps reconstruction cuts through an external pipeline",
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Init(debug)
		return loadDotEnv(".env")
	}
	cmd.AddCommand(runCmd())
	cmd.AddCommand(spacesCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(summarizeCmd())
	cmd.AddCommand(reportCmd())
	cmd.AddCommand(pruneCmd())
	return cmd
}

// loadDotEnv exports variables from path without overriding the
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
