package main

import (
	"fmt"
	"path/filepath"

	"github.com/metalagman/cutscan/internal/report"
	"github.com/spf13/cobra"
)

func summarizeCmd() *cobra.Command {
	var (
		condition string
		outPath   string
	)
	cmd := &cobra.Command{
		Use:          "summarize",
		Short:        "Collect the run records of a condition into a CSV table",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = filepath.Join(cfg.OutputRoot, report.SummaryFileName(condition))
			}
			n, err := report.Summarize(cfg.OutputRoot, condition, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&condition, "condition", "c", "", "condition to summarize")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "CSV output path (default <output_root>/<condition>_configssummary.csv)")
	_ = cmd.MarkFlagRequired("condition")
	return cmd
}
