package main

import (
	"fmt"

	"github.com/metalagman/cutscan/internal/report"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var (
		raw   bool
		width int
	)
	cmd := &cobra.Command{
		Use:          "report [sweep-id]",
		Short:        "Show a summary of a sweep (the latest by default)",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			var sweepID string
			if len(args) == 1 {
				sweepID = args[0]
			}
			md, err := report.Markdown(cmd.Context(), store, sweepID)
			if err != nil {
				return err
			}
			if !raw {
				if md, err = report.Render(md, width); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	cmd.Flags().IntVar(&width, "width", 100, "wrap rendered output at this width")
	return cmd
}
