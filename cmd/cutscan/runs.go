package main

import (
	"fmt"

	"github.com/metalagman/cutscan/internal/report"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:          "runs",
		Short:        "List recorded sweeps, newest first",
		Args:         cobra.NoArgs,
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

			sweeps, err := store.ListSweeps(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sweeps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sweeps recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.SweepsTable(sweeps))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most N sweeps (0 for all)")
	return cmd
}
