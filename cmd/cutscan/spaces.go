package main

import (
	"fmt"

	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/metalagman/cutscan/internal/report"
	"github.com/spf13/cobra"
)

func spacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "spaces [condition...]",
		Short:        "List the parameter spaces of the catalog",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			spaces := catalog.Spaces()
			if len(args) > 0 {
				spaces = make([]*paramspace.Space, 0, len(args))
				for _, condition := range args {
					space, err := catalog.Space(condition)
					if err != nil {
						return err
					}
					spaces = append(spaces, space)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.SpacesTable(spaces))
			return nil
		},
	}
}
