package main

import (
	"fmt"
	"path/filepath"

	"github.com/metalagman/cutscan/internal/artifact"
	"github.com/metalagman/cutscan/internal/report"
	"github.com/metalagman/cutscan/internal/runner"
	"github.com/metalagman/cutscan/internal/sweep"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		condition   string
		gridKeys    []string
		noReference bool
		dryRun      bool
		failFast    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a parameter sweep for one condition",
		Long: `Run the reference configuration, then one pipeline run per combination.
Without --grid every parameter is varied one at a time around its default.
With --grid the Cartesian product of the named parameters is run.`,
		Example: `  cutscan run --condition pp
  cutscan run --condition pp_itstpc --grid cutMatchingChi2 --grid askMinTPCRow --no-reference`,
		Args:         cobra.NoArgs,
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
			space, err := catalog.Space(condition)
			if err != nil {
				return err
			}
			outputRoot, err := filepath.Abs(cfg.OutputRoot)
			if err != nil {
				return fmt.Errorf("resolve output root: %w", err)
			}

			r, err := runner.New(runner.Config{
				Command: cfg.Runner.Cmd,
				WorkDir: cfg.Runner.WorkDir,
				LogRoot: outputRoot,
				Env:     cfg.Runner.Env,
			})
			if err != nil {
				return err
			}

			var opts []sweep.Option
			var records artifact.Store = artifact.NewFS(outputRoot)
			if !dryRun {
				if records, err = recordStore(cmd.Context(), cfg, outputRoot); err != nil {
					return err
				}
				store, closeFn, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer closeFn()
				opts = append(opts, sweep.WithLedger(store))
			}

			orch, err := sweep.New(sweep.Config{
				OutputRoot:    outputRoot,
				ReferenceName: cfg.ReferenceName,
				ReferenceFile: cfg.Workflow.ReferenceFile,
				WorkingFile:   cfg.Workflow.WorkingFile,
				Flag:          cfg.Workflow.Flag,
			}, r, records, opts...)
			if err != nil {
				return err
			}

			sum, err := orch.Run(cmd.Context(), sweep.Options{
				Space:         space,
				GridKeys:      gridKeys,
				SkipReference: noReference,
				DryRun:        dryRun,
				FailFast:      failFast,
			})
			out := cmd.OutOrStdout()
			if dryRun && err == nil {
				fmt.Fprintln(out, report.PlanTable(sum.Plan))
				fmt.Fprintf(out, "%d combinations for %s in %s\n", len(sum.Plan), space.Condition(), sum.OutputDir)
				return nil
			}
			if sum.SweepID != "" {
				fmt.Fprintf(out, "sweep %s: attempted %d, skipped %d, failed %d, succeeded %d\n",
					sum.SweepID, sum.Attempted, sum.Skipped, sum.Failed, sum.Succeeded)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&condition, "condition", "c", "", "condition whose parameter space is swept")
	cmd.Flags().StringSliceVar(&gridKeys, "grid", nil, "run the Cartesian product over these parameters (full key or short name)")
	cmd.Flags().BoolVar(&noReference, "no-reference", false, "reuse the existing reference descriptor instead of running the reference configuration")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the combinations without running anything")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort the sweep on the first failed run")
	_ = cmd.MarkFlagRequired("condition")
	return cmd
}
