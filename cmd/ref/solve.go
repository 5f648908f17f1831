package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/solver"
)

type solveOptions struct {
	dryRun      bool
	timeout     time.Duration
	diagnostics []string
}

func newSolveCmd(root *rootFlags) *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Run every diagnostic execution whose cached result is missing or stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithCorrelationID(cmd.Context(), logging.GenerateCorrelationID())
			app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			summary, runErr := runSolve(ctx, app, *opts)
			closeErr := app.Close(context.WithoutCancel(ctx))
			if runErr != nil {
				return newCommandError("solve", "solve pass", runErr, "")
			}
			renderSummary(cmd.OutOrStdout(), summary, opts.dryRun)
			return closeErr
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report what would run without creating executions")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Maximum time to wait for executions (0 uses executor.timeout)")
	cmd.Flags().StringSliceVarP(&opts.diagnostics, "diagnostic", "d", nil, "Only solve diagnostics whose provider/diagnostic slug contains this value (repeatable)")

	return cmd
}

func runSolve(ctx context.Context, app *appContext, opts solveOptions) (solver.Summary, error) {
	exec, err := app.newExecutor()
	if err != nil {
		return solver.Summary{}, err
	}
	timeout := opts.timeout
	if timeout == 0 {
		timeout = app.cfg.Executor.Timeout
	}
	return app.solver.SolveRequiredExecutions(ctx, app.store, exec, solver.RunOptions{
		DryRun:  opts.dryRun,
		Timeout: timeout,
		Filters: opts.diagnostics,
	})
}
