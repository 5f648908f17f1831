package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

type scheduleOptions struct {
	spec string
	solveOptions
}

func newScheduleCmd(root *rootFlags) *cobra.Command {
	opts := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run solve passes periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close(context.WithoutCancel(ctx)) //nolint:errcheck

			c, err := newScheduler(ctx, app, *opts)
			if err != nil {
				return newCommandError("schedule", opts.spec, err, "Use a standard five field cron expression or a descriptor such as @hourly.")
			}
			c.Start()
			app.logger.Info(ctx, "scheduler started", "cron", opts.spec)

			<-ctx.Done()
			<-c.Stop().Done()
			app.logger.Info(context.WithoutCancel(ctx), "scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.spec, "cron", "@hourly", "Cron expression controlling when solve passes start")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Maximum time to wait for the executions of one pass")
	cmd.Flags().StringSliceVarP(&opts.diagnostics, "diagnostic", "d", nil, "Only solve diagnostics whose provider/diagnostic slug contains this value (repeatable)")

	return cmd
}

// newScheduler registers one solve pass per cron tick. A tick that fires while
// the previous pass is still running is skipped.
func newScheduler(ctx context.Context, app *appContext, opts scheduleOptions) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{ctx: ctx, logger: app.logger}),
		cron.SkipIfStillRunning(cronLogger{ctx: ctx, logger: app.logger}),
	))
	_, err := c.AddFunc(opts.spec, func() {
		passCtx := logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
		summary, err := runSolve(passCtx, app, opts.solveOptions)
		if err != nil {
			app.logger.Error(passCtx, "solve pass failed", "error", err)
			return
		}
		app.logger.Info(passCtx, "solve pass complete",
			"candidates", summary.Candidates, "scheduled", summary.Scheduled, "skipped", summary.Skipped)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// cronLogger adapts ports.Logger to cron.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, "cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
