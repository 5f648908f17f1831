package main

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/skoriche/Climate-REF4CMIP-sub000/pkg/diff"
)

func newGroupsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect and manage execution groups",
	}

	cmd.AddCommand(newGroupsListCmd(root))
	cmd.AddCommand(newGroupsDeleteCmd(root))
	cmd.AddCommand(newGroupsDirtyCmd(root))
	cmd.AddCommand(newGroupsDiffCmd(root))

	return cmd
}

// withApp runs fn against a freshly wired appContext and always closes it.
func withApp(cmd *cobra.Command, root *rootFlags, fn func(ctx context.Context, app *appContext) error) error {
	ctx := cmd.Context()
	app, err := newAppContext(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	closeErr := app.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func newGroupsListCmd(root *rootFlags) *cobra.Command {
	var diagnostics []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List execution groups with their cache state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, app *appContext) error {
				groups, err := app.store.ListGroups(ctx, diagnostics...)
				if err != nil {
					return newCommandError("list groups", "querying the database", err, "")
				}
				return renderGroups(cmd.OutOrStdout(), groups)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&diagnostics, "diagnostic", "d", nil, "Only list groups whose diagnostic contains this value (repeatable)")

	return cmd
}

func newGroupsDeleteCmd(root *rootFlags) *cobra.Command {
	var keepArtifacts bool

	cmd := &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a group, its executions and their stored results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, root, func(ctx context.Context, app *appContext) error {
				fragments, err := app.store.DeleteGroup(ctx, id)
				if err != nil {
					return newCommandError("delete group", args[0], err, "Run 'ref groups list' to see valid ids.")
				}
				if !keepArtifacts {
					for _, fragment := range fragments {
						if err := app.artifacts.Remove(ctx, fragment); err != nil {
							app.logger.Warn(ctx, "could not remove artifacts", "fragment", fragment, "error", err)
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted group %d and %d execution(s)\n", id, len(fragments))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepArtifacts, "keep-artifacts", false, "Leave scratch and result files in place")

	return cmd
}

func newGroupsDirtyCmd(root *rootFlags) *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "dirty <group-id>",
		Short: "Force a group to run again on the next solve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, root, func(ctx context.Context, app *appContext) error {
				if err := app.store.SetGroupDirty(ctx, id, !clean); err != nil {
					return newCommandError("update group", args[0], err, "Run 'ref groups list' to see valid ids.")
				}
				state := "dirty"
				if clean {
					state = "clean"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Group %d marked %s\n", id, state)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clean, "clear", false, "Clear the flag instead of setting it")

	return cmd
}

func newGroupsDiffCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <group-id>",
		Short: "Show how the datasets changed between a group's last two executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, root, func(ctx context.Context, app *appContext) error {
				execs, err := app.store.Executions(ctx, id)
				if err != nil {
					return newCommandError("diff group", args[0], err, "")
				}
				out := cmd.OutOrStdout()
				if len(execs) < 2 {
					fmt.Fprintf(out, "Group %d has %d execution(s); nothing to compare\n", id, len(execs))
					return nil
				}
				current, previous := execs[0], execs[1]
				before, err := app.store.ExecutionDatasetSlugs(ctx, previous.ID)
				if err != nil {
					return newCommandError("diff group", args[0], err, "")
				}
				after, err := app.store.ExecutionDatasetSlugs(ctx, current.ID)
				if err != nil {
					return newCommandError("diff group", args[0], err, "")
				}
				changes := diff.Lines(before, after,
					fmt.Sprintf("execution %d (%s)", previous.ID, previous.DatasetHash),
					fmt.Sprintf("execution %d (%s)", current.ID, current.DatasetHash))
				if changes == "" {
					fmt.Fprintf(out, "No dataset changes between executions %d and %d\n", previous.ID, current.ID)
					return nil
				}
				fmt.Fprint(out, changes)
				return nil
			})
		},
	}
	return cmd
}

func parseGroupID(arg string) (uint, error) {
	id, err := cast.ToUintE(arg)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid group id %q", arg)
	}
	return id, nil
}
