package main

import (
	"os"

	"github.com/spf13/cobra"
)

const envConfig = "REF_CONFIG"

type rootFlags struct {
	configPath string
	verbose    bool
	trace      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "ref",
		Short:         "ref solves and runs climate model diagnostics against ingested datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := "ref.yaml"
	if v, ok := os.LookupEnv(envConfig); ok && v != "" {
		defaultConfig = v
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", defaultConfig, "Path to configuration file (env "+envConfig+")")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&flags.trace, "trace", false, "Write OpenTelemetry spans to stderr")

	cmd.AddCommand(newSolveCmd(flags))
	cmd.AddCommand(newScheduleCmd(flags))
	cmd.AddCommand(newGroupsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
