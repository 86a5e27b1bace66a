// Package cli implements the rwsplitd command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "rwsplit.yaml"

type rootOptions struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{cfgPath: defaultConfigPath}
	cmd := &cobra.Command{
		Use:          "rwsplitd",
		Short:        "Read/write splitting router for replicated SQL databases",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", opts.cfgPath, "path to the configuration file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command and exits with a non-zero code on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
