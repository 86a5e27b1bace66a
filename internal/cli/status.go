package cli

import (
	"context"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ice-blockchain/go-rwsplit/config"
	"github.com/ice-blockchain/go-rwsplit/internal/server"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	timeout := 10 * time.Second
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe every replica once and print the health of each group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.cfgPath)
			if err != nil {
				return err
			}
			logger, err := server.NewLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			s, err := server.New(cfg, server.Opts{Logger: logger})
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return server.RenderStatus(cmd.OutOrStdout(), s.Status(ctx), isTerminal(cmd))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "overall probe timeout")
	return cmd
}

func isTerminal(cmd *cobra.Command) bool {
	if cmd.OutOrStdout() != os.Stdout {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
