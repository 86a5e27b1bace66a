package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ice-blockchain/go-rwsplit/config"
	"github.com/ice-blockchain/go-rwsplit/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health monitor and the HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root.cfgPath, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the configuration file on change")
	return cmd
}

func runServe(ctx context.Context, path string, watch bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := server.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}

	s, err := server.New(cfg, server.Opts{Logger: logger})
	if err != nil {
		return err
	}
	defer s.Close()

	if watch {
		go func() {
			if err := s.Watch(ctx, path); err != nil {
				logger.Report(server.NewConfigIgnoredEvent("watch stopped", err))
			}
		}()
	}
	return s.Run(ctx)
}
