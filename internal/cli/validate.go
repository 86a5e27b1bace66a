package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ice-blockchain/go-rwsplit/config"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.cfgPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d group(s)\n", len(cfg.Groups))
			return err
		},
	}
}
