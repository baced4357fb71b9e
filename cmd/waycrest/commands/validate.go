package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waycrest/waycrest/pkg/metaconfig"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the metaconfig descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := metaconfig.Load(metaconfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", metaconfigPath)
			fmt.Fprintf(cmd.OutOrStdout(), "  command:    %v\n", desc.Command)
			fmt.Fprintf(cmd.OutOrStdout(), "  dir:        %s\n", desc.Dir)
			fmt.Fprintf(cmd.OutOrStdout(), "  socket dir: %s\n", desc.SocketDir)
			if len(desc.Envs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  envs:       %d set\n", len(desc.Envs))
			}
			return nil
		},
	}
}
