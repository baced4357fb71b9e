package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waycrest/waycrest/pkg/metaconfig"
)

func newReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the running compositor's config process",
		Long: `Reload signals the running compositor to re-read the metaconfig
descriptor and replace its config process. Window, tag, and output state
is preserved across the reload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := metaconfig.Load(metaconfigPath)
			if err != nil {
				return err
			}

			pidPath := filepath.Join(desc.SocketDir, PidFileName)
			data, err := os.ReadFile(pidPath)
			if err != nil {
				return fmt.Errorf("no running compositor found (pid file %s): %w", pidPath, err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("corrupt pid file %s: %w", pidPath, err)
			}

			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("failed to signal compositor pid %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reload signaled to compositor pid %d\n", pid)
			return nil
		},
	}
}
