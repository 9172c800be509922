package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"servo-backup/src/backup"
)

func newBackupCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Fetch the device configuration and save it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			client, addr, err := newDeviceClient(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Servo Configuration Backup Tool")
			fmt.Fprintln(out, rule(40))

			w := &backup.Writer{Client: client, Device: addr.String(), Paths: backupPaths(cfg), Out: out}
			res := w.Run(commandContext(cmd))
			if strict && !res.OK() {
				return fmt.Errorf("backup failed (%s): %w", res.Outcome, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the backup could not be taken")
	return cmd
}
