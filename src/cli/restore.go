package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"servo-backup/src/backend"
	dir "servo-backup/src/backend/directory"
	"servo-backup/src/backup"
	"servo-backup/src/config"
	"servo-backup/src/deviceapi"
)

// newRestoreCmd is the standalone restore tool. It only checks the device
// and prints guidance; it never changes device state.
func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [backup_file] [esp32_ip]",
		Short: "Check a backup and the device, then print restore instructions",
		Long: "Loads a backup file (default: the latest backup), verifies the device answers\n" +
			"GET /api/info and prints step-by-step instructions plus a summary of the backed up boards.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides map[string]string
			if len(args) > 1 {
				overrides = map[string]string{"device.address": args[1]}
			}
			cfg, err := loadConfig(cmd, overrides)
			if err != nil {
				return err
			}
			file := backupPaths(cfg).Latest()
			if len(args) > 0 {
				file = args[0]
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Servo Configuration Restore Tool")
			fmt.Fprintln(out, rule(40))

			if err := runRestoreTool(cmd, out, file, cfg.Backup.Dir, cfg); err != nil {
				fmt.Fprintln(out, "\nRestore failed. Check the errors above.")
				return err
			}
			fmt.Fprintln(out, "\nRestore instructions provided above.")
			return nil
		},
	}
	return cmd
}

func runRestoreTool(cmd *cobra.Command, out io.Writer, file, backupDir string, cfg *config.Config) error {
	fmt.Fprintf(out, "Loading configuration from %s...\n", file)
	doc, err := backup.LoadDocument(file)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "Backup file not found: %s\n", file)
		printAvailable(out, backupDir)
		return fmt.Errorf("backup file not found: %s", file)
	}
	if err != nil {
		fmt.Fprintf(out, "Error restoring configuration: %v\n", err)
		return err
	}

	// The standalone check uses the full timeout for the probe as well.
	cfg.Device.ProbeTimeout = cfg.Device.Timeout
	client, addr, err := newDeviceClient(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Checking ESP32 at %s...\n", addr)
	if _, err := client.Info(commandContext(cmd)); err != nil {
		if code := deviceapi.StatusCode(err); code != 0 {
			fmt.Fprintf(out, "ESP32 not responding properly (HTTP %d)\n", code)
		} else {
			fmt.Fprintf(out, "Error restoring configuration: %v\n", err)
		}
		return fmt.Errorf("device check failed (%s): %w", deviceapi.Classify(err), err)
	}

	fmt.Fprintln(out, "ESP32 is responsive")
	fmt.Fprintln(out, "\nTo restore the configuration:")
	fmt.Fprintln(out, "1. Open the web interface in your browser")
	fmt.Fprintf(out, "2. Go to %s\n", backup.WebURL(addr.String()))
	fmt.Fprintln(out, "3. Click 'Load from Offline' button")
	fmt.Fprintln(out, "\nAlternatively, you can manually configure servos using the backed up settings:")
	backup.WriteSummary(out, doc)
	return nil
}

func printAvailable(out io.Writer, backupDir string) {
	fmt.Fprintln(out, "Available backups:")
	be, err := dir.New(backupDir)
	if err != nil {
		return
	}
	entries, err := be.List(backend.KindAll)
	if err != nil {
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "  %s\n", e.Path)
	}
}
