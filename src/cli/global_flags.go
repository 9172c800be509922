package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"servo-backup/src/backup"
	"servo-backup/src/config"
	"servo-backup/src/device"
	"servo-backup/src/deviceapi"
	"servo-backup/src/logging"
	"servo-backup/src/safety"
)

// addGlobalFlags adds persistent flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (default: servo-backup.yaml if present)")
	f.String("device", "", "Device address, e.g. 192.168.86.68 (default from config)")
	f.String("backup-dir", "", "Directory holding backup files (default from config)")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: auto|console|json")
	f.Bool("dry-run", false, "Show planned actions without making changes")
	f.BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}

// configOptions maps global flags and command overrides to koanf keys.
func configOptions(cmd *cobra.Command, overrides map[string]string) config.Options {
	f := cmd.Root().PersistentFlags()
	path, _ := f.GetString("config")
	all := map[string]string{}
	for flag, key := range map[string]string{
		"device":     "device.address",
		"backup-dir": "backup.dir",
		"log-level":  "log.level",
		"log-format": "log.format",
	} {
		if v, _ := f.GetString(flag); v != "" {
			all[key] = v
		}
	}
	for k, v := range overrides {
		if v != "" {
			all[k] = v
		}
	}
	return config.Options{Path: path, Overrides: all}
}

// loadConfig layers global flags over file and environment settings and
// configures logging from the result.
func loadConfig(cmd *cobra.Command, overrides map[string]string) (*config.Config, error) {
	cfg, err := config.Load(configOptions(cmd, overrides))
	if err != nil {
		return nil, err
	}
	initLogging(cmd, cfg)
	return cfg, nil
}

// loadConfigLenient is loadConfig for the upload hook: it always yields a
// usable config and returns what had to fall back to defaults.
func loadConfigLenient(cmd *cobra.Command) (*config.Config, []string) {
	cfg, warnings := config.LoadLenient(configOptions(cmd, nil))
	initLogging(cmd, cfg)
	for _, w := range warnings {
		logging.Warn().Str("problem", w).Msg("config fallback")
	}
	return cfg, warnings
}

func initLogging(cmd *cobra.Command, cfg *config.Config) {
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
}

// newDeviceClient resolves the configured address into an HTTP client.
func newDeviceClient(cfg *config.Config) (*deviceapi.HTTPClient, device.Address, error) {
	addr, err := device.Parse(cfg.Device.Address)
	if err != nil {
		return nil, addr, err
	}
	c := deviceapi.New(addr, deviceapi.Options{Timeout: cfg.Device.Timeout, ProbeTimeout: cfg.Device.ProbeTimeout})
	return c, addr, nil
}

func backupPaths(cfg *config.Config) backup.Paths {
	return backup.Paths{Dir: cfg.Backup.Dir, Staging: cfg.Backup.StagingPath}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func rule(width int) string { return strings.Repeat("=", width) }

func banner(cmd *cobra.Command, title string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n"+rule(60))
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, rule(60))
}
