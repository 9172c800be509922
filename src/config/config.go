// Package config loads servo-backup settings from layered sources:
// built-in defaults, an optional YAML file, SERVO_BACKUP_* environment
// variables and finally command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultDeviceAddress is the address the firmware ships with on the bench network.
const DefaultDeviceAddress = "192.168.86.68"

// PathEnvVar overrides the config file location.
const PathEnvVar = "SERVO_BACKUP_CONFIG"

// DefaultPaths are searched in order when no explicit path is given.
var DefaultPaths = []string{
	"servo-backup.yaml",
	"servo-backup.yml",
}

// Config is passed explicitly into every operation.
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Backup  BackupConfig  `koanf:"backup"`
	Restore RestoreConfig `koanf:"restore"`
	Log     LogConfig     `koanf:"log"`
}

// DeviceConfig describes how to reach the controller's HTTP API.
type DeviceConfig struct {
	Address      string        `koanf:"address" validate:"required"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	ProbeTimeout time.Duration `koanf:"probe_timeout" validate:"gt=0"`
}

// BackupConfig holds local file locations. StagingPath may be empty to
// skip the copy into the filesystem image.
type BackupConfig struct {
	Dir          string `koanf:"dir" validate:"required"`
	StagingPath  string `koanf:"staging_path"`
	SentinelPath string `koanf:"sentinel_path" validate:"required"`
}

// RestoreConfig tunes the post-upload readiness polling.
type RestoreConfig struct {
	InitialDelay     time.Duration `koanf:"initial_delay" validate:"gte=0"`
	MaxRetries       int           `koanf:"max_retries" validate:"min=1"`
	RetryDelay       time.Duration `koanf:"retry_delay" validate:"gte=0"`
	ResaveBeforeLoad bool          `koanf:"resave_before_load"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=auto console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Address:      DefaultDeviceAddress,
			Timeout:      10 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Backup: BackupConfig{
			Dir:          "backups",
			StagingPath:  "data/offline_config.json",
			SentinelPath: ".backup_completed",
		},
		Restore: RestoreConfig{
			InitialDelay:     3 * time.Second,
			MaxRetries:       10,
			RetryDelay:       2 * time.Second,
			ResaveBeforeLoad: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Options controls Load. Overrides are koanf paths (e.g. "device.address")
// applied after every other source; empty values are ignored.
type Options struct {
	Path      string
	Overrides map[string]string
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	cfg, err := build(opts, true)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLenient never fails. When the file or environment cannot be loaded it
// falls back to defaults plus overrides; invalid values are reset to their
// defaults. Every fallback is returned as a warning.
func LoadLenient(opts Options) (*Config, []string) {
	var warnings []string
	cfg, err := build(opts, true)
	if err != nil {
		warnings = append(warnings, err.Error())
		if cfg, err = build(opts, false); err != nil {
			warnings = append(warnings, err.Error())
			cfg = Default()
		}
	}
	if err := cfg.Validate(); err != nil {
		warnings = append(warnings, err.Error())
		for _, key := range cfg.resetInvalid() {
			warnings = append(warnings, "using default for "+key)
		}
	}
	return cfg, warnings
}

// build layers the sources without validating. external=false skips the
// config file and environment.
func build(opts Options, external bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if external {
		path, err := findFile(opts.Path)
		if err != nil {
			return nil, err
		}
		if path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
		if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
	}

	for key, val := range opts.Overrides {
		if val == "" {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// resetInvalid replaces out-of-range values with defaults and returns the
// koanf keys it touched.
func (c *Config) resetInvalid() []string {
	d := Default()
	var keys []string
	reset := func(bad bool, key string, apply func()) {
		if bad {
			apply()
			keys = append(keys, key)
		}
	}
	reset(c.Device.Address == "", "device.address", func() { c.Device.Address = d.Device.Address })
	reset(c.Device.Timeout <= 0, "device.timeout", func() { c.Device.Timeout = d.Device.Timeout })
	reset(c.Device.ProbeTimeout <= 0, "device.probe_timeout", func() { c.Device.ProbeTimeout = d.Device.ProbeTimeout })
	reset(c.Backup.Dir == "", "backup.dir", func() { c.Backup.Dir = d.Backup.Dir })
	reset(c.Backup.SentinelPath == "", "backup.sentinel_path", func() { c.Backup.SentinelPath = d.Backup.SentinelPath })
	reset(c.Restore.InitialDelay < 0, "restore.initial_delay", func() { c.Restore.InitialDelay = d.Restore.InitialDelay })
	reset(c.Restore.MaxRetries < 1, "restore.max_retries", func() { c.Restore.MaxRetries = d.Restore.MaxRetries })
	reset(c.Restore.RetryDelay < 0, "restore.retry_delay", func() { c.Restore.RetryDelay = d.Restore.RetryDelay })
	reset(validate.Var(c.Log.Level, "oneof=trace debug info warn warning error disabled") != nil, "log.level", func() { c.Log.Level = d.Log.Level })
	reset(validate.Var(c.Log.Format, "oneof=auto console json") != nil, "log.format", func() { c.Log.Format = d.Log.Format })
	return keys
}

// findFile resolves the config file. An explicit path must exist; the
// environment and default locations are optional.
func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

var envMappings = map[string]string{
	"esp32_ip": "device.address",

	"servo_backup_device_address":       "device.address",
	"servo_backup_device_timeout":       "device.timeout",
	"servo_backup_device_probe_timeout": "device.probe_timeout",

	"servo_backup_backup_dir":           "backup.dir",
	"servo_backup_backup_staging_path":  "backup.staging_path",
	"servo_backup_backup_sentinel_path": "backup.sentinel_path",

	"servo_backup_restore_initial_delay":      "restore.initial_delay",
	"servo_backup_restore_max_retries":        "restore.max_retries",
	"servo_backup_restore_retry_delay":        "restore.retry_delay",
	"servo_backup_restore_resave_before_load": "restore.resave_before_load",

	"servo_backup_log_level":  "log.level",
	"servo_backup_log_format": "log.format",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unknown and empty variables map to "" and are dropped by the provider.
func envTransformFunc(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	return envMappings[strings.ToLower(key)], value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports them in koanf key terms.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
