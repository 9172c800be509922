package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"servo-backup/src/backup"
	"servo-backup/src/config"
	"servo-backup/src/logging"
	"servo-backup/src/phase"
	"servo-backup/src/safety"
)

// uploadTarget is the PlatformIO target that rewrites the device filesystem.
const uploadTarget = "uploadfs"

func newHookCmd() *cobra.Command {
	var (
		targets []string
		strict  bool
	)
	cmd := &cobra.Command{
		Use:   "hook [pre|post|auto]",
		Short: "Run the backup or restore step around a filesystem upload",
		Long: "Intended as a PlatformIO pre/post action. With no phase (or auto) the sentinel\n" +
			"file decides: absent runs the backup, present runs the restore.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p phase.Phase
			if len(args) == 1 {
				var err error
				if p, err = phase.ParsePhase(args[0]); err != nil {
					return err
				}
			}
			h := &hookRun{cmd: cmd, strict: strict}
			if strict {
				cfg, err := loadConfig(cmd, nil)
				if err != nil {
					return err
				}
				h.cfg = cfg
			} else {
				h.cfg, h.configWarnings = loadConfigLenient(cmd)
			}
			if !wantsUpload(targets) {
				logging.Info().Strs("targets", targets).Msg("not a filesystem upload, skipping")
				return nil
			}

			h.sentinel = phase.Sentinel{Path: h.cfg.Backup.SentinelPath}
			if p == "" {
				var err error
				if p, err = h.sentinel.Detect(); err != nil {
					if err := h.fail("[BACKUP]", "Could not check the backup sentinel", err); err != nil {
						return err
					}
					p = phase.Pre
				}
			}
			if p == phase.Pre {
				return h.pre()
			}
			return h.post()
		},
	}
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "PlatformIO targets of this build; acts only when uploadfs is among them")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when backup or restore did not complete")
	cmd.AddCommand(newHookResetCmd())
	return cmd
}

func wantsUpload(targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if strings.EqualFold(strings.TrimSpace(t), uploadTarget) {
			return true
		}
	}
	return false
}

// hookRun carries one hook invocation. Without strict, every failure is
// printed and the hook returns nil so the upload goes ahead.
type hookRun struct {
	cmd            *cobra.Command
	cfg            *config.Config
	configWarnings []string
	sentinel       phase.Sentinel
	strict         bool
}

// fail reports err under prefix. It returns err only in strict mode.
func (h *hookRun) fail(prefix, what string, err error) error {
	fmt.Fprintf(h.cmd.OutOrStdout(), "%s %s: %v\n", prefix, what, err)
	logging.Warn().Err(err).Bool("strict", h.strict).Msg(what)
	if h.strict {
		return fmt.Errorf("%s: %w", strings.ToLower(what), err)
	}
	return nil
}

func (h *hookRun) warnConfig(prefix string) {
	for _, w := range h.configWarnings {
		fmt.Fprintf(h.cmd.OutOrStdout(), "%s Warning: configuration problem, using defaults: %s\n", prefix, w)
	}
}

func (h *hookRun) pre() error {
	out := h.cmd.OutOrStdout()
	banner(h.cmd, "PRE-ACTION: BACKING UP CONFIGURATION")
	h.warnConfig("[BACKUP]")

	var failure error
	device := h.cfg.Device.Address
	client, addr, err := newDeviceClient(h.cfg)
	if err != nil {
		failure = h.fail("[BACKUP]", "Invalid ESP32 address", err)
		fmt.Fprintln(out, "[BACKUP] Backup attempt completed, proceeding with filesystem upload...")
	} else {
		device = addr.String()
		w := &backup.Writer{Client: client, Device: device, Paths: backupPaths(h.cfg), Out: out}
		if res := w.Run(commandContext(h.cmd)); h.strict && !res.OK() {
			failure = fmt.Errorf("backup failed (%s): %w", res.Outcome, res.Err)
		}
	}

	// The sentinel is written even when the backup failed so the post step still runs.
	st := phase.NewState(device, time.Now())
	if err := h.sentinel.MarkBackedUp(st); err != nil {
		if err := h.fail("[BACKUP]", "Could not write the backup sentinel", err); err != nil {
			return err
		}
	} else {
		logging.Debug().Str("run_id", st.RunID).Str("sentinel", h.sentinel.Path).Msg("sentinel written")
	}
	return failure
}

func (h *hookRun) post() error {
	out := h.cmd.OutOrStdout()
	banner(h.cmd, "POST-ACTION: RESTORING CONFIGURATION")
	h.warnConfig("[RESTORE]")
	log := logging.Logger()
	if st, err := h.sentinel.Load(); err == nil {
		log = log.With().Str("run_id", st.RunID).Bool("legacy_sentinel", st.Legacy).Logger()
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read sentinel")
	}

	var failure error
	client, addr, err := newDeviceClient(h.cfg)
	if err != nil {
		failure = h.fail("[RESTORE]", "Invalid ESP32 address", err)
		fmt.Fprintln(out, "[RESTORE] Restore manually: open the web interface and click 'Load from Offline'")
	} else {
		r := &backup.Restorer{
			Client:           client,
			Device:           addr.String(),
			Paths:            backupPaths(h.cfg),
			InitialDelay:     h.cfg.Restore.InitialDelay,
			MaxRetries:       h.cfg.Restore.MaxRetries,
			RetryDelay:       h.cfg.Restore.RetryDelay,
			ResaveBeforeLoad: h.cfg.Restore.ResaveBeforeLoad,
			Out:              out,
		}
		res := r.Run(commandContext(h.cmd))
		log.Info().Str("outcome", res.Outcome.String()).Int("attempts", res.Attempts).Msg("post-upload restore finished")
		if h.strict && !res.OK() {
			failure = fmt.Errorf("restore incomplete (%s): %w", res.Outcome, res.Err)
		}
	}

	if err := h.sentinel.Clear(); err != nil {
		if err := h.fail("[RESTORE]", "Could not remove the backup sentinel", err); err != nil {
			return err
		}
	}
	return failure
}

func newHookResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove a sentinel left behind by an interrupted upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			sentinel := phase.Sentinel{Path: cfg.Backup.SentinelPath}
			p, err := sentinel.Detect()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p == phase.Pre {
				fmt.Fprintf(out, "No sentinel at %s, nothing to reset\n", sentinel.Path)
				return nil
			}
			opts := getSafetyOptions(cmd)
			ok, err := safety.Confirm(opts, cmd.InOrStdin(), out, fmt.Sprintf("Remove %s? The next hook run will back up instead of restoring.", sentinel.Path))
			if err != nil {
				return err
			}
			if !ok {
				if opts.DryRun {
					fmt.Fprintf(out, "[dry-run] would remove %s\n", sentinel.Path)
				} else {
					fmt.Fprintln(out, "Aborted")
				}
				return nil
			}
			if err := sentinel.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %s\n", sentinel.Path)
			return nil
		},
	}
}
