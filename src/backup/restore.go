package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"servo-backup/src/deviceapi"
	"servo-backup/src/logging"
)

// RestoreOutcome is the terminal state of a restore run.
type RestoreOutcome int

const (
	// NothingToRestore: no latest backup exists. Not an error.
	NothingToRestore RestoreOutcome = iota
	// Reloaded: the device reloaded its configuration from offline storage.
	Reloaded
	// SavedNotReloaded: save-offline succeeded but load-offline did not.
	SavedNotReloaded
	// ReloadFailed: the device came back but rejected the reload sequence.
	ReloadFailed
	// DeviceNotReady: polling ran out of retries.
	DeviceNotReady
	// Interrupted: the context was cancelled while waiting.
	Interrupted
)

func (o RestoreOutcome) String() string {
	switch o {
	case NothingToRestore:
		return "nothing-to-restore"
	case Reloaded:
		return "reloaded"
	case SavedNotReloaded:
		return "saved-not-reloaded"
	case ReloadFailed:
		return "reload-failed"
	case DeviceNotReady:
		return "device-not-ready"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("restore-outcome(%d)", int(o))
	}
}

// RestoreResult describes what a restore run achieved.
type RestoreResult struct {
	Outcome RestoreOutcome
	// Attempts is the number of readiness probes sent.
	Attempts int
	// Err is the failure behind a non-success outcome.
	Err error
}

// OK reports whether nothing further is needed from the user.
func (r RestoreResult) OK() bool {
	return r.Outcome == Reloaded || r.Outcome == NothingToRestore
}

// Restorer waits for the device to come back after a filesystem flash and
// asks it to reload its configuration from offline storage.
type Restorer struct {
	Client deviceapi.Client
	// Device is the address shown in messages.
	Device string
	Paths  Paths

	InitialDelay time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	// ResaveBeforeLoad issues save-offline before load-offline.
	ResaveBeforeLoad bool

	Out io.Writer
}

// Run performs one restore attempt. Failures print manual instructions and
// are reported through the result, never as a panic or exit.
func (r *Restorer) Run(ctx context.Context) RestoreResult {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	log := logging.With().Str("device", r.Device).Logger()

	res := r.run(ctx, out)
	if !res.OK() {
		r.printManual(out)
		log.Warn().Err(res.Err).Str("outcome", res.Outcome.String()).Int("attempts", res.Attempts).Msg("[RESTORE] automatic restore incomplete")
	} else {
		log.Info().Str("outcome", res.Outcome.String()).Int("attempts", res.Attempts).Msg("[RESTORE] done")
	}
	return res
}

func (r *Restorer) run(ctx context.Context, out io.Writer) RestoreResult {
	latest := r.Paths.Latest()
	if _, err := os.Stat(latest); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "[RESTORE] No backup found at %s, nothing to restore\n", latest)
		return RestoreResult{Outcome: NothingToRestore}
	}
	if _, err := LoadDocument(latest); err != nil {
		fmt.Fprintf(out, "[RESTORE] Warning: latest backup is unreadable: %v\n", err)
	}

	fmt.Fprintf(out, "[RESTORE] Verifying ESP32 at %s is online...\n", r.Device)
	if err := sleep(ctx, r.InitialDelay); err != nil {
		return RestoreResult{Outcome: Interrupted, Err: err}
	}

	attempts, err := r.waitReady(ctx, out)
	if err != nil {
		if ctx.Err() != nil {
			return RestoreResult{Outcome: Interrupted, Attempts: attempts, Err: err}
		}
		fmt.Fprintln(out, "[RESTORE] ESP32 not responding yet")
		return RestoreResult{Outcome: DeviceNotReady, Attempts: attempts, Err: err}
	}
	fmt.Fprintln(out, "[RESTORE] ✓ ESP32 is online and ready")

	if r.ResaveBeforeLoad {
		if err := r.Client.SaveOffline(ctx); err != nil {
			fmt.Fprintf(out, "[RESTORE] Could not save configuration to offline storage: %v\n", err)
			return RestoreResult{Outcome: ReloadFailed, Attempts: attempts, Err: err}
		}
		fmt.Fprintln(out, "[RESTORE] Device saved its configuration to offline storage")
	}
	if err := r.Client.LoadOffline(ctx); err != nil {
		if r.ResaveBeforeLoad {
			fmt.Fprintf(out, "[RESTORE] Partial restore: offline save succeeded but reload failed: %v\n", err)
			return RestoreResult{Outcome: SavedNotReloaded, Attempts: attempts, Err: err}
		}
		fmt.Fprintf(out, "[RESTORE] Could not reload configuration from offline storage: %v\n", err)
		return RestoreResult{Outcome: ReloadFailed, Attempts: attempts, Err: err}
	}
	fmt.Fprintln(out, "[RESTORE] ✓ Configuration reloaded from offline storage")
	return RestoreResult{Outcome: Reloaded, Attempts: attempts}
}

// waitReady polls the info endpoint with a constant delay, at most MaxRetries times.
func (r *Restorer) waitReady(ctx context.Context, out io.Writer) (int, error) {
	limit := r.MaxRetries
	if limit < 1 {
		limit = 1
	}
	attempts := 0
	probe := func() error {
		attempts++
		_, err := r.Client.Info(ctx)
		return err
	}
	notify := func(err error, _ time.Duration) {
		logging.Debug().Err(err).Int("attempt", attempts).Str("outcome", deviceapi.Classify(err).String()).Msg("[RESTORE] device not ready")
		fmt.Fprintf(out, "[RESTORE] Waiting for ESP32... (%d/%d)\n", attempts, limit)
	}
	// WithMaxRetries treats 0 as unlimited, so a single probe needs StopBackOff.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if limit > 1 {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(r.RetryDelay), uint64(limit-1))
	}
	err := backoff.RetryNotify(probe, backoff.WithContext(policy, ctx), notify)
	return attempts, err
}

func (r *Restorer) printManual(out io.Writer) {
	fmt.Fprintln(out, "[RESTORE] Automatic restore did not complete. To restore manually:")
	fmt.Fprintf(out, "[RESTORE]   1. Open %s once the device is online\n", WebURL(r.Device))
	fmt.Fprintln(out, "[RESTORE]   2. Click 'Load from Offline'")
	fmt.Fprintf(out, "[RESTORE]   or run: servo-backup restore %s %s\n", r.Paths.Latest(), r.Device)
}

// WebURL returns the device web UI address for a displayed device string.
func WebURL(dev string) string {
	if strings.Contains(dev, "://") {
		return dev
	}
	return "http://" + dev
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
