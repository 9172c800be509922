package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"servo-backup/src/deviceapi"
	"servo-backup/src/logging"
)

// Writer fetches the device configuration and persists it locally.
// A failed backup never returns an error from Run: the result carries the
// outcome and the caller decides whether it matters.
type Writer struct {
	Client deviceapi.Client
	// Device is the address shown in messages.
	Device string
	Paths  Paths
	// Now defaults to time.Now.
	Now func() time.Time
	Out io.Writer
}

// BackupResult describes what a backup run achieved.
type BackupResult struct {
	// Outcome of fetching the configuration.
	Outcome deviceapi.Outcome
	// Err is the first fatal error, nil on success.
	Err error

	OfflineSaved bool
	Responsive   bool

	Timestamped string
	Latest      string
	Staging     string
}

// OK reports whether the configuration was fetched and written.
func (r BackupResult) OK() bool { return r.Err == nil }

// Run performs one backup attempt.
func (w *Writer) Run(ctx context.Context) BackupResult {
	out := w.Out
	if out == nil {
		out = io.Discard
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	log := logging.With().Str("device", w.Device).Logger()

	fmt.Fprintf(out, "[BACKUP] Attempting to backup configuration from %s...\n", w.Device)
	res := w.run(ctx, out, now())
	if res.Err != nil {
		log.Warn().Err(res.Err).Str("outcome", res.Outcome.String()).Msg("[BACKUP] backup skipped")
	} else {
		log.Info().Str("latest", res.Latest).Str("snapshot", res.Timestamped).Msg("[BACKUP] backup written")
	}
	fmt.Fprintln(out, "[BACKUP] Backup attempt completed, proceeding with filesystem upload...")
	return res
}

func (w *Writer) run(ctx context.Context, out io.Writer, now time.Time) BackupResult {
	var res BackupResult

	// Best effort: ask the device to persist its state where a flash won't reach it.
	if err := w.Client.SaveOffline(ctx); err != nil {
		if code := deviceapi.StatusCode(err); code != 0 {
			fmt.Fprintf(out, "[BACKUP] Warning: Could not trigger offline save (HTTP %d)\n", code)
		} else {
			fmt.Fprintf(out, "[BACKUP] Warning: Could not trigger offline save (%s)\n", deviceapi.Classify(err))
		}
	} else {
		res.OfflineSaved = true
		fmt.Fprintln(out, "[BACKUP] Triggered ESP32 to save current config to offline storage")
	}

	raw, err := w.Client.Config(ctx)
	if err != nil {
		res.Outcome = deviceapi.Classify(err)
		res.Err = err
		w.reportFetchFailure(out, err, res.Outcome)
		return res
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		res.Outcome = deviceapi.Malformed
		res.Err = err
		fmt.Fprintf(out, "[BACKUP] Error backing up configuration: %v\n", err)
		return res
	}
	res.Outcome = deviceapi.OK

	if err := w.persist(out, doc, now, &res); err != nil {
		res.Err = err
		fmt.Fprintf(out, "[BACKUP] Error backing up configuration: %v\n", err)
		return res
	}

	if err := w.Client.Debug(ctx); err == nil {
		res.Responsive = true
		fmt.Fprintln(out, "[BACKUP] ESP32 is responsive, offline config should be preserved")
	}
	return res
}

func (w *Writer) persist(out io.Writer, doc Document, now time.Time, res *BackupResult) error {
	data, err := doc.Indented()
	if err != nil {
		return err
	}

	snap, err := writeNew(w.Paths.Timestamped(now), data)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	res.Timestamped = snap
	fmt.Fprintf(out, "[BACKUP] Configuration backed up to: %s\n", snap)

	latest := w.Paths.Latest()
	if err := writeReplace(latest, data); err != nil {
		return fmt.Errorf("write latest backup (snapshot %s was kept): %w", snap, err)
	}
	res.Latest = latest
	fmt.Fprintf(out, "[BACKUP] Latest backup saved to: %s\n", latest)

	if w.Paths.Staging != "" {
		if err := writeReplace(w.Paths.Staging, data); err != nil {
			return fmt.Errorf("write staging copy (backup %s is complete): %w", latest, err)
		}
		res.Staging = w.Paths.Staging
		fmt.Fprintf(out, "[BACKUP] Configuration copied to filesystem: %s\n", w.Paths.Staging)
	}
	return nil
}

func (w *Writer) reportFetchFailure(out io.Writer, err error, outcome deviceapi.Outcome) {
	switch outcome {
	case deviceapi.Unreachable:
		fmt.Fprintf(out, "[BACKUP] Could not connect to ESP32 at %s\n", w.Device)
		fmt.Fprintln(out, "[BACKUP] Make sure ESP32 is connected and accessible")
	case deviceapi.Timeout:
		fmt.Fprintf(out, "[BACKUP] Timeout connecting to ESP32 at %s\n", w.Device)
	case deviceapi.Rejected:
		fmt.Fprintf(out, "[BACKUP] Failed to get configuration: HTTP %d\n", deviceapi.StatusCode(err))
	case deviceapi.Malformed:
		fmt.Fprintf(out, "[BACKUP] Device returned malformed configuration: %v\n", err)
	default:
		fmt.Fprintf(out, "[BACKUP] Error backing up configuration: %v\n", err)
	}
}
