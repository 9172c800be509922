package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"servo-backup/src/cli"
	"servo-backup/src/phase"
)

func TestHook_AutoRunsBackupThenRestore(t *testing.T) {
	dir := workdir(t)
	dev, srv := newFakeDevice(t)
	sentinel := phase.Sentinel{Path: filepath.Join(dir, ".backup_completed")}

	out, errOut, err := run(t, "hook", "--device", srv.URL, "--targets", "uploadfs")
	if err != nil {
		t.Fatalf("pre hook: %v; stderr=%s", err, errOut)
	}
	if !strings.Contains(out, "PRE-ACTION: BACKING UP CONFIGURATION") {
		t.Fatalf("expected pre banner: %s", out)
	}
	st, err := sentinel.Load()
	if err != nil {
		t.Fatalf("sentinel not created: %v", err)
	}
	if st.Legacy || st.RunID == "" || st.State != phase.StateBackedUp {
		t.Fatalf("unexpected sentinel state: %+v", st)
	}

	out, errOut, err = run(t, "hook", "--device", srv.URL, "--targets", "uploadfs")
	if err != nil {
		t.Fatalf("post hook: %v; stderr=%s", err, errOut)
	}
	if !strings.Contains(out, "POST-ACTION: RESTORING CONFIGURATION") {
		t.Fatalf("expected post banner: %s", out)
	}
	if !strings.Contains(out, "Configuration reloaded from offline storage") {
		t.Fatalf("expected reload message: %s", out)
	}
	if p, _ := sentinel.Detect(); p != phase.Pre {
		t.Fatalf("sentinel should be removed after restore")
	}
	if dev.count("POST /api/load-offline") != 1 {
		t.Fatalf("expected one load-offline call: %v", dev.calls)
	}
}

func TestHook_PreWritesSentinelEvenWhenBackupFails(t *testing.T) {
	dir := workdir(t)
	if _, _, err := run(t, "hook", "pre", "--device", "127.0.0.1:1"); err != nil {
		t.Fatalf("non-strict pre hook must not fail: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".backup_completed")); err != nil {
		t.Fatalf("sentinel missing after failed backup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups", "servo_config_latest.json")); !os.IsNotExist(err) {
		t.Fatalf("failed backup must not write latest: %v", err)
	}
}

func TestHook_PostWithoutBackupClearsSentinel(t *testing.T) {
	dir := workdir(t)
	path := filepath.Join(dir, ".backup_completed")
	if err := os.WriteFile(path, []byte("backup_completed"), 0o644); err != nil {
		t.Fatal(err)
	}
	dev, srv := newFakeDevice(t)

	out, _, err := run(t, "hook", "post", "--device", srv.URL)
	if err != nil {
		t.Fatalf("post hook: %v", err)
	}
	if !strings.Contains(out, "nothing to restore") {
		t.Fatalf("expected nothing-to-restore message: %s", out)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("sentinel should be removed: %v", err)
	}
	if len(dev.calls) != 0 {
		t.Fatalf("no device calls expected: %v", dev.calls)
	}
}

func TestHook_SkipsOtherTargets(t *testing.T) {
	dir := workdir(t)
	dev, srv := newFakeDevice(t)

	if _, _, err := run(t, "hook", "--device", srv.URL, "--targets", "upload,monitor"); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".backup_completed")); !os.IsNotExist(err) {
		t.Fatalf("sentinel should not be created for non-uploadfs targets")
	}
	if len(dev.calls) != 0 {
		t.Fatalf("no device calls expected: %v", dev.calls)
	}
}

func TestHook_RejectsUnknownPhase(t *testing.T) {
	workdir(t)
	if _, _, err := run(t, "hook", "sideways"); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}

func TestHookReset(t *testing.T) {
	dir := workdir(t)
	path := filepath.Join(dir, ".backup_completed")
	write := func() {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write()
	out, _, err := run(t, "hook", "reset", "--dry-run")
	if err != nil {
		t.Fatalf("dry-run reset: %v", err)
	}
	if !strings.Contains(out, "[dry-run]") {
		t.Fatalf("expected dry-run notice: %s", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("dry-run must keep the sentinel: %v", err)
	}

	var o, e bytes.Buffer
	cmd := cli.NewRootCmd(&o, &e)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"hook", "reset"})
	if _, err := cmd.ExecuteC(); err != nil {
		t.Fatalf("declined reset: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("declined reset must keep the sentinel: %v", err)
	}

	if _, _, err := run(t, "hook", "reset", "--yes"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("sentinel should be removed: %v", err)
	}

	out, _, err = run(t, "hook", "reset", "--yes")
	if err != nil || !strings.Contains(out, "nothing to reset") {
		t.Fatalf("reset without sentinel: err=%v out=%s", err, out)
	}
}

func TestHook_BadAddressDoesNotBlockUpload(t *testing.T) {
	dir := workdir(t)
	sentinel := filepath.Join(dir, ".backup_completed")
	bad := "http://10.0.0.9/ui"

	out, _, err := run(t, "hook", "--device", bad, "--targets", "uploadfs")
	if err != nil {
		t.Fatalf("pre hook must not fail on a bad address: %v", err)
	}
	if !strings.Contains(out, "[BACKUP] Invalid ESP32 address") || !strings.Contains(out, "proceeding with filesystem upload") {
		t.Fatalf("expected backup warning: %s", out)
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("sentinel should be written: %v", err)
	}

	out, _, err = run(t, "hook", "--device", bad, "--targets", "uploadfs")
	if err != nil {
		t.Fatalf("post hook must not fail on a bad address: %v", err)
	}
	if !strings.Contains(out, "[RESTORE] Invalid ESP32 address") {
		t.Fatalf("expected restore warning: %s", out)
	}
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Fatalf("sentinel should be removed: %v", err)
	}

	if _, _, err := run(t, "hook", "pre", "--device", bad, "--strict"); err == nil {
		t.Fatalf("strict hook should fail on a bad address")
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("strict hook still writes the sentinel: %v", err)
	}
}

func TestHook_InvalidConfigFallsBackToDefaults(t *testing.T) {
	dir := workdir(t)
	t.Setenv("SERVO_BACKUP_RESTORE_MAX_RETRIES", "0")
	_, srv := newFakeDevice(t)

	out, _, err := run(t, "hook", "pre", "--device", srv.URL)
	if err != nil {
		t.Fatalf("pre hook must not fail on invalid config: %v", err)
	}
	if !strings.Contains(out, "[BACKUP] Warning: configuration problem") || !strings.Contains(out, "restore.max_retries") {
		t.Fatalf("expected config warning: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups", "servo_config_latest.json")); err != nil {
		t.Fatalf("backup should still run against the flag address: %v", err)
	}

	out, _, err = run(t, "hook", "post", "--device", srv.URL)
	if err != nil {
		t.Fatalf("post hook must not fail on invalid config: %v", err)
	}
	if !strings.Contains(out, "Configuration reloaded from offline storage") {
		t.Fatalf("restore should run with default retries: %s", out)
	}

	if _, _, err := run(t, "hook", "pre", "--device", srv.URL, "--strict"); err == nil {
		t.Fatalf("strict hook should reject invalid config")
	}
}
