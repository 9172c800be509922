package backup_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"servo-backup/src/backup"
	"servo-backup/src/deviceapi"
)

func fixedNow() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local) }

func newWriter(t *testing.T, fake *deviceapi.FakeClient) (*backup.Writer, *bytes.Buffer, string) {
	t.Helper()
	root := t.TempDir()
	var out bytes.Buffer
	w := &backup.Writer{
		Client: fake,
		Device: "10.0.0.2",
		Paths: backup.Paths{
			Dir:     filepath.Join(root, "backups"),
			Staging: filepath.Join(root, "data", "offline_config.json"),
		},
		Now: fixedNow,
		Out: &out,
	}
	return w, &out, root
}

func TestWriter_WritesAllCopies(t *testing.T) {
	fake := deviceapi.NewFake()
	fake.ConfigBody = []byte(twoBoards)
	w, out, root := newWriter(t, fake)

	res := w.Run(context.Background())
	if !res.OK() || res.Outcome != deviceapi.OK {
		t.Fatalf("backup failed: %+v", res)
	}
	wantSnap := filepath.Join(root, "backups", "servo_config_backup_20250304_050607.json")
	if res.Timestamped != wantSnap {
		t.Fatalf("snapshot = %s, want %s", res.Timestamped, wantSnap)
	}
	src, _ := backup.ParseDocument([]byte(twoBoards))
	for _, p := range []string{res.Timestamped, res.Latest, res.Staging} {
		doc, err := backup.LoadDocument(p)
		if err != nil {
			t.Fatalf("load %s: %v", p, err)
		}
		if !doc.Equal(src) {
			t.Fatalf("%s differs from fetched document", p)
		}
		b, _ := os.ReadFile(p)
		if !strings.Contains(string(b), "\n  \"boards\": [") {
			t.Fatalf("%s is not 2-space indented:\n%s", p, b)
		}
	}
	if !res.OfflineSaved || !res.Responsive {
		t.Fatalf("expected offline save and debug check to succeed: %+v", res)
	}
	want := []string{"POST /api/save-offline", "GET /api/config", "GET /api/debug"}
	if strings.Join(fake.Calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", fake.Calls)
	}
	s := out.String()
	for _, line := range []string{
		"[BACKUP] Attempting to backup configuration from 10.0.0.2...",
		"[BACKUP] Configuration backed up to: " + wantSnap,
		"[BACKUP] Backup attempt completed, proceeding with filesystem upload...",
	} {
		if !strings.Contains(s, line) {
			t.Fatalf("output missing %q:\n%s", line, s)
		}
	}
}

func TestWriter_NonOKLeavesLatestUntouched(t *testing.T) {
	fake := deviceapi.NewFake()
	fake.ConfigErr = deviceapi.Rejection("GET /api/config", 500)
	w, out, root := newWriter(t, fake)

	latest := w.Paths.Latest()
	if err := os.MkdirAll(filepath.Dir(latest), 0o755); err != nil {
		t.Fatal(err)
	}
	previous := []byte("{\n  \"success\": true\n}\n")
	if err := os.WriteFile(latest, previous, 0o644); err != nil {
		t.Fatal(err)
	}

	res := w.Run(context.Background())
	if res.OK() || res.Outcome != deviceapi.Rejected {
		t.Fatalf("expected rejected outcome, got %+v", res)
	}
	if !strings.Contains(out.String(), "[BACKUP] Failed to get configuration: HTTP 500") {
		t.Fatalf("missing rejection message:\n%s", out.String())
	}
	entries, _ := os.ReadDir(filepath.Join(root, "backups"))
	if len(entries) != 1 || entries[0].Name() != backup.LatestName {
		t.Fatalf("no new files expected, got %v", entries)
	}
	b, _ := os.ReadFile(latest)
	if !bytes.Equal(b, previous) {
		t.Fatalf("latest changed: %s", b)
	}
	if _, err := os.Stat(w.Paths.Staging); !os.IsNotExist(err) {
		t.Fatalf("staging copy should not exist: %v", err)
	}
	if fake.Count("GET /api/debug") != 0 {
		t.Fatalf("debug check should be skipped after a failed fetch")
	}
}

func TestWriter_OfflineSaveFailureIsNotFatal(t *testing.T) {
	fake := deviceapi.NewFake()
	fake.SaveErr = deviceapi.Rejection("POST /api/save-offline", 404)
	fake.DebugErr = deviceapi.Failure("GET /api/debug", deviceapi.Timeout, context.DeadlineExceeded)
	w, out, _ := newWriter(t, fake)

	res := w.Run(context.Background())
	if !res.OK() {
		t.Fatalf("backup should succeed: %+v", res)
	}
	if res.OfflineSaved || res.Responsive {
		t.Fatalf("flags should reflect failed best-effort calls: %+v", res)
	}
	if !strings.Contains(out.String(), "[BACKUP] Warning: Could not trigger offline save (HTTP 404)") {
		t.Fatalf("missing warning:\n%s", out.String())
	}
}

func TestWriter_UnreachableAndTimeoutMessages(t *testing.T) {
	cases := []struct {
		outcome deviceapi.Outcome
		want    string
	}{
		{deviceapi.Unreachable, "[BACKUP] Could not connect to ESP32 at 10.0.0.2"},
		{deviceapi.Timeout, "[BACKUP] Timeout connecting to ESP32 at 10.0.0.2"},
	}
	for _, c := range cases {
		fake := deviceapi.NewFake()
		fake.ConfigErr = deviceapi.Failure("GET /api/config", c.outcome, context.DeadlineExceeded)
		w, out, _ := newWriter(t, fake)
		res := w.Run(context.Background())
		if res.Outcome != c.outcome {
			t.Fatalf("outcome = %v, want %v", res.Outcome, c.outcome)
		}
		if !strings.Contains(out.String(), c.want) {
			t.Fatalf("missing %q:\n%s", c.want, out.String())
		}
	}
}

func TestWriter_SameSecondKeepsBothSnapshots(t *testing.T) {
	fake := deviceapi.NewFake()
	w, _, _ := newWriter(t, fake)
	w.Paths.Staging = ""

	first := w.Run(context.Background())
	second := w.Run(context.Background())
	if !first.OK() || !second.OK() {
		t.Fatalf("backups failed: %+v %+v", first, second)
	}
	if first.Timestamped == second.Timestamped {
		t.Fatalf("second backup overwrote %s", first.Timestamped)
	}
	if !strings.HasSuffix(second.Timestamped, "_2.json") {
		t.Fatalf("unexpected second name %s", second.Timestamped)
	}
	if second.Staging != "" {
		t.Fatalf("staging disabled but written: %s", second.Staging)
	}
	if ts, ok := backup.ParseTimestamped(second.Timestamped); !ok || !ts.Equal(fixedNow()) {
		t.Fatalf("ParseTimestamped(%s) = %v %v", second.Timestamped, ts, ok)
	}
}

func TestWriter_LatestFailureNamesKeptSnapshot(t *testing.T) {
	fake := deviceapi.NewFake()
	fake.ConfigBody = []byte(twoBoards)
	w, out, root := newWriter(t, fake)
	// A directory in place of the latest file makes the replace fail.
	if err := os.MkdirAll(filepath.Join(root, "backups", backup.LatestName), 0o755); err != nil {
		t.Fatal(err)
	}

	res := w.Run(context.Background())
	if res.OK() || res.Latest != "" {
		t.Fatalf("expected latest write to fail: %+v", res)
	}
	if res.Timestamped == "" {
		t.Fatalf("snapshot path should be reported: %+v", res)
	}
	if !strings.Contains(res.Err.Error(), res.Timestamped) || !strings.Contains(out.String(), res.Timestamped+" was kept") {
		t.Fatalf("kept snapshot not named:\nerr=%v\n%s", res.Err, out.String())
	}
}
