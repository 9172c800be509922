package cli_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"servo-backup/src/cli"
)

const twoBoards = `{"success":true,"boards":[
 {"index":0,"address":64,"servos":[{"index":0,"enabled":true,"isPair":true},{"index":1,"enabled":true},{"index":2,"enabled":false}]},
 {"index":1,"address":65,"servos":[{"index":0,"enabled":true}]}]}`

// fakeDevice is an httptest stand-in for the controller firmware.
type fakeDevice struct {
	mu       sync.Mutex
	infoCode int
	calls    []string
}

func newFakeDevice(t *testing.T) (*fakeDevice, *httptest.Server) {
	t.Helper()
	d := &fakeDevice{infoCode: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.calls = append(d.calls, r.Method+" "+r.URL.Path)
		infoCode := d.infoCode
		d.mu.Unlock()
		switch r.URL.Path {
		case "/api/config":
			_, _ = w.Write([]byte(twoBoards))
		case "/api/info":
			w.WriteHeader(infoCode)
			_, _ = w.Write([]byte(`{"success":true,"boardCount":2,"servosPerBoard":16}`))
		case "/api/debug", "/api/save-offline", "/api/load-offline":
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return d, srv
}

func (d *fakeDevice) count(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

// workdir moves into an empty directory; sentinel and staging paths are relative.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("ESP32_IP", "")
	t.Setenv("SERVO_BACKUP_RESTORE_INITIAL_DELAY", "0s")
	t.Setenv("SERVO_BACKUP_RESTORE_RETRY_DELAY", "1ms")
	t.Setenv("SERVO_BACKUP_LOG_FORMAT", "json")
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errb bytes.Buffer
	cmd := cli.NewRootCmd(&out, &errb)
	cmd.SetArgs(args)
	_, err := cmd.ExecuteC()
	return out.String(), errb.String(), err
}
