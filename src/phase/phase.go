// Package phase tells the pre-upload invocation of the lifecycle hook apart
// from the post-upload one.
//
// The sentinel file exists between a completed backup and the matching
// restore. Its content is a small JSON record; any other content (such as
// the plain "backup_completed" marker older hooks wrote) still counts.
package phase

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Phase is the lifecycle position of a hook invocation.
type Phase string

const (
	// Pre runs before the filesystem upload: back up.
	Pre Phase = "pre"
	// Post runs after the filesystem upload: restore.
	Post Phase = "post"
)

// ParsePhase accepts pre, post, or auto/"" (returned as "").
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "pre", "before":
		return Pre, nil
	case "post", "after":
		return Post, nil
	}
	return "", fmt.Errorf("unknown phase %q (want pre, post or auto)", s)
}

// StateBackedUp is the only state ever persisted.
const StateBackedUp = "backed-up"

// State is the sentinel content.
type State struct {
	State     string    `json:"state"`
	RunID     string    `json:"runId"`
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	// Legacy is set when the file did not hold a state record.
	Legacy bool `json:"-"`
}

// NewState starts a run record; the run id ties a restore's logs to its backup.
func NewState(device string, now time.Time) State {
	return State{State: StateBackedUp, RunID: uuid.NewString(), Device: device, CreatedAt: now.UTC()}
}

// Sentinel is the file whose existence means "restore pending".
type Sentinel struct {
	Path string
}

// Detect returns Post when the sentinel exists, Pre otherwise.
func (s Sentinel) Detect() (Phase, error) {
	_, err := os.Stat(s.Path)
	switch {
	case err == nil:
		return Post, nil
	case errors.Is(err, fs.ErrNotExist):
		return Pre, nil
	default:
		return "", fmt.Errorf("stat sentinel: %w", err)
	}
}

// MarkBackedUp creates or replaces the sentinel.
func (s Sentinel) MarkBackedUp(st State) error {
	if st.State == "" {
		st.State = StateBackedUp
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, append(b, '\n'), 0o644)
}

// Load reads the sentinel. A missing file returns fs.ErrNotExist.
func (s Sentinel) Load() (State, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil || st.State == "" {
		return State{State: StateBackedUp, Legacy: true}, nil
	}
	return st, nil
}

// Clear removes the sentinel. A sentinel that is already gone is not an error.
func (s Sentinel) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
