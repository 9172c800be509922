package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backup file naming inside the backup directory.
const (
	TimestampedPrefix = "servo_config_backup_"
	LatestName        = "servo_config_latest.json"
	TimestampLayout   = "20060102_150405"
)

// Paths locates the files a backup writes.
type Paths struct {
	Dir string
	// Staging is the copy picked up by the filesystem upload; empty disables it.
	Staging string
}

// Latest returns the path of the latest-alias file.
func (p Paths) Latest() string { return filepath.Join(p.Dir, LatestName) }

// Timestamped returns the snapshot path for t.
func (p Paths) Timestamped(t time.Time) string {
	return filepath.Join(p.Dir, TimestampedPrefix+t.Format(TimestampLayout)+".json")
}

// ParseTimestamped extracts the snapshot time from a timestamped file name.
func ParseTimestamped(name string) (time.Time, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, TimestampedPrefix) || !strings.HasSuffix(base, ".json") {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(base, TimestampedPrefix), ".json")
	if len(ts) < len(TimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, ts[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// writeNew creates path without replacing an existing snapshot. When the
// name is taken (two backups in the same second) a numeric suffix is added.
func writeNew(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 2; ; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			if i > 100 {
				return "", fmt.Errorf("too many snapshots named %s", path)
			}
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(candidate)
			return "", err
		}
		return candidate, f.Close()
	}
}

// writeReplace atomically replaces path via a temp file and rename.
func writeReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
