package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"servo-backup/src/backend"
	"servo-backup/src/backup"
)

// Backend implements backend.StorageBackend for a local backup directory.
type Backend struct {
	Root string
}

// New returns a backend for root. A root that does not exist yet lists as empty.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("backup directory must not be empty")
	}
	info, err := os.Stat(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if err == nil && !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}
	return &Backend{Root: root}, nil
}

func (b *Backend) List(kind string) ([]backend.Entry, error) {
	switch kind {
	case "", backend.KindAll, backend.KindSnapshot, backend.KindLatest:
	default:
		return nil, fmt.Errorf("unknown kind %q (want all, snapshots or latest)", kind)
	}
	files, err := os.ReadDir(b.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []backend.Entry
	for _, f := range files {
		name := f.Name()
		// skip hidden and temp files
		if f.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		e := backend.Entry{Kind: backend.EntryOther, Name: name, Path: filepath.Join(b.Root, name)}
		if ts, ok := backup.ParseTimestamped(name); ok {
			e.Kind = backend.EntrySnapshot
			e.Timestamp = ts.Format(backup.TimestampLayout)
		} else if name == backup.LatestName {
			e.Kind = backend.EntryLatest
		}
		if !wanted(kind, e.Kind) {
			continue
		}
		if info, err := f.Info(); err == nil {
			e.Size = info.Size()
			e.ModTime = info.ModTime()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if a.Kind != c.Kind {
			return kindOrder(a.Kind) < kindOrder(c.Kind)
		}
		if a.Timestamp != c.Timestamp {
			return a.Timestamp < c.Timestamp
		}
		return a.Name < c.Name
	})
	return entries, nil
}

func wanted(kind, entryKind string) bool {
	switch kind {
	case backend.KindSnapshot:
		return entryKind == backend.EntrySnapshot
	case backend.KindLatest:
		return entryKind == backend.EntryLatest
	}
	return true
}

func kindOrder(k string) int {
	switch k {
	case backend.EntryLatest:
		return 0
	case backend.EntrySnapshot:
		return 1
	}
	return 2
}
