package backend

import "time"

// Entry is one backup file discovered in a backend.
type Entry struct {
	Kind      string    `json:"kind"`                // snapshot|latest|other
	Name      string    `json:"name"`                // file name
	Timestamp string    `json:"timestamp,omitempty"` // YYYYMMDD_HHMMSS for snapshots
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modTime"`
	Path      string    `json:"path"`
}

// Kinds accepted by List.
const (
	KindAll      = "all"
	KindSnapshot = "snapshots"
	KindLatest   = "latest"
)

// Entry.Kind values.
const (
	EntrySnapshot = "snapshot"
	EntryLatest   = "latest"
	EntryOther    = "other"
)

// StorageBackend lists backups; backups are only ever added by the writer.
type StorageBackend interface {
	List(kind string) ([]Entry, error)
}
