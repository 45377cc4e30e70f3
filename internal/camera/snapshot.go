package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotLayout is the UTC timestamp prefix of snapshot filenames.
const SnapshotLayout = "2006-01-02-15:04:05"

const snapshotSuffix = "_sample.jpg"

// SnapshotWriter stores JPEG snapshots in a directory.
type SnapshotWriter struct {
	dir string
	now func() time.Time
}

// NewSnapshotWriter returns a writer for dir. The directory is created on
// first write.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, now: time.Now}
}

// Dir returns the snapshot directory.
func (w *SnapshotWriter) Dir() string {
	return w.dir
}

// Filename returns the snapshot filename for t.
func Filename(t time.Time) string {
	return t.UTC().Format(SnapshotLayout) + snapshotSuffix
}

// Write stores data under a timestamped name and returns the full path.
// A snapshot taken within the same second replaces the previous one.
func (w *SnapshotWriter) Write(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptySnapshot
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	path := filepath.Join(w.dir, Filename(w.now()))
	tmp, err := os.CreateTemp(w.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // snapshots are meant to be readable by beamline users
		tmp.Close() //nolint:errcheck,gosec // chmod error takes precedence
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
