// Package atomicfile provides crash-safe file writes used by the backup
// step's session metadata write. Grounded on
// internal/recovery/state/store.go's write-temp-then-rename pattern from the
// teacher repository, generalized from per-run JSON documents to arbitrary
// byte payloads.
package atomicfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Write durably replaces path with data: write to a sibling temp file, fsync
// it, rename into place, then fsync the containing directory. A crash at any
// point leaves the previous contents of path intact.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
