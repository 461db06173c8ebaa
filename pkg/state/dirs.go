package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// ensure canonical runtime folder layout exists under the data dir, not
// symlink, restrictive perms, writable
func EnsureStateDirs(dataDir string) error {
	statePath := filepath.Join(dataDir, "state")
	spoolPath := filepath.Join(statePath, "spool")
	logsPath := filepath.Join(statePath, "logs")
	crashPath := filepath.Join(statePath, "crash")
	journalPath := filepath.Join(dataDir, "journal")

	paths := []string{spoolPath, logsPath, crashPath, journalPath}

	for _, p := range paths {
		// ensure parent exists
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", p, err)
		}

		// must be directory and not symlink if exists
		if fi, err := os.Lstat(p); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", p)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", p)
			}
		}

		// create if missing
		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", p, err)
		}

		// check not symlink after creation
		if fi2, err := os.Lstat(p); err == nil {
			if fi2.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", p)
			}
		}

		// check writable by creating and deleting temp file
		tmp, err := os.CreateTemp(p, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", p, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	return nil
}
