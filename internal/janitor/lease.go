package janitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileLease is a single-holder lock backed by a JSON file. Acquisition
// relies on os.Link being atomic on POSIX filesystems; a crashed holder
// is displaced once its recorded expiry passes.
type fileLease struct {
	path string
}

type leaseRecord struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

func newFileLease(dir string) *fileLease {
	return &fileLease{path: filepath.Join(dir, "janitor.lock")}
}

func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	rec := leaseRecord{Owner: owner, Expires: time.Now().Add(ttl)}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return false, fmt.Errorf("write lease candidate: %w", err)
	}

	if err := os.Link(tmp, l.path); err == nil {
		os.Remove(tmp)
		return true, nil
	}

	existing, err := l.read()
	if err != nil {
		// unreadable lease counts as stale
		if err := os.Rename(tmp, l.path); err != nil {
			return false, fmt.Errorf("replace corrupt lease: %w", err)
		}
		return true, nil
	}
	if existing.Expires.Before(time.Now()) {
		if err := os.Rename(tmp, l.path); err != nil {
			return false, fmt.Errorf("replace expired lease: %w", err)
		}
		return true, nil
	}

	os.Remove(tmp)
	return false, nil
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return fmt.Errorf("lease held by %s, not %s", existing.Owner, owner)
	}
	return os.Remove(l.path)
}

func (l *fileLease) read() (leaseRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return leaseRecord{}, err
	}
	var rec leaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return leaseRecord{}, fmt.Errorf("decode lease file: %w", err)
	}
	return rec, nil
}
