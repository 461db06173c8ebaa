package state

import (
	"path/filepath"
	"strings"
	"sync"
)

var (
	PathsVar Paths
	initOnce sync.Once
)

// cached error after init
var initErr error

// safe to call multiple times; initialization happens once. ensures
// filesystem layout exists and returns error if any
func Init(dataDir string) error {
	initOnce.Do(func() {
		path := strings.TrimSpace(dataDir)
		if path == "" {
			path = "./data"
		}
		path = filepath.Clean(path)
		PathsVar = PathsFor(path)
		initErr = EnsureStateDirs(path)
	})
	return initErr
}
