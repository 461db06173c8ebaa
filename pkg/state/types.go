package state

import "path/filepath"

type Paths struct {
	Data    string
	State   string
	Spool   string // body spool files for in-flight requests
	Journal string
	Logs    string
	Crash   string
}

func PathsFor(dataDir string) Paths {
	statePath := filepath.Join(dataDir, "state")
	return Paths{
		// base
		Data: dataDir,

		// mains
		Journal: filepath.Join(dataDir, "journal"),

		// state
		State: statePath,
		Spool: filepath.Join(statePath, "spool"),
		Logs:  filepath.Join(statePath, "logs"),
		Crash: filepath.Join(statePath, "crash"),
	}
}

// Convenience helpers
func SpoolPath(dataDir string) string   { return PathsFor(dataDir).Spool }
func JournalPath(dataDir string) string { return PathsFor(dataDir).Journal }
func LogsPath(dataDir string) string    { return PathsFor(dataDir).Logs }
func CrashPath(dataDir string) string   { return PathsFor(dataDir).Crash }
