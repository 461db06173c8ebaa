// Package janitor sweeps what a running server leaves behind: spool
// files orphaned by crashes and journal entries past their age limit.
// Runs are cron-scheduled and guarded by a file lease so overlapping
// instances sharing a data dir never sweep concurrently.
package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"inletd/pkg/journal"
	"inletd/pkg/logger"
)

type Config struct {
	Schedule string
	MaxAge   time.Duration
	LockTTL  time.Duration
	SpoolDir string
	LockDir  string
}

// Result summarizes one sweep.
type Result struct {
	Skipped       bool `json:"skipped"`
	SpoolRemoved  int  `json:"spool_removed"`
	JournalPruned int  `json:"journal_pruned"`
}

type Manager struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerMu     sync.Mutex
)

// Start launches the schedule loop and installs the package manager
// used by RunImmediate. The returned cancel stops the loop.
func Start(ctx context.Context, cfg Config) context.CancelFunc {
	ctx2, cancel := context.WithCancel(ctx)
	m := &Manager{cfg: cfg, ctx: ctx2, cancel: cancel}

	managerMu.Lock()
	globalManager = m
	managerMu.Unlock()

	logger.Info("janitor_enabled", "cron", cfg.Schedule, "max_age", cfg.MaxAge.String())
	go m.scheduleLoop()
	return cancel
}

// RunImmediate triggers one sweep outside the schedule.
func RunImmediate() (Result, error) {
	managerMu.Lock()
	m := globalManager
	managerMu.Unlock()

	if m == nil {
		return Result{}, fmt.Errorf("janitor not started")
	}
	return m.runSweep()
}

func (m *Manager) scheduleLoop() {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Schedule, time.Now(), false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", m.cfg.Schedule, "error", err.Error())
			select {
			case <-time.After(30 * time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			m.runJob()
			select {
			case <-time.After(time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			m.runJob()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runJob() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if _, err := m.runSweep(); err != nil {
		logger.Error("janitor_run_error", "error", err.Error())
	}
}

func (m *Manager) runSweep() (Result, error) {
	owner := sweepOwner()
	lock := newFileLease(m.cfg.LockDir)
	acquired, err := lock.Acquire(owner, m.cfg.LockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("acquire janitor lease: %w", err)
	}
	if !acquired {
		logger.Info("janitor_lease_held_elsewhere")
		return Result{Skipped: true}, nil
	}
	defer func() {
		if err := lock.Release(owner); err != nil {
			logger.Error("janitor_lease_release_failed", "error", err.Error())
		}
	}()

	started := time.Now()
	cutoff := started.Add(-m.cfg.MaxAge)
	logger.Info("janitor_run_start", "owner", owner, "cutoff", cutoff.Format(time.RFC3339))

	res := Result{}
	res.SpoolRemoved = m.sweepSpool(cutoff)

	pruned, err := journal.PruneBefore(cutoff)
	if err != nil {
		logger.Error("janitor_journal_prune_failed", "error", err.Error())
	} else {
		res.JournalPruned = pruned
	}

	metricRuns.Inc()
	metricSpoolRemoved.Add(float64(res.SpoolRemoved))
	metricJournalPruned.Add(float64(res.JournalPruned))
	logger.Info("janitor_run_done",
		"spool_removed", res.SpoolRemoved,
		"journal_pruned", res.JournalPruned,
		"elapsed", time.Since(started).String(),
	)
	return res, nil
}

// sweepSpool removes spool files last touched before cutoff. A live
// request holds its spool file for seconds, so anything older than the
// age limit belongs to a process that died mid-request.
func (m *Manager) sweepSpool(cutoff time.Time) int {
	entries, err := os.ReadDir(m.cfg.SpoolDir)
	if err != nil {
		logger.Error("janitor_spool_scan_failed", "dir", m.cfg.SpoolDir, "error", err.Error())
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.cfg.SpoolDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Error("janitor_spool_remove_failed", "path", path, "error", err.Error())
			continue
		}
		logger.Debug("janitor_spool_removed", "path", path, "age", time.Since(info.ModTime()).String())
		removed++
	}
	return removed
}

func isSpoolFile(name string) bool {
	return strings.HasPrefix(name, "body-") && strings.HasSuffix(name, ".tmp")
}

func sweepOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
