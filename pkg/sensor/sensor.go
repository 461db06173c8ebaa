// Package sensor watches the spool filesystem and raises pressure
// alerts before ingestion starts failing mid-body.
package sensor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"inletd/pkg/logger"
)

type Config struct {
	// Path is the filesystem to watch, normally the spool directory.
	Path     string
	Interval time.Duration
	// MinFree is the free-byte floor; less than this is an alert.
	MinFree int64
	// RecoveryWindow is how long free space must stay above the floor
	// before the alert clears. Zero means twice the poll interval.
	RecoveryWindow time.Duration
}

type Sensor struct {
	cfg      Config
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	alert     bool
	alertedAt time.Time

	// statfs is swapped out by tests
	statfs func(path string) (free, total uint64, err error)
}

func New(cfg Config) *Sensor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 2 * cfg.Interval
	}
	return &Sensor{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		statfs: realStatfs,
	}
}

func (s *Sensor) Start() {
	go s.run()
}

func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Degraded reports whether the watched filesystem is under pressure.
// The readiness endpoint consults this.
func (s *Sensor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alert
}

func (s *Sensor) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.check(time.Now())
	for {
		select {
		case <-ticker.C:
			s.check(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sensor) check(now time.Time) {
	free, total, err := s.statfs(s.cfg.Path)
	if err != nil {
		logger.Warn("sensor_statfs_failed", "path", s.cfg.Path, "error", err.Error())
		return
	}
	metricSpoolFree.Set(float64(free))
	metricSpoolTotal.Set(float64(total))

	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(free) < s.cfg.MinFree {
		if !s.alert {
			logger.Warn("spool_space_low",
				"path", s.cfg.Path,
				"free_bytes", free,
				"min_free_bytes", s.cfg.MinFree,
			)
			s.alert = true
			metricAlerts.Inc()
		}
		s.alertedAt = now
		return
	}
	if s.alert && now.Sub(s.alertedAt) >= s.cfg.RecoveryWindow {
		logger.Info("spool_space_recovered",
			"path", s.cfg.Path,
			"free_bytes", free,
		)
		s.alert = false
	}
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return stat.Bavail * bsize, stat.Blocks * bsize, nil
}
