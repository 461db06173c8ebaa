package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// acceptLimiter holds one token bucket per peer. Buckets are created on
// first sight and evicted after an idle TTL so a churn of distinct
// client IPs cannot grow the map without bound.
type acceptLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int

	stopCh   chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

// newAcceptLimiter returns nil when rps is non-positive, which disables
// limiting entirely.
func newAcceptLimiter(rps float64, burst int) *acceptLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	p := &acceptLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

func (p *acceptLimiter) allow(key string) bool {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(p.rps, p.burst)}
		p.entries[key] = e
	}
	e.lastSeen = time.Now()
	p.mu.Unlock()
	return e.lim.Allow()
}

func (p *acceptLimiter) stopCleanup() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

func (p *acceptLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdleTTL)
			p.mu.Lock()
			for k, e := range p.entries {
				if e.lastSeen.Before(cutoff) {
					delete(p.entries, k)
				}
			}
			p.mu.Unlock()
		case <-p.stopCh:
			return
		}
	}
}
