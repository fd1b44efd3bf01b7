package bridge

import (
	"sync"
	"time"
)

// commandLimiter allows at most limit commands in any sliding window.
type commandLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	recent []time.Time
}

func newCommandLimiter(window time.Duration, limit int, clock func() time.Time) *commandLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &commandLimiter{window: window, limit: limit, now: clock}
}

// Allow records one command. A zero limit or window disables limiting.
func (l *commandLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.recent[:0]
	for _, at := range l.recent {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	l.recent = kept
	if len(l.recent) >= l.limit {
		return false
	}
	l.recent = append(l.recent, now)
	return true
}
