package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed physics step durations.
type TickMetricsSnapshot struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
}

// AverageFPS derives the steps-per-second equivalent of the sampled step duration.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop. A step
// that takes longer than the budget counts as an overrun.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewTickMonitor constructs an empty monitor. A non-positive budget disables overrun tracking.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// Observe records the duration of a completed step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := TickMetricsSnapshot{Samples: m.samples, Max: m.max, Last: m.last, Overruns: m.overruns}
	if m.samples > 0 {
		snapshot.Average = m.total / time.Duration(m.samples)
	}
	return snapshot
}

// Reset clears the accumulated statistics so a fresh match starts from zero.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples, m.total, m.max, m.last, m.overruns = 0, 0, 0, 0, 0
}
