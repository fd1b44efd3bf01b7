package simulation

import (
	"context"
	"time"
)

// DefaultStep is the fixed physics timestep used when none is configured.
const DefaultStep = time.Second / 60

// maxCatchUp bounds how many steps a single wake-up may run after a stall.
const maxCatchUp = 8

// StepFunc advances the simulation by a fixed timestep.
type StepFunc func(step time.Duration)

// LoopOption configures optional Loop behaviour.
type LoopOption func(*Loop)

// WithGate installs a predicate consulted before every step. While it reports
// true the loop idles and drops the elapsed time instead of catching up later.
func WithGate(held func() bool) LoopOption {
	return func(l *Loop) {
		l.held = held
	}
}

// WithMonitor records how long every step takes.
func WithMonitor(monitor *TickMonitor) LoopOption {
	return func(l *Loop) {
		l.monitor = monitor
	}
}

// Loop drives a fixed timestep simulation from a ticker and an accumulator.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	held     func() bool
	monitor  *TickMonitor
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLoop configures a loop that advances by step on every tick.
func NewLoop(step time.Duration, fn StepFunc, opts ...LoopOption) *Loop {
	if step <= 0 {
		step = DefaultStep
	}
	if fn == nil {
		fn = func(time.Duration) {}
	}
	l := &Loop{step: step, stepFunc: fn}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	ticker := time.NewTicker(l.step)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				accumulator += now.Sub(last)
				last = now
				//1.- A held loop forgets the elapsed time so resuming does not burst.
				if l.held != nil && l.held() {
					accumulator = 0
					continue
				}
				//2.- Run fixed steps while catching up, bounded after a long stall.
				if limit := l.step * maxCatchUp; accumulator > limit {
					accumulator = limit
				}
				for accumulator >= l.step {
					started := time.Now()
					l.stepFunc(l.step)
					l.monitor.Observe(time.Since(started))
					accumulator -= l.step
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil || l.done == nil {
		return
	}
	l.cancel()
	<-l.done
	l.done = nil
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
