package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"forefront/arena/internal/combat"
	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/stats"
	"forefront/arena/internal/telemetry"
	"forefront/arena/internal/terrain"
)

// ErrHostClosed is returned by StartMatch after Close.
var ErrHostClosed = errors.New("match host closed")

// HostOption configures optional Host behaviour at construction time.
type HostOption func(*Host)

// Host owns the current match and the epoch counter that fences off stale
// timers from earlier matches.
type Host struct {
	mu sync.Mutex

	epoch   atomic.Uint64
	current *Match
	closed  bool

	rules   Rules
	deps    dependencies
	seed    int64
	seeded  bool
	params  terrain.GeneratorParams
	logger  *logging.Logger
	started func(*Match)
}

// WithRules overrides the default rule set.
func WithRules(rules Rules) HostOption {
	return func(h *Host) {
		h.rules = rules
	}
}

// WithPhysics attaches the physics collaborator driven by each match.
func WithPhysics(physics PhysicsBridge) HostOption {
	return func(h *Host) {
		if physics != nil {
			h.deps.physics = physics
		}
	}
}

// WithEvents routes presentation events to publisher.
func WithEvents(publisher events.Publisher) HostOption {
	return func(h *Host) {
		if publisher != nil {
			h.deps.events = publisher
		}
	}
}

// WithStats persists win counters in store.
func WithStats(store stats.Store) HostOption {
	return func(h *Host) {
		if store != nil {
			h.deps.stats = store
		}
	}
}

// WithMetrics records gameplay counters.
func WithMetrics(metrics *telemetry.Metrics) HostOption {
	return func(h *Host) {
		h.deps.metrics = metrics
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger *logging.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the wall-clock source used for the self-hit grace window.
func WithClock(clock func() time.Time) HostOption {
	return func(h *Host) {
		//1.- Allow tests to inject a deterministic time source for reproducibility.
		if clock != nil {
			h.deps.now = clock
		}
	}
}

// WithSeed fixes the terrain seed of every match the host starts.
func WithSeed(seed int64) HostOption {
	return func(h *Host) {
		h.seed = seed
		h.seeded = true
	}
}

// WithTerrainParams overrides the terrain random-walk tuning.
func WithTerrainParams(params terrain.GeneratorParams) HostOption {
	return func(h *Host) {
		h.params = params
	}
}

// WithMatchStarted registers a callback invoked after each match begins.
func WithMatchStarted(fn func(*Match)) HostOption {
	return func(h *Host) {
		h.started = fn
	}
}

// NewHost builds a host with no match running.
func NewHost(opts ...HostOption) (*Host, error) {
	host := &Host{
		rules:  DefaultRules(),
		params: terrain.DefaultGeneratorParams(),
		deps: dependencies{
			physics: nopPhysics{},
			events:  events.Discard{},
			stats:   stats.NewMemoryStore(),
			now:     time.Now,
		},
		logger: logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(host)
		}
	}
	if err := host.rules.Validate(); err != nil {
		return nil, err
	}
	host.deps.logger = host.logger
	return host, nil
}

// StartMatch tears down the current match and begins a fresh one on newly
// generated terrain.
func (h *Host) StartMatch(ctx context.Context, levelWidth, levelHeight, cellSize float64) (*Match, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}

	//1.- Bump the epoch first so any stale timer observes it, then wait for the old loop.
	epoch := h.epoch.Add(1)
	h.stopLocked()

	opts := []terrain.Option{terrain.WithParams(h.params)}
	if h.seeded {
		opts = append(opts, terrain.WithSeed(h.seed))
	}
	grid, err := terrain.Generate(levelWidth, levelHeight, cellSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate terrain: %w", err)
	}

	//2.- Build tanks and turn state, then launch the timer goroutine.
	m, err := newMatch(epoch, h.epoch.Load, h.rules, grid, h.deps)
	if err != nil {
		return nil, fmt.Errorf("start match %d: %w", epoch, err)
	}
	m.start(ctx)
	h.current = m
	if h.started != nil {
		h.started(m)
	}
	return m, nil
}

// Reset ends the current match without starting a new one.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epoch.Add(1)
	h.stopLocked()
}

// Close stops the current match and rejects further starts.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.epoch.Add(1)
	h.stopLocked()
}

func (h *Host) stopLocked() {
	if h.current == nil {
		return
	}
	previous := h.current
	h.current = nil
	previous.stop()
	h.deps.physics.Clear()
	h.logger.Debug("match torn down", logging.Epoch(previous.epoch))
}

// Current returns the running match or nil.
func (h *Host) Current() *Match {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Epoch returns the generation of the most recent start or reset.
func (h *Host) Epoch() uint64 {
	return h.epoch.Load()
}

// HandleContact forwards a physics contact to the current match.
func (h *Host) HandleContact(contact combat.Contact) {
	if m := h.Current(); m != nil {
		m.HandleContact(contact)
	}
}

// SyncTank forwards a physics-owned tank position to the current match.
func (h *Host) SyncTank(playerID int, position geom.Vec3) {
	if m := h.Current(); m != nil {
		m.SyncTank(playerID, position)
	}
}

// Paused reports whether the current match is paused. No match counts as paused.
func (h *Host) Paused() bool {
	m := h.Current()
	if m == nil {
		return true
	}
	return m.Paused()
}
