package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "forefront/arena/internal/telemetry"

// Counts mirrors the instrument totals in process so hosts and tests can read
// them without an exporter.
type Counts struct {
	ShotsFired       int64 `json:"shots_fired"`
	DamageApplied    int64 `json:"damage_applied"`
	CellsDestroyed   int64 `json:"cells_destroyed"`
	Whiffs           int64 `json:"whiffs"`
	TurnsCompleted   int64 `json:"turns_completed"`
	MatchesCompleted int64 `json:"matches_completed"`
}

// Metrics records gameplay counters through OpenTelemetry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	shots   metric.Int64Counter
	damage  metric.Int64Counter
	cells   metric.Int64Counter
	whiffs  metric.Int64Counter
	turns   metric.Int64Counter
	matches metric.Int64Counter
	active  metric.Int64ObservableGauge

	counts struct {
		shots, damage, cells, whiffs, turns, matches atomic.Int64
	}
	activeMatches atomic.Int64
}

// New creates the instruments on the provider, or on the global provider when nil.
// The global provider is a no-op until an SDK is installed.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	m := &Metrics{}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.shots, "forefront.shots.fired", "Projectiles launched"},
		{&m.damage, "forefront.damage.applied", "Health removed from tanks"},
		{&m.cells, "forefront.terrain.cells_destroyed", "Terrain cells removed by explosions"},
		{&m.whiffs, "forefront.shots.whiffed", "Flights cleared by the whiff timeout"},
		{&m.turns, "forefront.turns.completed", "Turn hand-offs performed"},
		{&m.matches, "forefront.matches.completed", "Matches that reached a result"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.active, err = meter.Int64ObservableGauge(
		"forefront.matches.active",
		metric.WithDescription("Matches currently in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active matches gauge: %w", err)
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(m.active, m.activeMatches.Load())
		return nil
	}, m.active)
	if err != nil {
		return nil, fmt.Errorf("registering active matches callback: %w", err)
	}
	return m, nil
}

// ShotFired counts one launched projectile of the given shot type.
func (m *Metrics) ShotFired(ctx context.Context, shot string) {
	if m == nil {
		return
	}
	m.counts.shots.Add(1)
	m.shots.Add(ctx, 1, metric.WithAttributes(attribute.String("shot", shot)))
}

// DamageApplied counts health removed from a tank.
func (m *Metrics) DamageApplied(ctx context.Context, playerID int, source string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.counts.damage.Add(int64(amount))
	m.damage.Add(ctx, int64(amount), metric.WithAttributes(
		attribute.String("player", strconv.Itoa(playerID)),
		attribute.String("source", source),
	))
}

// CellsDestroyed counts removed terrain cells.
func (m *Metrics) CellsDestroyed(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.counts.cells.Add(int64(n))
	m.cells.Add(ctx, int64(n))
}

// Whiff counts a flight cleared by timeout.
func (m *Metrics) Whiff(ctx context.Context) {
	if m == nil {
		return
	}
	m.counts.whiffs.Add(1)
	m.whiffs.Add(ctx, 1)
}

// TurnCompleted counts one hand-off.
func (m *Metrics) TurnCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.counts.turns.Add(1)
	m.turns.Add(ctx, 1)
}

// MatchStarted marks a match as in progress.
func (m *Metrics) MatchStarted() {
	if m == nil {
		return
	}
	m.activeMatches.Add(1)
}

// MatchEnded marks a match as no longer in progress, optionally with a result.
// winner is 0 for a draw; completed is false for matches torn down by a reset.
func (m *Metrics) MatchEnded(ctx context.Context, winner int, completed bool) {
	if m == nil {
		return
	}
	m.activeMatches.Add(-1)
	if !completed {
		return
	}
	m.counts.matches.Add(1)
	m.matches.Add(ctx, 1, metric.WithAttributes(attribute.String("winner", strconv.Itoa(winner))))
}

// Snapshot returns the in-process totals.
func (m *Metrics) Snapshot() Counts {
	if m == nil {
		return Counts{}
	}
	return Counts{
		ShotsFired:       m.counts.shots.Load(),
		DamageApplied:    m.counts.damage.Load(),
		CellsDestroyed:   m.counts.cells.Load(),
		Whiffs:           m.counts.whiffs.Load(),
		TurnsCompleted:   m.counts.turns.Load(),
		MatchesCompleted: m.counts.matches.Load(),
	}
}

// ActiveMatches reports the in-progress gauge value.
func (m *Metrics) ActiveMatches() int64 {
	if m == nil {
		return 0
	}
	return m.activeMatches.Load()
}
