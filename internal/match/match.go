package match

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/combat"
	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/stats"
	"forefront/arena/internal/tank"
	"forefront/arena/internal/telemetry"
	"forefront/arena/internal/terrain"
)

// syncEpsilon is the minimum drift reported by physics before a move event is emitted.
const syncEpsilon = 0.05

type liveProjectile struct {
	projectile ballistics.Projectile
	graceUntil time.Time
}

type dependencies struct {
	physics PhysicsBridge
	events  events.Publisher
	stats   stats.Store
	metrics *telemetry.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// Match is one two-player session. All state is owned by the match and guarded
// by its mutex; the timer goroutine, physics feed and input commands serialise
// through it.
type Match struct {
	mu sync.Mutex

	epoch    uint64
	current  func() uint64
	rules    Rules
	grid     *terrain.Grid
	tanks    [2]*tank.Tank
	resolver *combat.Resolver
	deps     dependencies
	logger   *logging.Logger

	turn            int
	active          int
	secondsLeft     int
	ammo            int
	whiffs          int
	inFlight        bool
	paused          bool
	turnEnded       bool
	transition      bool
	movementEnabled bool
	over            bool
	winner          int

	preview       []geom.Vec3
	live          map[uint64]*liveProjectile
	nextShot      uint64
	pendingVolley int
	volleyTimers  []*time.Timer
	lastSynced    [2]geom.Vec3

	landed chan struct{}
	resume chan struct{}
	wake   chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	recorded sync.Once
}

func newMatch(epoch uint64, current func() uint64, rules Rules, grid *terrain.Grid, deps dependencies) (*Match, error) {
	m := &Match{
		epoch:   epoch,
		current: current,
		rules:   rules,
		grid:    grid,
		deps:    deps,
		logger:  deps.logger.With(logging.Epoch(epoch), logging.String("component", "match")),
		live:    make(map[uint64]*liveProjectile),
		landed:  make(chan struct{}, 8),
		resume:  make(chan struct{}, 1),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	//1.- Spawn both tanks on the surface at their configured fractions of the level width.
	minBound, maxBound := grid.Bounds()
	tanks := make([]*tank.Tank, 0, 2)
	for i, fraction := range rules.SpawnFractions {
		x := minBound.X + fraction*(maxBound.X-minBound.X)
		y, _ := grid.SurfaceY(x)
		t, err := tank.New(i+1, geom.Vec3{X: x, Y: y}, rules.MaxHealth)
		if err != nil {
			return nil, fmt.Errorf("spawn tank %d: %w", i+1, err)
		}
		m.tanks[i] = t
		m.lastSynced[i] = t.Position
		tanks = append(tanks, t)
	}
	m.resolver = combat.NewResolver(grid, tanks)

	//2.- Hand the fresh battlefield to physics before the first turn opens.
	deps.physics.LoadTerrain(grid)
	for _, t := range tanks {
		deps.physics.PlaceTank(t.PlayerID, t.Position)
	}

	//3.- Open turn one for player 1.
	m.turn = 1
	m.active = 1
	m.ammo = 1
	m.secondsLeft = rules.TurnSeconds
	m.movementEnabled = true
	for _, t := range tanks {
		t.ResetBudgets(rules.Budgets)
	}
	return m, nil
}

func (m *Match) start(parent context.Context) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(parent)
	m.emitLocked(events.Event{Kind: events.KindMatchStarted})
	for _, t := range m.tanks {
		m.emitLocked(events.Event{Kind: events.KindTankMoved, PlayerID: t.PlayerID, Position: t.Position, Health: t.Health})
	}
	m.emitLocked(events.Event{Kind: events.KindTurnChanged, PlayerID: m.active, Budgets: m.tankFor(m.active).Budgets()})
	m.emitLocked(events.Event{Kind: events.KindCountdownTick, SecondsLeft: m.secondsLeft})
	m.mu.Unlock()
	m.deps.metrics.MatchStarted()
	m.logger.Info("match started",
		logging.Int64("seed", m.grid.Seed()),
		logging.Int("columns", m.grid.Columns()),
		logging.Int("rows", m.grid.Rows()),
	)
	go m.run()
}

// stop cancels the timer goroutine and waits for it to exit.
func (m *Match) stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.mu.Lock()
	m.stopVolleysLocked()
	m.mu.Unlock()
}

// Epoch identifies the match within its host.
func (m *Match) Epoch() uint64 { return m.epoch }

// Grid exposes the terrain for read-only presentation queries.
func (m *Match) Grid() *terrain.Grid { return m.grid }

// Done is closed once the timer goroutine has exited.
func (m *Match) Done() <-chan struct{} { return m.done }

// Snapshot returns a copy of the turn state.
func (m *Match) Snapshot() TurnSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := TurnSnapshot{
		Epoch:           m.epoch,
		Turn:            m.turn,
		Phase:           m.phaseLocked(),
		ActivePlayer:    m.active,
		SecondsLeft:     m.secondsLeft,
		Ammo:            m.ammo,
		InFlight:        m.inFlight,
		Paused:          m.paused,
		TurnEnded:       m.turnEnded,
		Whiffs:          m.whiffs,
		MovementEnabled: m.movementEnabled,
		Over:            m.over,
		Winner:          m.winner,
		Seed:            m.grid.Seed(),
		Preview:         append([]geom.Vec3(nil), m.preview...),
	}
	for _, t := range m.tanks {
		snapshot.Tanks = append(snapshot.Tanks, t.Clone())
	}
	for _, lp := range m.live {
		snapshot.Projectiles = append(snapshot.Projectiles, lp.projectile)
	}
	sort.Slice(snapshot.Projectiles, func(i, j int) bool { return snapshot.Projectiles[i].ID < snapshot.Projectiles[j].ID })
	return snapshot
}

func (m *Match) phaseLocked() Phase {
	switch {
	case m.over:
		return PhaseMatchOver
	case m.transition:
		return PhaseTurnEndTransition
	case m.inFlight:
		return PhaseProjectileInFlight
	case m.ammo == 0:
		return PhaseCountdown
	default:
		return PhaseAwaitingFire
	}
}

// MoveLeft steps the active tank left. It reports false when the command is not allowed.
func (m *Match) MoveLeft(playerID int) bool { return m.move(playerID, -1) }

// MoveRight steps the active tank right. It reports false when the command is not allowed.
func (m *Match) MoveRight(playerID int) bool { return m.move(playerID, 1) }

func (m *Match) move(playerID int, direction float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.movableLocked(playerID) {
		return false
	}
	t := m.tankFor(playerID)
	if !t.SpendMove() {
		return false
	}
	//1.- Step sideways inside the level and settle onto the surface of the new column.
	minBound, maxBound := m.grid.Bounds()
	x := clampFloat(t.Position.X+direction*m.rules.MoveStep, minBound.X, maxBound.X)
	position := geom.Vec3{X: x, Y: t.Position.Y}
	if surface, ok := m.grid.SurfaceY(x); ok {
		position.Y = surface
	}
	t.FacingRight = direction > 0
	m.placeLocked(t, position)
	return true
}

// BoostUp lifts the active tank. It reports false when the command is not allowed.
func (m *Match) BoostUp(playerID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.movableLocked(playerID) {
		return false
	}
	t := m.tankFor(playerID)
	if !t.SpendBoost() {
		return false
	}
	m.placeLocked(t, t.Position.Add(geom.Vec3{Y: m.rules.BoostHeight}))
	return true
}

func (m *Match) placeLocked(t *tank.Tank, position geom.Vec3) {
	t.Position = position
	m.lastSynced[t.PlayerID-1] = position
	m.deps.physics.PlaceTank(t.PlayerID, position)
	m.emitLocked(events.Event{Kind: events.KindTankMoved, PlayerID: t.PlayerID, Position: position, Health: t.Health, Budgets: t.Budgets()})
}

// movableLocked also freezes the shooter while its shells are in the air.
func (m *Match) movableLocked(playerID int) bool {
	return !m.staleLocked() && !m.over && !m.paused && !m.transition && !m.inFlight && m.movementEnabled && playerID == m.active
}

// AimPreview predicts the lob trajectory for dragging from one world point to
// another. It returns nil when the turn cannot take aim.
func (m *Match) AimPreview(from, to geom.Vec3) []geom.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked() || m.over || m.paused || m.transition {
		return nil
	}
	shooter := m.tankFor(m.active)
	projectile, err := ballistics.Launch(0, m.active, shooter.Position, to.Sub(from), ballistics.ShotLob, 0)
	if err != nil {
		return nil
	}
	m.preview = ballistics.PredictPath(projectile, ballistics.DefaultGravity, m.rules.PreviewStep.Seconds(), m.rules.PreviewSamples)
	return append([]geom.Vec3(nil), m.preview...)
}

// Fire launches the active tank's shot, aimed along to-from. It reports false
// when the shot is rejected: no ammo, a shell already in flight, a paused or
// finished match, or an unknown shot type.
func (m *Match) Fire(from, to geom.Vec3, shot ballistics.ShotType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	//1.- One shot per turn and never while a shell of this turn is still live.
	if m.staleLocked() || m.over || m.paused || m.transition || m.ammo == 0 || m.inFlight {
		return false
	}
	profile, ok := ballistics.Catalog().Profile(shot)
	if !ok {
		return false
	}
	aim := to.Sub(from)
	if !m.launchLocked(aim, shot, 0) {
		return false
	}
	m.ammo = 0
	m.inFlight = true
	m.preview = nil

	//2.- Multi-shot volleys follow at a fixed stagger, each guarded by epoch and turn.
	stagger := profile.VolleyStagger()
	if m.rules.VolleyStagger > 0 {
		stagger = m.rules.VolleyStagger
	}
	for i := 1; i < profile.Volley; i++ {
		m.scheduleVolleyLocked(aim, shot, i, stagger*time.Duration(i))
	}
	return true
}

func (m *Match) launchLocked(aim geom.Vec3, shot ballistics.ShotType, volleyIndex int) bool {
	shooter := m.tankFor(m.active)
	m.nextShot++
	id := m.epoch<<32 | m.nextShot
	projectile, err := ballistics.Launch(id, m.active, shooter.Position, aim, shot, volleyIndex)
	if err != nil {
		m.logger.Warn("launch rejected", logging.Error(err))
		return false
	}
	m.live[id] = &liveProjectile{projectile: projectile, graceUntil: m.deps.now().Add(m.rules.SelfHitGrace)}
	//1.- The whiff window restarts with every shell so volley follow-ups get the full threshold.
	m.whiffs = 0
	m.deps.physics.Spawn(projectile)
	m.deps.metrics.ShotFired(m.ctx, shot.String())
	m.emitLocked(events.Event{
		Kind:         events.KindProjectileLaunched,
		PlayerID:     m.active,
		ProjectileID: id,
		Shot:         shot.String(),
		Position:     projectile.Position,
		Force:        projectile.Force,
	})
	m.logger.Debug("projectile launched",
		logging.Uint64("projectile_id", id),
		logging.String("shot", shot.String()),
		logging.Int("volley_index", volleyIndex),
	)
	return true
}

func (m *Match) scheduleVolleyLocked(aim geom.Vec3, shot ballistics.ShotType, index int, delay time.Duration) {
	epoch, turn := m.epoch, m.turn
	m.pendingVolley++
	timer := time.AfterFunc(delay, func() { m.fireFollowUp(epoch, turn, aim, shot, index) })
	m.volleyTimers = append(m.volleyTimers, timer)
}

func (m *Match) fireFollowUp(epoch uint64, turn int, aim geom.Vec3, shot ballistics.ShotType, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	//1.- Timers from an earlier turn or match must not touch current state.
	if m.epoch != epoch || m.turn != turn || m.over || m.ctx.Err() != nil || m.pendingVolley == 0 {
		return
	}
	//2.- A paused match holds the follow-up until play resumes.
	if m.paused {
		m.volleyTimers = append(m.volleyTimers, time.AfterFunc(m.rules.Tick, func() { m.fireFollowUp(epoch, turn, aim, shot, index) }))
		return
	}
	m.pendingVolley--
	m.launchLocked(aim, shot, index)
	m.settleFlightLocked()
}

// EndTurnNow asks the timer to hand off at its next tick once nothing is in flight.
func (m *Match) EndTurnNow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked() || m.over || m.paused || m.transition {
		return false
	}
	m.turnEnded = true
	signal(m.wake)
	return true
}

// Pause freezes the countdown and movement. It reports false if already paused or over.
func (m *Match) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked() || m.over || m.paused {
		return false
	}
	m.paused = true
	//1.- Drop a resume token left over from an earlier pause so this pause really blocks.
	select {
	case <-m.resume:
	default:
	}
	signal(m.wake)
	m.emitLocked(events.Event{Kind: events.KindPaused, SecondsLeft: m.secondsLeft})
	m.logger.Info("match paused", logging.Int("seconds_left", m.secondsLeft))
	return true
}

// Resume releases a pending pause. Resuming an unpaused match is a no-op.
func (m *Match) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		return false
	}
	m.paused = false
	signal(m.resume)
	m.emitLocked(events.Event{Kind: events.KindResumed, SecondsLeft: m.secondsLeft})
	m.logger.Info("match resumed", logging.Int("seconds_left", m.secondsLeft))
	return true
}

// Paused reports whether play is currently frozen. Simulation loops use it to
// hold physics while the match is paused.
func (m *Match) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// HandleContact resolves one physics contact against the match state.
func (m *Match) HandleContact(contact combat.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked() || m.over {
		return
	}
	contact = contact.Normalized()

	//1.- Only projectiles this match launched and still tracks can do damage.
	var projectile *ballistics.Projectile
	grace := false
	if body, ok := contact.Projectile(); ok {
		lp, known := m.live[body.ProjectileID]
		if !known {
			return
		}
		projectile = &lp.projectile
		grace = m.deps.now().Before(lp.graceUntil)
	}

	effect := m.resolver.Resolve(contact, projectile, grace)
	switch effect.Kind {
	case combat.EffectNone, combat.EffectGrounded:
		return
	case combat.EffectSuppressed:
		m.logger.Debug("self hit suppressed", effect.LoggingFields()...)
		return
	}

	//2.- Publish terrain first, then health, then apply knockback.
	if len(effect.DestroyedCells) > 0 {
		m.deps.metrics.CellsDestroyed(m.ctx, len(effect.DestroyedCells))
		m.emitLocked(events.Event{Kind: events.KindTerrainChanged, Cells: effect.DestroyedCells})
	}
	for _, hit := range effect.Hits {
		m.deps.metrics.DamageApplied(m.ctx, hit.PlayerID, string(hit.Source), hit.Amount)
		m.emitLocked(events.Event{Kind: events.KindTankHealthChanged, PlayerID: hit.PlayerID, Health: hit.Health})
		m.deps.physics.ApplyImpulse(hit.PlayerID, hit.Impulse)
	}
	m.logger.Info("contact resolved", effect.LoggingFields()...)

	//3.- The win check runs before the flight is cleared so the timer never sees a stale result.
	if outcome := combat.WinCheck(m.tanks[0], m.tanks[1], m.rules.TieBreak); outcome.Over {
		m.finishLocked(outcome)
		return
	}
	if effect.ProjectileDestroyed {
		delete(m.live, effect.ProjectileID)
		m.deps.physics.Despawn(effect.ProjectileID)
		m.settleFlightLocked()
	}
}

// SyncTank records the physics-owned position of a tank.
func (m *Match) SyncTank(playerID int, position geom.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tankFor(playerID)
	if t == nil {
		return
	}
	t.Position = position
	if geom.PlanarDistance(position, m.lastSynced[playerID-1]) < syncEpsilon {
		return
	}
	m.lastSynced[playerID-1] = position
	m.emitLocked(events.Event{Kind: events.KindTankMoved, PlayerID: playerID, Position: position, Health: t.Health})
}

func (m *Match) settleFlightLocked() {
	if !m.inFlight || len(m.live) > 0 || m.pendingVolley > 0 {
		return
	}
	m.inFlight = false
	m.whiffs = 0
	signal(m.landed)
}

func (m *Match) finishLocked(outcome combat.Outcome) {
	if m.over {
		return
	}
	m.over = true
	m.winner = outcome.Winner
	m.movementEnabled = false
	m.preview = nil
	m.clearProjectilesLocked()
	m.emitLocked(events.Event{Kind: events.KindMatchOver, WinnerID: outcome.Winner})
	m.logger.Info("match over", logging.Int("winner", outcome.Winner))
	signal(m.wake)
}

// clearProjectilesLocked removes every live and scheduled projectile of the turn.
func (m *Match) clearProjectilesLocked() {
	m.stopVolleysLocked()
	m.pendingVolley = 0
	m.live = make(map[uint64]*liveProjectile)
	m.inFlight = false
	m.deps.physics.Clear()
	m.emitLocked(events.Event{Kind: events.KindProjectilesCleared})
}

// whiffLocked clears a flight that never reported a contact.
func (m *Match) whiffLocked() {
	ids := make([]uint64, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m.deps.physics.Despawn(id)
	}
	m.logger.Info("flight cleared by whiff timeout", logging.Int("projectiles", len(ids)), logging.Int("whiffs", m.whiffs))
	m.deps.metrics.Whiff(m.ctx)
	m.clearProjectilesLocked()
	m.whiffs = 0
}

func (m *Match) stopVolleysLocked() {
	for _, timer := range m.volleyTimers {
		timer.Stop()
	}
	m.volleyTimers = nil
}

// staleLocked reports whether the match was torn down or superseded.
func (m *Match) staleLocked() bool {
	return m.ctx == nil || m.ctx.Err() != nil || m.current() != m.epoch
}

func (m *Match) tankFor(playerID int) *tank.Tank {
	if playerID != 1 && playerID != 2 {
		return nil
	}
	return m.tanks[playerID-1]
}

func (m *Match) emitLocked(event events.Event) {
	event.Epoch = m.epoch
	event.Turn = m.turn
	if _, err := m.deps.events.Publish(event); err != nil {
		m.logger.Warn("publish event failed", logging.String("kind", string(event.Kind)), logging.Error(err))
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func clampFloat(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
