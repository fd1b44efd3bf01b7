package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/combat"
	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/stats"
	"forefront/arena/internal/tank"
	"forefront/arena/internal/terrain"
)

type recordingPhysics struct {
	mu        sync.Mutex
	spawned   []ballistics.Projectile
	despawned []uint64
	clears    int
	impulses  map[int]geom.Vec3
	placed    map[int]geom.Vec3
	loads     int
}

func newRecordingPhysics() *recordingPhysics {
	return &recordingPhysics{impulses: make(map[int]geom.Vec3), placed: make(map[int]geom.Vec3)}
}

func (p *recordingPhysics) LoadTerrain(*terrain.Grid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
}

func (p *recordingPhysics) PlaceTank(playerID int, position geom.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed[playerID] = position
}

func (p *recordingPhysics) Spawn(projectile ballistics.Projectile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawned = append(p.spawned, projectile)
}

func (p *recordingPhysics) Despawn(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.despawned = append(p.despawned, id)
}

func (p *recordingPhysics) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *recordingPhysics) ApplyImpulse(playerID int, impulse geom.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.impulses[playerID] = impulse
}

func (p *recordingPhysics) Spawned() []ballistics.Projectile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ballistics.Projectile(nil), p.spawned...)
}

func (p *recordingPhysics) Despawned() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.despawned...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	match   *Match
	physics *recordingPhysics
	stream  *events.Stream
	store   *stats.MemoryStore
	clock   *manualClock
}

func fastRules() Rules {
	rules := DefaultRules()
	rules.TurnSeconds = 100
	rules.Tick = 10 * time.Millisecond
	rules.WhiffThreshold = 3
	rules.HandoffDelay = 10 * time.Millisecond
	rules.MatchOverNotice = 10 * time.Millisecond
	rules.VolleyStagger = 5 * time.Millisecond
	return rules
}

func newHarness(t *testing.T, rules Rules) *harness {
	t.Helper()
	//1.- Flat ground whose top face sits at Y=9.5 keeps impact points predictable.
	grid, err := terrain.NewFlatGrid(40, 20, 1, 10)
	if err != nil {
		t.Fatalf("flat grid: %v", err)
	}
	h := &harness{
		physics: newRecordingPhysics(),
		stream:  events.NewStream(events.Config{Retain: 512}),
		store:   stats.NewMemoryStore(),
		clock:   &manualClock{now: time.Unix(1_700_000_000, 0)},
	}
	deps := dependencies{
		physics: h.physics,
		events:  h.stream,
		stats:   h.store,
		logger:  logging.NewTestLogger(),
		now:     h.clock.Now,
	}
	//2.- Start the match under a fixed epoch so the timer goroutine stays live.
	m, err := newMatch(1, func() uint64 { return 1 }, rules, grid, deps)
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	m.start(context.Background())
	t.Cleanup(m.stop)
	h.match = m
	return h
}

func (h *harness) kinds(kind events.Kind) []events.Event {
	var matched []events.Event
	for _, event := range h.stream.Since(0) {
		if event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func terrainContact(id uint64, point geom.Vec3) combat.Contact {
	return combat.Contact{
		A:     combat.Body{Category: combat.CategoryTerrain},
		B:     combat.Body{Category: combat.CategoryProjectile, ProjectileID: id},
		Point: point,
	}
}

func tankContact(id uint64, playerID int, point geom.Vec3) combat.Contact {
	return combat.Contact{
		A:     combat.Body{Category: combat.CategoryProjectile, ProjectileID: id},
		B:     combat.Body{Category: combat.CategoryTank, PlayerID: playerID},
		Point: point,
	}
}

func tankOf(t *testing.T, snapshot TurnSnapshot, playerID int) tank.Tank {
	t.Helper()
	tk, ok := snapshot.Tank(playerID)
	if !ok {
		t.Fatalf("snapshot missing tank %d", playerID)
	}
	return tk
}

func fireRight(m *Match) bool {
	return m.Fire(geom.Vec3{}, geom.Vec3{X: 2, Y: 2}, ballistics.ShotLob)
}

func TestStartOpensFirstTurn(t *testing.T) {
	h := newHarness(t, fastRules())
	snapshot := h.match.Snapshot()
	//1.- Player 1 opens with one shell, full budgets and the whole countdown.
	if snapshot.ActivePlayer != 1 || snapshot.Ammo != 1 || snapshot.Turn != 1 {
		t.Fatalf("unexpected opening state: %+v", snapshot)
	}
	if snapshot.Phase != PhaseAwaitingFire {
		t.Fatalf("expected awaiting fire, got %s", snapshot.Phase)
	}
	if len(snapshot.Tanks) != 2 || snapshot.Tanks[0].Position.X >= snapshot.Tanks[1].Position.X {
		t.Fatalf("expected player 1 left of player 2, got %+v", snapshot.Tanks)
	}
	if got := snapshot.Tanks[0].Position.Y; got != 9.5 {
		t.Fatalf("expected tank on the surface at 9.5, got %v", got)
	}
	//2.- The presentation layer saw the start and the first turn.
	if len(h.kinds(events.KindMatchStarted)) != 1 || len(h.kinds(events.KindTurnChanged)) != 1 {
		t.Fatalf("expected start and turn events")
	}
}

func TestLethalSplashEndsMatchAndRecordsOneWin(t *testing.T) {
	h := newHarness(t, fastRules())
	h.match.mu.Lock()
	h.match.tanks[1].Health = 5
	target := h.match.tanks[1].Position
	h.match.mu.Unlock()

	//1.- Player 1 lands a lob right under player 2.
	if !fireRight(h.match) {
		t.Fatalf("expected fire to be accepted")
	}
	shot := h.physics.Spawned()[0]
	h.match.HandleContact(terrainContact(shot.ID, target))

	//2.- The match ends immediately with player 1 credited.
	snapshot := h.match.Snapshot()
	if !snapshot.Over || snapshot.Winner != 1 || snapshot.Phase != PhaseMatchOver {
		t.Fatalf("expected player 1 win, got %+v", snapshot)
	}
	if health := tankOf(t, snapshot, 2).Health; health != 0 {
		t.Fatalf("expected health floored at 0, got %d", health)
	}
	select {
	case <-h.match.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timer goroutine did not exit")
	}

	//3.- Exactly one win lands in the store and the UI is sent back to start.
	tally, err := h.store.Wins(context.Background())
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if tally.Player1Wins != 1 || tally.Player2Wins != 0 {
		t.Fatalf("expected one player 1 win, got %+v", tally)
	}
	over := h.kinds(events.KindMatchOver)
	if len(over) != 1 || over[0].WinnerID != 1 {
		t.Fatalf("expected one match over event, got %+v", over)
	}
	if len(h.kinds(events.KindReturnToStart)) != 1 {
		t.Fatalf("expected return to start after the notice")
	}
	//4.- Further contacts and commands are ignored once the match is over.
	h.match.HandleContact(terrainContact(shot.ID, target))
	if fireRight(h.match) {
		t.Fatalf("fire after match over should be rejected")
	}
}

func TestSecondFireIsIgnored(t *testing.T) {
	h := newHarness(t, fastRules())
	if !fireRight(h.match) {
		t.Fatalf("expected first fire to be accepted")
	}
	//1.- No ammo and a live shell both block the second shot.
	if fireRight(h.match) {
		t.Fatalf("expected second fire to be rejected")
	}
	if got := len(h.physics.Spawned()); got != 1 {
		t.Fatalf("expected one spawned projectile, got %d", got)
	}
	snapshot := h.match.Snapshot()
	if snapshot.Ammo != 0 || !snapshot.InFlight || snapshot.Phase != PhaseProjectileInFlight {
		t.Fatalf("unexpected flight state: %+v", snapshot)
	}
}

func TestLandingSettlesFlight(t *testing.T) {
	h := newHarness(t, fastRules())
	fireRight(h.match)
	shot := h.physics.Spawned()[0]
	//1.- A far-away terrain impact carves the ground and ends the flight.
	h.match.HandleContact(terrainContact(shot.ID, geom.Vec3{X: 20, Y: 9.5}))
	snapshot := h.match.Snapshot()
	if snapshot.InFlight || snapshot.Phase != PhaseCountdown {
		t.Fatalf("expected settled countdown, got %+v", snapshot)
	}
	changed := h.kinds(events.KindTerrainChanged)
	if len(changed) != 1 || len(changed[0].Cells) == 0 {
		t.Fatalf("expected a terrain change event, got %+v", changed)
	}
	if got := h.physics.Despawned(); len(got) != 1 || got[0] != shot.ID {
		t.Fatalf("expected projectile despawn, got %v", got)
	}
}

func TestWhiffClearsFlight(t *testing.T) {
	h := newHarness(t, fastRules())
	fireRight(h.match)
	shot := h.physics.Spawned()[0]
	//1.- Without any contact the timer force-ends the flight after the threshold.
	waitFor(t, "whiff timeout", func() bool { return !h.match.Snapshot().InFlight })
	if got := h.physics.Despawned(); len(got) != 1 || got[0] != shot.ID {
		t.Fatalf("expected whiffed projectile despawned, got %v", got)
	}
	if len(h.kinds(events.KindProjectilesCleared)) == 0 {
		t.Fatalf("expected projectiles cleared event")
	}
	//2.- The countdown keeps going for the same player.
	snapshot := h.match.Snapshot()
	if snapshot.ActivePlayer != 1 || snapshot.Whiffs != 0 || snapshot.SecondsLeft >= 100 {
		t.Fatalf("unexpected state after whiff: %+v", snapshot)
	}
	//3.- A late contact from the discarded shell does nothing.
	h.match.HandleContact(terrainContact(shot.ID, geom.Vec3{X: 20, Y: 9.5}))
	if len(h.kinds(events.KindTerrainChanged)) != 0 {
		t.Fatalf("expected stale contact to be ignored")
	}
}

func TestHandOffResetsTurn(t *testing.T) {
	rules := fastRules()
	h := newHarness(t, rules)
	//1.- Spend budget and fire so the hand-off has something to reset.
	if !h.match.MoveRight(1) || !h.match.BoostUp(1) {
		t.Fatalf("expected movement to be accepted")
	}
	fireRight(h.match)
	shot := h.physics.Spawned()[0]
	h.match.HandleContact(terrainContact(shot.ID, geom.Vec3{X: 20, Y: 9.5}))
	h.match.EndTurnNow()

	waitFor(t, "hand-off", func() bool {
		s := h.match.Snapshot()
		return s.ActivePlayer == 2 && s.MovementEnabled
	})
	//2.- Ammo, flight and both budgets are back to their defaults.
	snapshot := h.match.Snapshot()
	if snapshot.Ammo != 1 || snapshot.InFlight || snapshot.TurnEnded || snapshot.Turn != 2 {
		t.Fatalf("unexpected state after hand-off: %+v", snapshot)
	}
	for _, tk := range snapshot.Tanks {
		if tk.Budgets() != rules.Budgets {
			t.Fatalf("tank %d budgets not reset: %+v", tk.PlayerID, tk.Budgets())
		}
	}
	//3.- Player 1 can no longer act; player 2 can.
	if h.match.MoveLeft(1) {
		t.Fatalf("inactive player moved")
	}
	if !h.match.MoveLeft(2) {
		t.Fatalf("active player could not move")
	}
}

func TestMovementFrozenDuringFlight(t *testing.T) {
	rules := fastRules()
	rules.WhiffThreshold = 100
	h := newHarness(t, rules)
	before := len(h.kinds(events.KindTankMoved))
	fireRight(h.match)
	//1.- The shooter cannot drive or boost while its shell is live.
	if h.match.MoveRight(1) || h.match.MoveLeft(1) || h.match.BoostUp(1) {
		t.Fatalf("movement accepted during flight")
	}
	if got := len(h.kinds(events.KindTankMoved)) - before; got != 0 {
		t.Fatalf("expected no move events during flight, got %d", got)
	}
	//2.- Once the shell lands the remaining budget is usable again.
	shot := h.physics.Spawned()[0]
	h.match.HandleContact(terrainContact(shot.ID, geom.Vec3{X: 20, Y: 9.5}))
	if !h.match.MoveRight(1) {
		t.Fatalf("expected movement after landing")
	}
}

func TestEndTurnNowHandsOff(t *testing.T) {
	h := newHarness(t, fastRules())
	if !h.match.EndTurnNow() {
		t.Fatalf("expected end turn to be accepted")
	}
	waitFor(t, "hand-off", func() bool { return h.match.Snapshot().ActivePlayer == 2 })
	if h.match.Snapshot().TurnEnded {
		t.Fatalf("turn ended flag should clear on hand-off")
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	h := newHarness(t, fastRules())
	//1.- Resume without a pending pause is a no-op rather than a hang.
	if h.match.Resume() {
		t.Fatalf("resume without pause should be ignored")
	}
	if !h.match.Pause() {
		t.Fatalf("expected pause to be accepted")
	}
	frozen := h.match.Snapshot().SecondsLeft
	time.Sleep(60 * time.Millisecond)
	snapshot := h.match.Snapshot()
	if snapshot.SecondsLeft != frozen || !snapshot.Paused {
		t.Fatalf("countdown moved while paused: %d -> %d", frozen, snapshot.SecondsLeft)
	}
	//2.- Paused matches reject gameplay commands.
	if fireRight(h.match) || h.match.MoveRight(1) {
		t.Fatalf("commands accepted while paused")
	}
	//3.- One resume releases the timer; a second is ignored.
	if !h.match.Resume() || h.match.Resume() {
		t.Fatalf("expected exactly one resume to be accepted")
	}
	waitFor(t, "countdown to resume", func() bool { return h.match.Snapshot().SecondsLeft < frozen })
}

func TestSelfHitGraceWindow(t *testing.T) {
	h := newHarness(t, fastRules())
	fireRight(h.match)
	shot := h.physics.Spawned()[0]
	own := tankOf(t, h.match.Snapshot(), 1).Position

	//1.- The shooter is shielded right after firing.
	h.match.HandleContact(tankContact(shot.ID, 1, own))
	if health := tankOf(t, h.match.Snapshot(), 1).Health; health != 100 {
		t.Fatalf("expected grace to protect the shooter, got %d", health)
	}
	//2.- Once the window passes the shell counts as a direct hit.
	h.clock.Advance(time.Second)
	h.match.HandleContact(tankContact(shot.ID, 1, own))
	if health := tankOf(t, h.match.Snapshot(), 1).Health; health != 80 {
		t.Fatalf("expected direct hit for 20, got %d", health)
	}
	if len(h.kinds(events.KindTankHealthChanged)) == 0 {
		t.Fatalf("expected a health change event")
	}
}

func TestTripleVolleyLaunchesThreeShells(t *testing.T) {
	rules := fastRules()
	rules.WhiffThreshold = 100
	h := newHarness(t, rules)
	if !h.match.Fire(geom.Vec3{}, geom.Vec3{X: 2, Y: 2}, ballistics.ShotTriple) {
		t.Fatalf("expected triple to fire")
	}
	waitFor(t, "volley", func() bool { return len(h.physics.Spawned()) == 3 })
	seen := map[int]bool{}
	for _, p := range h.physics.Spawned() {
		seen[p.VolleyIndex] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected distinct volley indexes, got %v", seen)
	}
	//1.- The flight only settles once every shell has landed.
	for i, p := range h.physics.Spawned() {
		h.match.HandleContact(terrainContact(p.ID, geom.Vec3{X: 20, Y: 9.5}))
		if inFlight := h.match.Snapshot().InFlight; inFlight != (i < 2) {
			t.Fatalf("after %d landings expected in flight %v", i+1, i < 2)
		}
	}
}

func TestTripleFollowUpGetsFullWhiffWindow(t *testing.T) {
	rules := fastRules()
	rules.Tick = time.Hour
	rules.WhiffThreshold = 5
	rules.VolleyStagger = 30 * time.Millisecond
	h := newHarness(t, rules)
	if !h.match.Fire(geom.Vec3{}, geom.Vec3{X: 2, Y: 2}, ballistics.ShotTriple) {
		t.Fatalf("expected triple to fire")
	}
	//1.- Ticks spent on the first shell must not count against the later ones.
	for i := 0; i < rules.WhiffThreshold-2; i++ {
		h.match.advance(true)
	}
	waitFor(t, "volley", func() bool { return len(h.physics.Spawned()) == 3 })
	spawned := h.physics.Spawned()
	for _, p := range spawned[:2] {
		h.match.HandleContact(terrainContact(p.ID, geom.Vec3{X: 20, Y: 9.5}))
	}
	last := spawned[2]
	for i := 0; i < rules.WhiffThreshold-1; i++ {
		h.match.advance(true)
	}
	if !h.match.Snapshot().InFlight {
		t.Fatalf("third shell whiffed before its own threshold")
	}
	for _, id := range h.physics.Despawned() {
		if id == last.ID {
			t.Fatalf("third shell despawned early")
		}
	}
	//2.- It still lands normally and settles the flight.
	h.match.HandleContact(terrainContact(last.ID, geom.Vec3{X: 20, Y: 9.5}))
	if snapshot := h.match.Snapshot(); snapshot.InFlight || snapshot.Whiffs != 0 {
		t.Fatalf("expected flight settled by landing, got %+v", snapshot)
	}
}

func TestAimPreviewPredictsPath(t *testing.T) {
	h := newHarness(t, fastRules())
	path := h.match.AimPreview(geom.Vec3{}, geom.Vec3{X: 2, Y: 2})
	if want := fastRules().PreviewSamples + 1; len(path) != want {
		t.Fatalf("expected %d samples, got %d", want, len(path))
	}
	if len(h.match.Snapshot().Preview) != len(path) {
		t.Fatalf("preview not stored on the turn")
	}
}

func TestSyncTankEmitsOnlyMeaningfulMoves(t *testing.T) {
	h := newHarness(t, fastRules())
	before := len(h.kinds(events.KindTankMoved))
	position := tankOf(t, h.match.Snapshot(), 1).Position
	h.match.SyncTank(1, position.Add(geom.Vec3{X: 0.01}))
	if got := len(h.kinds(events.KindTankMoved)); got != before {
		t.Fatalf("jitter should not emit moves")
	}
	h.match.SyncTank(1, position.Add(geom.Vec3{X: 1}))
	if got := len(h.kinds(events.KindTankMoved)); got != before+1 {
		t.Fatalf("expected one move event, got %d", got-before)
	}
	h.match.SyncTank(7, position)
}
