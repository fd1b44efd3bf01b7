package physics

import (
	"math"
	"sync"
	"testing"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/combat"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/terrain"
)

const testStep = 1.0 / 60.0

type recordingHandler struct {
	mu       sync.Mutex
	world    *World
	contacts []combat.Contact
	synced   map[int]geom.Vec3
}

func (h *recordingHandler) HandleContact(contact combat.Contact) {
	h.mu.Lock()
	h.contacts = append(h.contacts, contact)
	h.mu.Unlock()
	//1.- Despawning from the callback mirrors what the match does on impact.
	if shell, ok := contact.Normalized().Projectile(); ok && h.world != nil {
		h.world.Despawn(shell.ProjectileID)
	}
}

func (h *recordingHandler) SyncTank(playerID int, position geom.Vec3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.synced == nil {
		h.synced = make(map[int]geom.Vec3)
	}
	h.synced[playerID] = position
}

func (h *recordingHandler) pairs(pair combat.Category) []combat.Contact {
	h.mu.Lock()
	defer h.mu.Unlock()
	var matched []combat.Contact
	for _, c := range h.contacts {
		if c.Pair() == pair {
			matched = append(matched, c)
		}
	}
	return matched
}

func newTestWorld(t *testing.T, opts ...Option) (*World, *recordingHandler, *terrain.Grid) {
	t.Helper()
	//1.- Flat ground whose top face sits at Y=9.5.
	grid, err := terrain.NewFlatGrid(40, 20, 1, 10)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	handler := &recordingHandler{}
	world := NewWorld(append([]Option{WithHandler(handler)}, opts...)...)
	handler.world = world
	world.LoadTerrain(grid)
	return world, handler, grid
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.Step(testStep)
	}
}

func TestShellFallsIntoTerrain(t *testing.T) {
	world, handler, _ := newTestWorld(t)
	world.Spawn(ballistics.Projectile{ID: 1, Position: geom.Vec3{X: 10, Y: 15}})
	stepN(world, 120)

	impacts := handler.pairs(combat.CategoryTerrain | combat.CategoryProjectile)
	if len(impacts) != 1 {
		t.Fatalf("expected one terrain impact, got %d", len(impacts))
	}
	if y := impacts[0].Point.Y; y > 9.5 || y < 8.5 {
		t.Fatalf("impact point %.2f should sit just inside the surface", y)
	}
	if len(world.Projectiles()) != 0 {
		t.Fatalf("despawned shell still tracked")
	}
}

func TestShellLeavingLevelVanishesSilently(t *testing.T) {
	world, handler, _ := newTestWorld(t, WithGravity(0))
	world.Spawn(ballistics.Projectile{ID: 2, Position: geom.Vec3{X: 38, Y: 15}, Force: geom.Vec3{X: 60}})
	stepN(world, 30)
	if len(world.Projectiles()) != 0 {
		t.Fatalf("expected out-of-bounds shell to be removed")
	}
	//1.- No contact is reported; the match times the flight out instead.
	if got := handler.pairs(combat.CategoryTerrain | combat.CategoryProjectile); len(got) != 0 {
		t.Fatalf("expected no contacts, got %v", got)
	}
}

func TestShellHitsTankOnce(t *testing.T) {
	world, handler, _ := newTestWorld(t, WithGravity(0))
	world.PlaceTank(1, geom.Vec3{X: 20, Y: 9.5})
	handler.world = nil
	world.Spawn(ballistics.Projectile{ID: 3, Position: geom.Vec3{X: 18, Y: 9.8}, Force: geom.Vec3{X: 6}})
	stepN(world, 30)

	hits := handler.pairs(combat.CategoryTank | combat.CategoryProjectile)
	if len(hits) != 1 {
		t.Fatalf("expected a single tank contact while overlapping, got %d", len(hits))
	}
	if tk, ok := hits[0].Normalized().Tank(); !ok || tk.PlayerID != 1 {
		t.Fatalf("expected player 1 struck, got %+v", hits[0])
	}
}

func TestTankSettlesAndReportsGround(t *testing.T) {
	world, handler, _ := newTestWorld(t)
	world.PlaceTank(2, geom.Vec3{X: 5, Y: 12})
	stepN(world, 120)

	position, ok := world.Tank(2)
	if !ok || math.Abs(position.Y-9.5) > 1e-9 {
		t.Fatalf("expected tank resting at 9.5, got %+v", position)
	}
	if got := handler.pairs(combat.CategoryTerrain | combat.CategoryTank); len(got) != 1 {
		t.Fatalf("expected one landing contact, got %d", len(got))
	}
	handler.mu.Lock()
	synced := handler.synced[2]
	handler.mu.Unlock()
	if synced != position {
		t.Fatalf("expected synced position %+v, got %+v", position, synced)
	}
}

func TestCraterDropsTank(t *testing.T) {
	world, _, grid := newTestWorld(t)
	world.PlaceTank(1, geom.Vec3{X: 20, Y: 9.5})
	stepN(world, 5)
	//1.- Carve the ground away and the tank falls into the hole.
	grid.ExplodeAt(geom.Vec3{X: 20, Y: 9.5}, 6)
	stepN(world, 120)
	position, _ := world.Tank(1)
	if position.Y >= 9.5 {
		t.Fatalf("expected tank to fall into the crater, still at %.2f", position.Y)
	}
}

func TestImpulseThrowsTank(t *testing.T) {
	world, _, _ := newTestWorld(t)
	world.PlaceTank(1, geom.Vec3{X: 20, Y: 9.5})
	stepN(world, 5)
	world.ApplyImpulse(1, geom.Vec3{X: 2, Y: 3})
	world.Step(testStep)
	position, _ := world.Tank(1)
	if position.X <= 20 || position.Y <= 9.5 {
		t.Fatalf("expected tank thrown up and right, got %+v", position)
	}
	stepN(world, 240)
	position, _ = world.Tank(1)
	if math.Abs(position.Y-9.5) > 1e-9 {
		t.Fatalf("expected tank to land again, got %+v", position)
	}
}

func TestClearAndLoadForgetBodies(t *testing.T) {
	world, _, grid := newTestWorld(t)
	world.Spawn(ballistics.Projectile{ID: 4, Position: geom.Vec3{X: 10, Y: 15}})
	world.Clear()
	if len(world.Projectiles()) != 0 {
		t.Fatalf("clear left shells behind")
	}
	world.PlaceTank(1, geom.Vec3{X: 3, Y: 9.5})
	world.LoadTerrain(grid)
	if _, ok := world.Tank(1); ok {
		t.Fatalf("load terrain should forget tanks")
	}
}

func TestStepWithoutTerrainIsIgnored(t *testing.T) {
	world := NewWorld()
	world.Step(testStep)
	if world.Steps() != 0 {
		t.Fatalf("expected no steps without terrain")
	}
}
