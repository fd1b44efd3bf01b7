package physics

import (
	"math"
	"sort"
	"sync"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/combat"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/terrain"
)

const (
	// DefaultTankHalfWidth is half the horizontal extent of a tank hull.
	DefaultTankHalfWidth = 0.5
	// DefaultTankHeight is the vertical extent of a tank hull above its base.
	DefaultTankHeight = 0.5
	// DefaultProjectileRadius is the collision radius of a shell.
	DefaultProjectileRadius = 0.1
	// DefaultTankDamping is the lateral velocity bleed applied to grounded tanks.
	DefaultTankDamping = 4.0
)

// ContactHandler receives contacts and tank positions produced by a step.
type ContactHandler interface {
	HandleContact(contact combat.Contact)
	SyncTank(playerID int, position geom.Vec3)
}

type tankBody struct {
	body     ballistics.Body
	grounded bool
	placed   bool
}

type projectileBody struct {
	body     ballistics.Body
	touching map[int]bool
}

// Option configures a World at construction time.
type Option func(*World)

// WithGravity overrides the downward acceleration.
func WithGravity(gravity float64) Option {
	return func(w *World) {
		w.gravity = gravity
	}
}

// WithTankSize overrides the tank hull extents.
func WithTankSize(halfWidth, height float64) Option {
	return func(w *World) {
		if halfWidth > 0 {
			w.tankHalfWidth = halfWidth
		}
		if height > 0 {
			w.tankHeight = height
		}
	}
}

// WithHandler sets the receiver of contacts and tank positions.
func WithHandler(handler ContactHandler) Option {
	return func(w *World) {
		w.handler = handler
	}
}

// World is a headless reference physics engine for the play plane. It moves
// shells under gravity and damping, settles tanks onto the terrain and reports
// contacts to its handler outside its own lock.
type World struct {
	mu sync.Mutex

	gravity          float64
	tankHalfWidth    float64
	tankHeight       float64
	projectileRadius float64
	maxTankSpeed     float64
	grid             *terrain.Grid
	tanks            map[int]*tankBody
	projectiles      map[uint64]*projectileBody
	handler          ContactHandler
	steps            uint64
}

// NewWorld builds an empty world. Terrain arrives through LoadTerrain.
func NewWorld(opts ...Option) *World {
	w := &World{
		gravity:          ballistics.DefaultGravity,
		tankHalfWidth:    DefaultTankHalfWidth,
		tankHeight:       DefaultTankHeight,
		projectileRadius: DefaultProjectileRadius,
		maxTankSpeed:     DefaultMaxTankSpeed,
		tanks:            make(map[int]*tankBody),
		projectiles:      make(map[uint64]*projectileBody),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// SetHandler swaps the contact receiver. Hosts use it to break the
// construction cycle between the world and the match host.
func (w *World) SetHandler(handler ContactHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// LoadTerrain installs a new battlefield and forgets every body.
func (w *World) LoadTerrain(grid *terrain.Grid) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.grid = grid
	w.tanks = make(map[int]*tankBody)
	w.projectiles = make(map[uint64]*projectileBody)
}

// PlaceTank teleports a tank and lets it settle from there.
func (w *World) PlaceTank(playerID int, position geom.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tanks[playerID] = &tankBody{
		body:   ballistics.Body{Position: position.Flatten(), Damping: DefaultTankDamping},
		placed: true,
	}
}

// Spawn adds a shell at its launch position with its launch impulse as velocity.
func (w *World) Spawn(projectile ballistics.Projectile) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.projectiles[projectile.ID] = &projectileBody{
		body:     ballistics.BodyFromProjectile(projectile),
		touching: make(map[int]bool),
	}
}

// Despawn removes one shell.
func (w *World) Despawn(projectileID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.projectiles, projectileID)
}

// Clear removes every shell.
func (w *World) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.projectiles = make(map[uint64]*projectileBody)
}

// ApplyImpulse adds a velocity change to a tank and lifts it off the ground.
func (w *World) ApplyImpulse(playerID int, impulse geom.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tanks[playerID]
	if !ok {
		return
	}
	t.body.Velocity = t.body.Velocity.Add(impulse.Flatten())
	t.grounded = false
}

// Projectiles returns the live shell positions keyed by id.
func (w *World) Projectiles() map[uint64]geom.Vec3 {
	w.mu.Lock()
	defer w.mu.Unlock()
	positions := make(map[uint64]geom.Vec3, len(w.projectiles))
	for id, p := range w.projectiles {
		positions[id] = p.body.Position
	}
	return positions
}

// Tank returns the physics position of a tank.
func (w *World) Tank(playerID int) (geom.Vec3, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tanks[playerID]
	if !ok {
		return geom.Vec3{}, false
	}
	return t.body.Position, true
}

// Steps reports how many steps the world has advanced.
func (w *World) Steps() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

type tankSync struct {
	playerID int
	position geom.Vec3
}

// Step advances every body by dt seconds and then reports contacts.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	w.mu.Lock()
	if w.grid == nil {
		w.mu.Unlock()
		return
	}
	w.steps++
	syncs, contacts := w.stepTanksLocked(dt)
	contacts = append(contacts, w.stepProjectilesLocked(dt)...)
	handler := w.handler
	w.mu.Unlock()

	//1.- Dispatch outside the lock so the handler may call back into the world.
	if handler == nil {
		return
	}
	for _, update := range syncs {
		handler.SyncTank(update.playerID, update.position)
	}
	for _, contact := range contacts {
		handler.HandleContact(contact)
	}
}

func (w *World) stepTanksLocked(dt float64) ([]tankSync, []combat.Contact) {
	ids := w.sortedTankIDs()
	syncs := make([]tankSync, 0, len(ids))
	var landings []combat.Contact
	minBound, maxBound := w.grid.Bounds()
	for _, id := range ids {
		t := w.tanks[id]
		before := t.body.Position
		surface, _ := w.grid.SurfaceY(t.body.Position.X)

		//1.- Grounded tanks stay put unless the ground under them was carved away.
		if t.grounded && surface >= t.body.Position.Y-1e-9 {
			t.body.Position.Y = surface
			t.body.Velocity = geom.Vec3{}
			continue
		}
		t.grounded = false
		integrateTank(&t.body, w.gravity, dt, w.maxTankSpeed)
		t.body.Position.X = clamp(t.body.Position.X, minBound.X, maxBound.X)

		//2.- Landing snaps onto the surface and is fed back as a ground contact.
		surface, _ = w.grid.SurfaceY(t.body.Position.X)
		if t.body.Position.Y <= surface {
			t.body.Position.Y = surface
			t.body.Velocity = geom.Vec3{}
			t.grounded = true
			landings = append(landings, combat.Contact{
				A:     combat.Body{Category: combat.CategoryTerrain},
				B:     combat.Body{Category: combat.CategoryTank, PlayerID: id},
				Point: t.body.Position,
			})
		}
		if t.placed || t.body.Position != before {
			t.placed = false
			syncs = append(syncs, tankSync{playerID: id, position: t.body.Position})
		}
	}
	return syncs, landings
}

func (w *World) stepProjectilesLocked(dt float64) []combat.Contact {
	ids := make([]uint64, 0, len(w.projectiles))
	for id := range w.projectiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	minBound, maxBound := w.grid.Bounds()
	margin := w.grid.CellSize()
	var contacts []combat.Contact
	for _, id := range ids {
		p := w.projectiles[id]
		ballistics.Integrate(&p.body, w.gravity, dt)
		position := p.body.Position
		shell := combat.Body{Category: combat.CategoryProjectile, ProjectileID: id}

		//1.- Shells leaving the sides or the bottom vanish without a contact.
		if position.X < minBound.X-margin || position.X > maxBound.X+margin || position.Y < minBound.Y-margin {
			delete(w.projectiles, id)
			continue
		}

		//2.- Tank overlap wins over terrain; each tank is reported once per entry.
		hitTank := false
		for _, playerID := range w.sortedTankIDs() {
			overlapping := w.overlapsTank(position, w.tanks[playerID].body.Position)
			if overlapping && !p.touching[playerID] {
				contacts = append(contacts, combat.Contact{
					A:     shell,
					B:     combat.Body{Category: combat.CategoryTank, PlayerID: playerID},
					Point: position,
				})
				hitTank = true
			}
			p.touching[playerID] = overlapping
		}
		if hitTank {
			continue
		}

		//3.- Entering a present cell is a terrain impact.
		if cell, ok := w.grid.CellAt(position); ok && w.grid.IsPresent(cell.Col, cell.Row) {
			contacts = append(contacts, combat.Contact{
				A:     combat.Body{Category: combat.CategoryTerrain},
				B:     shell,
				Point: position,
			})
		}
	}

	return contacts
}

func (w *World) overlapsTank(point, base geom.Vec3) bool {
	r := w.projectileRadius
	if math.Abs(point.X-base.X) > w.tankHalfWidth+r {
		return false
	}
	return point.Y >= base.Y-r && point.Y <= base.Y+w.tankHeight+r
}

func (w *World) sortedTankIDs() []int {
	ids := make([]int, 0, len(w.tanks))
	for id := range w.tanks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
