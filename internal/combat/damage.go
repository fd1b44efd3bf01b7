package combat

import (
	"fmt"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/tank"
	"forefront/arena/internal/terrain"
)

// Category is the physics category bit of a contact participant.
type Category uint8

const (
	// CategoryTank marks a player tank body.
	CategoryTank Category = 1
	// CategoryTerrain marks a terrain cell body.
	CategoryTerrain Category = 2
	// CategoryProjectile marks a fired shell.
	CategoryProjectile Category = 4
)

func (c Category) String() string {
	switch c {
	case CategoryTank:
		return "tank"
	case CategoryTerrain:
		return "terrain"
	case CategoryProjectile:
		return "projectile"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Body identifies one side of a physics contact.
type Body struct {
	Category     Category `json:"category"`
	PlayerID     int      `json:"player_id,omitempty"`
	ProjectileID uint64   `json:"projectile_id,omitempty"`
}

// Contact is a single contact event reported by the physics collaborator.
type Contact struct {
	A     Body      `json:"a"`
	B     Body      `json:"b"`
	Point geom.Vec3 `json:"point"`
}

// Normalized orders the pair so the lower category is always A.
func (c Contact) Normalized() Contact {
	if c.B.Category < c.A.Category {
		c.A, c.B = c.B, c.A
	}
	return c
}

// Pair returns the combined category mask of the contact.
func (c Contact) Pair() Category {
	return c.A.Category | c.B.Category
}

// Projectile returns the projectile side of the contact when present.
func (c Contact) Projectile() (Body, bool) {
	return c.side(CategoryProjectile)
}

// Tank returns the tank side of the contact when present.
func (c Contact) Tank() (Body, bool) {
	return c.side(CategoryTank)
}

func (c Contact) side(category Category) (Body, bool) {
	if c.A.Category == category {
		return c.A, true
	}
	if c.B.Category == category {
		return c.B, true
	}
	return Body{}, false
}

// DamageSource enumerates the origins of damage for breakdowns.
type DamageSource string

const (
	// DamageSourceDirect is a projectile striking the tank body.
	DamageSourceDirect DamageSource = "direct"
	// DamageSourceSplash is area damage from a nearby explosion.
	DamageSourceSplash DamageSource = "splash"
)

// EffectKind classifies what a resolved contact did.
type EffectKind string

const (
	// EffectNone means the pair is not of interest.
	EffectNone EffectKind = "none"
	// EffectGrounded records a tank touching terrain.
	EffectGrounded EffectKind = "grounded"
	// EffectTerrainImpact is a projectile exploding on terrain.
	EffectTerrainImpact EffectKind = "terrain_impact"
	// EffectDirectHit is a projectile striking a tank.
	EffectDirectHit EffectKind = "direct_hit"
	// EffectSuppressed is a contact dropped by the self-hit grace window.
	EffectSuppressed EffectKind = "suppressed"
)

// Hit is the damage applied to one tank by a resolved contact.
type Hit struct {
	PlayerID int          `json:"player_id"`
	Amount   int          `json:"amount"`
	Source   DamageSource `json:"source"`
	Health   int          `json:"health"`
	Impulse  geom.Vec3    `json:"impulse"`
}

// Effect collates everything a contact changed.
type Effect struct {
	Kind                EffectKind     `json:"kind"`
	ProjectileID        uint64         `json:"projectile_id,omitempty"`
	DestroyedCells      []terrain.Cell `json:"destroyed_cells,omitempty"`
	Hits                []Hit          `json:"hits,omitempty"`
	ProjectileDestroyed bool           `json:"projectile_destroyed"`
}

// TotalDamage sums the damage across every hit.
func (e Effect) TotalDamage() int {
	total := 0
	for _, hit := range e.Hits {
		total += hit.Amount
	}
	return total
}

// LoggingFields returns structured logging fields describing the resolved contact.
func (e Effect) LoggingFields() []logging.Field {
	fields := make([]logging.Field, 0, len(e.Hits)+4)
	fields = append(fields,
		logging.String("effect", string(e.Kind)),
		logging.Int("cells_destroyed", len(e.DestroyedCells)),
		logging.Int("damage_total", e.TotalDamage()),
	)
	if e.ProjectileID != 0 {
		fields = append(fields, logging.Uint64("projectile_id", e.ProjectileID))
	}
	for _, hit := range e.Hits {
		fields = append(fields, logging.Int(fmt.Sprintf("damage_p%d_%s", hit.PlayerID, hit.Source), hit.Amount))
	}
	return fields
}

// Knockback tunes the impulse applied to damaged tanks.
type Knockback struct {
	Lateral float64
	Upward  float64
}

// DefaultKnockback pushes tanks away from the blast and slightly upwards.
func DefaultKnockback() Knockback {
	return Knockback{Lateral: 2, Upward: 3}
}

// Impulse computes the knockback for a tank at target from a blast at origin.
// Every shot type pushes with the same profile.
func (k Knockback) Impulse(origin, target geom.Vec3) geom.Vec3 {
	//1.- Push sideways away from the blast; dead centre hits push along the facing-neutral +X.
	direction := 1.0
	if target.X < origin.X {
		direction = -1
	}
	return geom.Vec3{X: direction * k.Lateral, Y: k.Upward}
}

// Resolver applies contact effects to the terrain grid and the tanks of one match.
type Resolver struct {
	grid      *terrain.Grid
	tanks     map[int]*tank.Tank
	knockback Knockback
}

// ResolverOption customises a resolver.
type ResolverOption func(*Resolver)

// WithKnockback overrides the knockback profile.
func WithKnockback(k Knockback) ResolverOption {
	return func(r *Resolver) { r.knockback = k }
}

// NewResolver binds a resolver to the grid and tanks it mutates.
func NewResolver(grid *terrain.Grid, tanks []*tank.Tank, opts ...ResolverOption) *Resolver {
	r := &Resolver{grid: grid, tanks: make(map[int]*tank.Tank, len(tanks)), knockback: DefaultKnockback()}
	for _, t := range tanks {
		if t != nil {
			r.tanks[t.PlayerID] = t
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve evaluates one contact. projectile must describe the projectile named
// by the contact; it may be nil for pairs without one. graceActive suppresses
// direct hits on the projectile owner.
func (r *Resolver) Resolve(contact Contact, projectile *ballistics.Projectile, graceActive bool) Effect {
	contact = contact.Normalized()
	switch contact.Pair() {
	case CategoryTank | CategoryTerrain:
		return r.resolveGrounded(contact)
	case CategoryTerrain | CategoryProjectile:
		if projectile == nil {
			return Effect{Kind: EffectNone}
		}
		return r.resolveTerrainImpact(contact.Point, projectile)
	case CategoryTank | CategoryProjectile:
		if projectile == nil {
			return Effect{Kind: EffectNone}
		}
		struck, _ := contact.Tank()
		return r.resolveDirectHit(contact.Point, struck.PlayerID, projectile, graceActive)
	default:
		return Effect{Kind: EffectNone}
	}
}

func (r *Resolver) resolveGrounded(contact Contact) Effect {
	body, _ := contact.Tank()
	if t, ok := r.tanks[body.PlayerID]; ok {
		t.RecordGround(contact.Point)
	}
	return Effect{Kind: EffectGrounded}
}

func (r *Resolver) resolveTerrainImpact(point geom.Vec3, projectile *ballistics.Projectile) Effect {
	effect := Effect{Kind: EffectTerrainImpact, ProjectileID: projectile.ID, ProjectileDestroyed: true}
	//1.- Carve the crater first so presentation receives cells before health changes.
	effect.DestroyedCells = r.grid.ExplodeAt(point, projectile.ExplosionRadius)
	//2.- Splash every tank within half the explosion radius, in seat order.
	for _, id := range []int{1, 2} {
		if hit, ok := r.splash(id, point, projectile); ok {
			effect.Hits = append(effect.Hits, hit)
		}
	}
	return effect
}

func (r *Resolver) resolveDirectHit(point geom.Vec3, struckID int, projectile *ballistics.Projectile, graceActive bool) Effect {
	struck, ok := r.tanks[struckID]
	if !ok {
		return Effect{Kind: EffectNone}
	}
	//1.- The shooter's own shell cannot hurt it while the grace window is open.
	if graceActive && struckID == projectile.Owner {
		return Effect{Kind: EffectSuppressed, ProjectileID: projectile.ID}
	}
	effect := Effect{Kind: EffectDirectHit, ProjectileID: projectile.ID, ProjectileDestroyed: true}

	//2.- Direct hits deal double damage plus knockback.
	amount := projectile.Damage * 2
	health := struck.DecreaseHealth(amount)
	effect.Hits = append(effect.Hits, Hit{
		PlayerID: struckID,
		Amount:   amount,
		Source:   DamageSourceDirect,
		Health:   health,
		Impulse:  r.knockback.Impulse(point, struck.Position),
	})

	//3.- Crater the ground under the struck tank, falling back to its position.
	ground, ok := struck.LastGround()
	if !ok {
		ground = struck.Position
	}
	effect.DestroyedCells = r.grid.ExplodeAt(ground, projectile.ExplosionRadius)

	//4.- The other tank may still be caught in the splash.
	if hit, ok := r.splash(tank.Other(struckID), point, projectile); ok {
		effect.Hits = append(effect.Hits, hit)
	}
	return effect
}

func (r *Resolver) splash(playerID int, point geom.Vec3, projectile *ballistics.Projectile) (Hit, bool) {
	t, ok := r.tanks[playerID]
	if !ok {
		return Hit{}, false
	}
	if geom.PlanarDistance(point, t.Position) >= float64(projectile.ExplosionRadius)/2 {
		return Hit{}, false
	}
	health := t.DecreaseHealth(projectile.Damage)
	return Hit{
		PlayerID: playerID,
		Amount:   projectile.Damage,
		Source:   DamageSourceSplash,
		Health:   health,
		Impulse:  r.knockback.Impulse(point, t.Position),
	}, true
}
