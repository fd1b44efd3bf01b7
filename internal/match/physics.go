package match

import (
	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/terrain"
)

// PhysicsBridge is the physics collaborator driven by a match. Every method is
// called with the match lock held, so implementations must never call back into
// the match synchronously; contacts are delivered later through HandleContact.
type PhysicsBridge interface {
	LoadTerrain(grid *terrain.Grid)
	PlaceTank(playerID int, position geom.Vec3)
	Spawn(projectile ballistics.Projectile)
	Despawn(projectileID uint64)
	Clear()
	ApplyImpulse(playerID int, impulse geom.Vec3)
}

type nopPhysics struct{}

func (nopPhysics) LoadTerrain(*terrain.Grid) {}
func (nopPhysics) PlaceTank(int, geom.Vec3) {}
func (nopPhysics) Spawn(ballistics.Projectile) {}
func (nopPhysics) Despawn(uint64) {}
func (nopPhysics) Clear() {}
func (nopPhysics) ApplyImpulse(int, geom.Vec3) {}
