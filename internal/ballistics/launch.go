package ballistics

import (
	"fmt"

	"forefront/arena/internal/geom"
)

// Projectile is a fired shell awaiting contact resolution.
type Projectile struct {
	ID              uint64    `json:"id"`
	Owner           int       `json:"owner"`
	Shot            ShotType  `json:"shot"`
	Position        geom.Vec3 `json:"position"`
	Force           geom.Vec3 `json:"force"`
	ExplosionRadius int       `json:"explosion_radius"`
	Damage          int       `json:"damage"`
	Damping         float64   `json:"damping"`
	VolleyIndex     int       `json:"volley_index"`
}

// LaunchForce converts an aim vector into the clamped base launch force.
func LaunchForce(aim geom.Vec3) geom.Vec3 {
	catalog := Catalog()
	//1.- Scale the drag distance into a force and keep it on the play plane.
	force := aim.Flatten().Scale(catalog.ForceScale)
	//2.- Rescale uniformly so long drags keep their direction but not their reach.
	return geom.ClampMagnitude(force, catalog.MaxLaunchMagnitude())
}

// Launch builds the projectile for one volley slot of the requested shot.
func Launch(id uint64, owner int, origin, aim geom.Vec3, shot ShotType, volleyIndex int) (Projectile, error) {
	catalog := Catalog()
	profile, ok := catalog.Profile(shot)
	if !ok {
		return Projectile{}, fmt.Errorf("unknown shot type %d", shot)
	}
	base := LaunchForce(aim)
	//1.- Apply the shot modifier after the base clamp; lasers intentionally exceed it.
	force := base
	if profile.ForceMultiplier > 0 {
		force = base.Scale(profile.ForceMultiplier)
	}
	//2.- Offset the spawn point along the firing direction to clear the tank hull.
	spawn := origin.Flatten().Add(force.Normalize().Scale(catalog.SpawnOffset))
	return Projectile{
		ID:              id,
		Owner:           owner,
		Shot:            shot,
		Position:        spawn,
		Force:           force,
		ExplosionRadius: profile.ExplosionRadius,
		Damage:          profile.Damage,
		Damping:         catalog.Damping,
		VolleyIndex:     volleyIndex,
	}, nil
}
