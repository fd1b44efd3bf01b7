package physics

import (
	"math"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/geom"
)

// DefaultMaxTankSpeed caps how fast knockback can throw a tank.
const DefaultMaxTankSpeed = 20.0

// wrapAngleDeg normalizes an angle to the [-180, 180) range.
func wrapAngleDeg(angle float64) float64 {
	wrapped := math.Mod(angle+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}

// integrateTank advances an airborne tank by one step. Gravity pulls on the
// vertical axis while damping only bleeds lateral speed, so a knocked tank
// drifts to a stop without floating.
func integrateTank(body *ballistics.Body, gravity, step, maxSpeed float64) {
	//1.- Skip integration when inputs are missing or invalid.
	if body == nil || step <= 0 {
		return
	}
	body.Velocity.Y += gravity * step
	if body.Damping > 0 {
		factor := 1 - body.Damping*step
		if factor < 0 {
			factor = 0
		}
		body.Velocity.X *= factor
	}
	//2.- Clamp the velocity so a stacked impulse cannot tunnel through terrain.
	if maxSpeed > 0 {
		body.Velocity = geom.ClampMagnitude(body.Velocity, maxSpeed)
	}
	//3.- Advance the position on the play plane.
	body.Position = body.Position.Add(body.Velocity.Scale(step)).Flatten()
}
