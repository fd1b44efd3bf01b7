package ballistics

import "forefront/arena/internal/geom"

// DefaultGravity is the downward acceleration applied to free bodies.
const DefaultGravity = -9.8

// Body is a point mass advanced by the reference integrator.
type Body struct {
	Position geom.Vec3
	Velocity geom.Vec3
	Damping  float64
}

// BodyFromProjectile seeds a body whose initial velocity is the launch impulse on a unit mass.
func BodyFromProjectile(p Projectile) Body {
	return Body{Position: p.Position, Velocity: p.Force, Damping: p.Damping}
}

// Integrate advances the body by one Euler step of gravity and linear damping.
func Integrate(body *Body, gravity, step float64) {
	//1.- Guard against nil bodies or invalid timesteps.
	if body == nil || step <= 0 {
		return
	}
	//2.- Accelerate, then bleed velocity proportionally to the damping coefficient.
	body.Velocity.Y += gravity * step
	if body.Damping > 0 {
		factor := 1 - body.Damping*step
		if factor < 0 {
			factor = 0
		}
		body.Velocity = body.Velocity.Scale(factor)
	}
	//3.- Advance the position and pin the body to the play plane.
	body.Position = body.Position.Add(body.Velocity.Scale(step)).Flatten()
	body.Velocity = body.Velocity.Flatten()
}

// PredictPath samples the trajectory a projectile would follow with no contacts.
func PredictPath(p Projectile, gravity, step float64, samples int) []geom.Vec3 {
	if samples <= 0 || step <= 0 {
		return nil
	}
	body := BodyFromProjectile(p)
	path := make([]geom.Vec3, 0, samples+1)
	path = append(path, body.Position)
	for i := 0; i < samples; i++ {
		Integrate(&body, gravity, step)
		path = append(path, body.Position)
	}
	return path
}
