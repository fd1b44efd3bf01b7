package geom

import "math"

// Vec3 is the world-space vector shared by the simulation packages. X runs
// horizontally, Y is up and Z is the locked depth plane.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component wise sum of two vectors.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns the difference between two vectors.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies the vector by a scalar.
func (v Vec3) Scale(scalar float64) Vec3 {
	return Vec3{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Dot returns the scalar dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length computes the Euclidean norm of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns a unit length copy, or the zero vector when v has no length.
func (v Vec3) Normalize() Vec3 {
	length := v.Length()
	if length < 1e-12 {
		return Vec3{}
	}
	inv := 1.0 / length
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}

// Flatten drops the depth component so bodies stay on the play plane.
func (v Vec3) Flatten() Vec3 {
	return Vec3{X: v.X, Y: v.Y}
}

// PlanarDistance measures the separation of two points on the X/Y play plane.
func PlanarDistance(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// ClampMagnitude rescales v uniformly so its length does not exceed limit.
func ClampMagnitude(v Vec3, limit float64) Vec3 {
	//1.- Skip clamping when the limit disables the guard.
	if !(limit > 0) {
		return v
	}
	magnitudeSq := v.Dot(v)
	if magnitudeSq == 0 || magnitudeSq <= limit*limit {
		return v
	}
	//2.- Scale each axis by the same factor so direction is preserved.
	return v.Scale(limit / math.Sqrt(magnitudeSq))
}
