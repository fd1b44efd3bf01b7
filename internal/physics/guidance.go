package physics

import (
	"math"

	"forefront/arena/internal/geom"
)

// Guide is a polyline, usually a predicted trajectory, used to orient a barrel.
type Guide struct {
	nodes []geom.Vec3
}

// NewGuide copies nodes for use during alignment. It returns nil for fewer than two nodes.
func NewGuide(nodes []geom.Vec3) *Guide {
	if len(nodes) < 2 {
		return nil
	}
	copied := make([]geom.Vec3, len(nodes))
	copy(copied, nodes)
	return &Guide{nodes: copied}
}

// tangentFor returns the unit tangent of the segment closest to position.
func (g *Guide) tangentFor(position geom.Vec3) (geom.Vec3, bool) {
	if g == nil || len(g.nodes) < 2 {
		return geom.Vec3{}, false
	}
	bestDistance := math.MaxFloat64
	bestTangent := geom.Vec3{}
	//1.- Project onto each segment and keep the closest one.
	for idx := 0; idx < len(g.nodes)-1; idx++ {
		a, b := g.nodes[idx], g.nodes[idx+1]
		ab := b.Sub(a)
		lengthSq := ab.Dot(ab)
		if lengthSq == 0 {
			continue
		}
		t := position.Sub(a).Dot(ab) / lengthSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		closest := a.Add(ab.Scale(t))
		if distance := position.Sub(closest).Length(); distance < bestDistance {
			bestDistance = distance
			bestTangent = ab.Normalize()
		}
	}
	return bestTangent, bestDistance < math.MaxFloat64
}

// BarrelAngle returns the elevation in degrees, measured from +X, of the guide
// at the point closest to position.
func (g *Guide) BarrelAngle(position geom.Vec3) (float64, bool) {
	tangent, ok := g.tangentFor(position)
	if !ok {
		return 0, false
	}
	return wrapAngleDeg(math.Atan2(tangent.Y, tangent.X) * 180.0 / math.Pi), true
}
