package bridge

import (
	"math"

	"forefront/arena/internal/geom"
)

// RejectReason identifies why a command was refused before reaching the match.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectPlayerRange RejectReason = "player_range"
	RejectNonFinite   RejectReason = "non_finite"
	RejectAimLength   RejectReason = "aim_length"
)

// maxAimLength bounds the drag vector a client may submit, in world units.
const maxAimLength = 1e4

// Validate screens a command for malformed input. Gameplay legality, such as
// whose turn it is, stays with the match.
func Validate(cmd Command) RejectReason {
	switch cmd.Type {
	case CommandMoveLeft, CommandMoveRight, CommandBoost:
		if cmd.PlayerID != 1 && cmd.PlayerID != 2 {
			return RejectPlayerRange
		}
	case CommandAim, CommandFire:
		if !finite(cmd.From) || !finite(cmd.To) {
			return RejectNonFinite
		}
		if cmd.To.Sub(cmd.From).Length() > maxAimLength {
			return RejectAimLength
		}
	}
	return RejectNone
}

func finite(v geom.Vec3) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
