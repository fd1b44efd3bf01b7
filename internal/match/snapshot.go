package match

import (
	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/tank"
)

// Phase is the coarse turn state reported to observers. Pausing is orthogonal
// and reported separately.
type Phase string

const (
	// PhaseAwaitingFire is a running countdown with the shot still available.
	PhaseAwaitingFire Phase = "awaiting_fire"
	// PhaseCountdown is a running countdown after the shot has resolved.
	PhaseCountdown Phase = "countdown"
	// PhaseProjectileInFlight means at least one shell of this turn is live.
	PhaseProjectileInFlight Phase = "projectile_in_flight"
	// PhaseTurnEndTransition is the hand-off delay between turns.
	PhaseTurnEndTransition Phase = "turn_end_transition"
	// PhaseMatchOver is terminal.
	PhaseMatchOver Phase = "match_over"
)

// TurnSnapshot captures a stable view of the turn state for observers.
type TurnSnapshot struct {
	Epoch           uint64                  `json:"epoch"`
	Turn            int                     `json:"turn"`
	Phase           Phase                   `json:"phase"`
	ActivePlayer    int                     `json:"active_player"`
	SecondsLeft     int                     `json:"seconds_left"`
	Ammo            int                     `json:"ammo"`
	InFlight        bool                    `json:"in_flight"`
	Paused          bool                    `json:"paused"`
	TurnEnded       bool                    `json:"turn_ended"`
	Whiffs          int                     `json:"whiffs"`
	MovementEnabled bool                    `json:"movement_enabled"`
	Over            bool                    `json:"over"`
	Winner          int                     `json:"winner,omitempty"`
	Seed            int64                   `json:"seed"`
	Tanks           []tank.Tank             `json:"tanks"`
	Projectiles     []ballistics.Projectile `json:"projectiles,omitempty"`
	Preview         []geom.Vec3             `json:"preview,omitempty"`
}

// Tank returns the snapshot of the given seat.
func (s TurnSnapshot) Tank(playerID int) (tank.Tank, bool) {
	for _, t := range s.Tanks {
		if t.PlayerID == playerID {
			return t, true
		}
	}
	return tank.Tank{}, false
}
