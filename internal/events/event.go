package events

import (
	"time"

	"forefront/arena/internal/geom"
	"forefront/arena/internal/tank"
	"forefront/arena/internal/terrain"
)

// Kind enumerates the presentation events emitted by a match.
type Kind string

const (
	KindTerrainChanged     Kind = "terrain_changed"
	KindTankHealthChanged  Kind = "tank_health_changed"
	KindTankMoved          Kind = "tank_moved"
	KindTurnChanged        Kind = "turn_changed"
	KindMatchOver          Kind = "match_over"
	KindCountdownTick      Kind = "countdown_tick"
	KindReturnToStart      Kind = "return_to_start"
	KindProjectileLaunched Kind = "projectile_launched"
	KindProjectilesCleared Kind = "projectiles_cleared"
	KindPaused             Kind = "paused"
	KindResumed            Kind = "resumed"
	KindMatchStarted       Kind = "match_started"
)

// Event is one sequenced notification for the presentation layer. Only the
// fields relevant to Kind are populated.
type Event struct {
	Sequence     uint64         `json:"sequence"`
	Kind         Kind           `json:"kind"`
	Epoch        uint64         `json:"epoch"`
	Turn         int            `json:"turn,omitempty"`
	PlayerID     int            `json:"player_id,omitempty"`
	Health       int            `json:"health"`
	Position     geom.Vec3      `json:"position"`
	Cells        []terrain.Cell `json:"cells,omitempty"`
	Budgets      tank.Budgets   `json:"budgets"`
	SecondsLeft  int            `json:"seconds_left,omitempty"`
	WinnerID     int            `json:"winner_id,omitempty"`
	ProjectileID uint64         `json:"projectile_id,omitempty"`
	Shot         string         `json:"shot,omitempty"`
	Force        geom.Vec3      `json:"force"`
	At           time.Time      `json:"at"`
}

// Clone returns a copy that does not share slices with the original.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Cells != nil {
		clone.Cells = append([]terrain.Cell(nil), e.Cells...)
	}
	return &clone
}

// Publisher accepts events for sequenced delivery.
type Publisher interface {
	Publish(event Event) (uint64, error)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) (uint64, error) { return 0, nil }
