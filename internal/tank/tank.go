package tank

import (
	"errors"

	"forefront/arena/internal/geom"
)

// DefaultMaxHealth is the health each tank starts a match with.
const DefaultMaxHealth = 100

// ErrUnknownPlayer is returned when a player identifier is neither 1 nor 2.
var ErrUnknownPlayer = errors.New("player id must be 1 or 2")

// Budgets are the per-turn allowances granted to the active tank.
type Budgets struct {
	Movement int `json:"movement"`
	Boost    int `json:"boost"`
}

// Tank is the mutable per-player state of a match.
type Tank struct {
	PlayerID       int       `json:"player_id"`
	Position       geom.Vec3 `json:"position"`
	Health         int       `json:"health"`
	MaxHealth      int       `json:"max_health"`
	FacingRight    bool      `json:"facing_right"`
	MovementBudget int       `json:"movement_budget"`
	BoostBudget    int       `json:"boost_budget"`

	lastGround    geom.Vec3
	hasLastGround bool
}

// New spawns a tank at full health. Player 1 faces right, player 2 faces left.
func New(playerID int, position geom.Vec3, maxHealth int) (*Tank, error) {
	if err := ValidatePlayer(playerID); err != nil {
		return nil, err
	}
	if maxHealth <= 0 {
		maxHealth = DefaultMaxHealth
	}
	return &Tank{
		PlayerID:    playerID,
		Position:    position,
		Health:      maxHealth,
		MaxHealth:   maxHealth,
		FacingRight: playerID == 1,
	}, nil
}

// ValidatePlayer reports whether the identifier names one of the two seats.
func ValidatePlayer(playerID int) error {
	if playerID != 1 && playerID != 2 {
		return ErrUnknownPlayer
	}
	return nil
}

// Other returns the opposing seat.
func Other(playerID int) int {
	if playerID == 1 {
		return 2
	}
	return 1
}

// DecreaseHealth applies damage and returns the new health. Non-positive damage
// is ignored and health never drops below zero.
func (t *Tank) DecreaseHealth(damage int) int {
	if t == nil {
		return 0
	}
	if damage <= 0 {
		return t.Health
	}
	t.Health -= damage
	if t.Health < 0 {
		t.Health = 0
	}
	return t.Health
}

// Dead reports whether the tank has been destroyed.
func (t *Tank) Dead() bool {
	return t != nil && t.Health <= 0
}

// ResetBudgets restores the per-turn allowances.
func (t *Tank) ResetBudgets(budgets Budgets) {
	if t == nil {
		return
	}
	t.MovementBudget = budgets.Movement
	t.BoostBudget = budgets.Boost
}

// Budgets reports the remaining allowances.
func (t *Tank) Budgets() Budgets {
	if t == nil {
		return Budgets{}
	}
	return Budgets{Movement: t.MovementBudget, Boost: t.BoostBudget}
}

// SpendMove consumes one movement step if any remain.
func (t *Tank) SpendMove() bool {
	if t == nil || t.MovementBudget <= 0 {
		return false
	}
	t.MovementBudget--
	return true
}

// SpendBoost consumes one boost if any remain.
func (t *Tank) SpendBoost() bool {
	if t == nil || t.BoostBudget <= 0 {
		return false
	}
	t.BoostBudget--
	return true
}

// RecordGround stores the latest terrain contact point of the tank.
func (t *Tank) RecordGround(point geom.Vec3) {
	if t == nil {
		return
	}
	t.lastGround = point
	t.hasLastGround = true
}

// LastGround returns the latest terrain contact point, if one was observed.
func (t *Tank) LastGround() (geom.Vec3, bool) {
	if t == nil {
		return geom.Vec3{}, false
	}
	return t.lastGround, t.hasLastGround
}

// Clone returns a detached copy for snapshots.
func (t *Tank) Clone() Tank {
	if t == nil {
		return Tank{}
	}
	return *t
}
