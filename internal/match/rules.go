package match

import (
	"errors"
	"fmt"
	"time"

	"forefront/arena/internal/combat"
	"forefront/arena/internal/config"
	"forefront/arena/internal/tank"
)

// Rules holds the timing, budget and scoring tunables of a match.
type Rules struct {
	// TurnSeconds is the number of countdown ticks granted per turn.
	TurnSeconds int
	// Tick is the wall-clock duration of one countdown step.
	Tick time.Duration
	// WhiffThreshold is the number of unanswered ticks before a flight is cleared.
	WhiffThreshold int
	// HandoffDelay is the pause between turns during which movement is disabled.
	HandoffDelay time.Duration
	// SelfHitGrace shields the shooter from its own projectile after firing.
	SelfHitGrace time.Duration
	// MatchOverNotice is how long the result is shown before returning to start.
	MatchOverNotice time.Duration
	Budgets         tank.Budgets
	MoveStep        float64
	BoostHeight     float64
	MaxHealth       int
	TieBreak        combat.TieBreak
	// SpawnFractions place player 1 and player 2 across the level width.
	SpawnFractions [2]float64
	// PreviewSamples bounds the trajectory preview length.
	PreviewSamples int
	PreviewStep    time.Duration
	// VolleyStagger overrides the catalog delay between volley shots when positive.
	VolleyStagger time.Duration
}

// DefaultRules returns the stock two-player rule set.
func DefaultRules() Rules {
	return Rules{
		TurnSeconds:     20,
		Tick:            time.Second,
		WhiffThreshold:  5,
		HandoffDelay:    2 * time.Second,
		SelfHitGrace:    500 * time.Millisecond,
		MatchOverNotice: 3 * time.Second,
		Budgets:         tank.Budgets{Movement: 60, Boost: 3},
		MoveStep:        0.25,
		BoostHeight:     1.5,
		MaxHealth:       tank.DefaultMaxHealth,
		TieBreak:        combat.TieBreakPlayer1First,
		SpawnFractions:  [2]float64{0.15, 0.85},
		PreviewSamples:  60,
		PreviewStep:     time.Second / 30,
	}
}

// ErrInvalidRules wraps every rule validation failure.
var ErrInvalidRules = errors.New("invalid match rules")

// Validate reports the first inconsistent tunable.
func (r Rules) Validate() error {
	switch {
	case r.TurnSeconds <= 0:
		return fmt.Errorf("%w: turn seconds must be positive", ErrInvalidRules)
	case r.Tick <= 0:
		return fmt.Errorf("%w: tick must be positive", ErrInvalidRules)
	case r.WhiffThreshold <= 0:
		return fmt.Errorf("%w: whiff threshold must be positive", ErrInvalidRules)
	case r.HandoffDelay < 0 || r.SelfHitGrace < 0 || r.MatchOverNotice < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidRules)
	case r.Budgets.Movement < 0 || r.Budgets.Boost < 0:
		return fmt.Errorf("%w: budgets must not be negative", ErrInvalidRules)
	case r.MaxHealth <= 0:
		return fmt.Errorf("%w: max health must be positive", ErrInvalidRules)
	}
	for _, fraction := range r.SpawnFractions {
		if fraction < 0 || fraction > 1 {
			return fmt.Errorf("%w: spawn fractions must lie in [0,1]", ErrInvalidRules)
		}
	}
	return nil
}

// RulesFromConfig maps host configuration onto match rules. The turn length is
// expressed in ticks so shortened ticks shorten the whole turn.
func RulesFromConfig(cfg config.MatchConfig) (Rules, error) {
	rules := DefaultRules()
	rules.Tick = cfg.TickInterval
	if cfg.TickInterval > 0 {
		rules.TurnSeconds = int(cfg.TurnDuration / cfg.TickInterval)
	}
	rules.WhiffThreshold = cfg.WhiffThreshold
	rules.HandoffDelay = cfg.HandoffDelay
	rules.SelfHitGrace = cfg.SelfHitGrace
	rules.MatchOverNotice = cfg.MatchOverNotice
	rules.Budgets = tank.Budgets{Movement: cfg.MovementBudget, Boost: cfg.BoostBudget}
	policy, err := combat.ParseTieBreak(cfg.TieBreak)
	if err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	rules.TieBreak = policy
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}
