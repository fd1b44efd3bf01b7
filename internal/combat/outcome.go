package combat

import (
	"fmt"
	"strings"

	"forefront/arena/internal/tank"
)

// TieBreak decides who is credited when both tanks die in one resolution pass.
type TieBreak string

const (
	// TieBreakPlayer1First checks player 1 first, crediting player 2 on a double kill.
	TieBreakPlayer1First TieBreak = "player1-first"
	// TieBreakPlayer2First checks player 2 first, crediting player 1 on a double kill.
	TieBreakPlayer2First TieBreak = "player2-first"
	// TieBreakDraw credits nobody on a double kill.
	TieBreakDraw TieBreak = "draw"
)

// ParseTieBreak maps configuration text onto a policy. Empty input selects the default.
func ParseTieBreak(raw string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TieBreakPlayer1First:
		return TieBreakPlayer1First, nil
	case TieBreakPlayer2First:
		return TieBreakPlayer2First, nil
	case TieBreakDraw:
		return TieBreakDraw, nil
	default:
		return TieBreakPlayer1First, fmt.Errorf("unknown tie break policy %q", raw)
	}
}

// Outcome is the result of a win check.
type Outcome struct {
	Over bool
	// Winner is 0 when the match is over without a credited winner.
	Winner int
}

// WinCheck inspects both tanks and reports whether the match is over and who won.
func WinCheck(p1, p2 *tank.Tank, policy TieBreak) Outcome {
	dead1, dead2 := p1.Dead(), p2.Dead()
	switch {
	case !dead1 && !dead2:
		return Outcome{}
	case dead1 && !dead2:
		return Outcome{Over: true, Winner: 2}
	case dead2 && !dead1:
		return Outcome{Over: true, Winner: 1}
	}
	//1.- Both destroyed in the same pass; the policy decides the credit.
	switch policy {
	case TieBreakPlayer2First:
		return Outcome{Over: true, Winner: 1}
	case TieBreakDraw:
		return Outcome{Over: true}
	default:
		return Outcome{Over: true, Winner: 2}
	}
}
