package bridge

import (
	"fmt"

	"forefront/arena/internal/ballistics"
	"forefront/arena/internal/match"
	"forefront/arena/internal/physics"
)

// Source exposes the running match.
type Source interface {
	Current() *match.Match
}

// Dispatch applies one command to m. Gameplay rejections come back as an Ack
// with Accepted false; only malformed commands return an error.
func Dispatch(m *match.Match, cmd Command) (Ack, error) {
	ack := Ack{ID: cmd.ID, Command: cmd.Type}
	if m == nil {
		return ack, ErrNoMatch
	}
	if reason := Validate(cmd); reason != RejectNone {
		ack.Reason = reason
		return ack, nil
	}
	switch cmd.Type {
	case CommandMoveLeft:
		ack.Accepted = m.MoveLeft(cmd.PlayerID)
	case CommandMoveRight:
		ack.Accepted = m.MoveRight(cmd.PlayerID)
	case CommandBoost:
		ack.Accepted = m.BoostUp(cmd.PlayerID)
	case CommandAim:
		preview := m.AimPreview(cmd.From, cmd.To)
		ack.Accepted = preview != nil
		ack.Preview = preview
		//1.- The barrel follows the first segment of the predicted arc.
		if guide := physics.NewGuide(preview); guide != nil {
			if angle, ok := guide.BarrelAngle(preview[0]); ok {
				ack.BarrelAngle = &angle
			}
		}
	case CommandFire:
		shot := ballistics.ShotLob
		if cmd.Shot != "" {
			parsed, err := ballistics.ParseShotType(cmd.Shot)
			if err != nil {
				return ack, err
			}
			shot = parsed
		}
		ack.Accepted = m.Fire(cmd.From, cmd.To, shot)
	case CommandEndTurn:
		ack.Accepted = m.EndTurnNow()
	case CommandPause:
		ack.Accepted = m.Pause()
	case CommandResume:
		ack.Accepted = m.Resume()
	default:
		return ack, fmt.Errorf("unknown command %q", cmd.Type)
	}
	return ack, nil
}
