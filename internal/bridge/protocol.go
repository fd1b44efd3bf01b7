package bridge

import (
	"errors"

	"forefront/arena/internal/events"
	"forefront/arena/internal/geom"
	"forefront/arena/internal/match"
)

// CommandType names one input-layer command.
type CommandType string

const (
	CommandMoveLeft  CommandType = "move_left"
	CommandMoveRight CommandType = "move_right"
	CommandBoost     CommandType = "boost"
	CommandAim       CommandType = "aim"
	CommandFire      CommandType = "fire"
	CommandEndTurn   CommandType = "end_turn"
	CommandPause     CommandType = "pause"
	CommandResume    CommandType = "resume"
)

// Message types written to clients.
const (
	MessageEvent    = "event"
	MessageSnapshot = "snapshot"
	MessageAck      = "ack"
	MessageError    = "error"
)

// ErrNoMatch is reported when a command arrives while no match is running.
var ErrNoMatch = errors.New("no match in progress")

// Command is one JSON message read from a client.
type Command struct {
	Type     CommandType `json:"type"`
	ID       string      `json:"id,omitempty"`
	PlayerID int         `json:"player_id,omitempty"`
	From     geom.Vec3   `json:"from"`
	To       geom.Vec3   `json:"to"`
	Shot     string      `json:"shot,omitempty"`
}

// Ack answers one command. Rejected gameplay commands are not errors; they
// report Accepted false.
type Ack struct {
	ID          string       `json:"id,omitempty"`
	Command     CommandType  `json:"command"`
	Accepted    bool         `json:"accepted"`
	Reason      RejectReason `json:"reason,omitempty"`
	Preview     []geom.Vec3  `json:"preview,omitempty"`
	BarrelAngle *float64     `json:"barrel_angle,omitempty"`
}

// Message is the envelope of everything written to clients.
type Message struct {
	Type     string              `json:"type"`
	Event    *events.Event       `json:"event,omitempty"`
	Snapshot *match.TurnSnapshot `json:"snapshot,omitempty"`
	Ack      *Ack                `json:"ack,omitempty"`
	Error    string              `json:"error,omitempty"`
}
