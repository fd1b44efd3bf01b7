package replay

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncatedFrame reports a frame stream that ends inside a record.
var ErrTruncatedFrame = errors.New("replay frame truncated")

// TankFrame is the per-tank slice of a frame.
type TankFrame struct {
	PlayerID int
	Health   int
	X        float64
	Y        float64
}

// ProjectileFrame is the per-shell slice of a frame.
type ProjectileFrame struct {
	ID uint64
	X  float64
	Y  float64
}

// Frame is one sampled picture of a match.
type Frame struct {
	Epoch        uint64
	Sequence     uint64
	Turn         int
	ActivePlayer int
	SecondsLeft  int
	Phase        string
	Paused       bool
	Winner       int
	CapturedAt   time.Time
	Tanks        []TankFrame
	Projectiles  []ProjectileFrame
}

// Field numbers of the frame wire format. They are append-only.
const (
	frameEpoch       protowire.Number = 1
	frameTurn        protowire.Number = 2
	frameActive      protowire.Number = 3
	frameSecondsLeft protowire.Number = 4
	framePhase       protowire.Number = 5
	framePaused      protowire.Number = 6
	frameTank        protowire.Number = 7
	frameProjectile  protowire.Number = 8
	frameCapturedMs  protowire.Number = 9
	frameWinner      protowire.Number = 10
	frameSequence    protowire.Number = 11

	tankPlayer protowire.Number = 1
	tankHealth protowire.Number = 2
	tankX      protowire.Number = 3
	tankY      protowire.Number = 4

	projectileID protowire.Number = 1
	projectileX  protowire.Number = 2
	projectileY  protowire.Number = 3
)

// EncodeFrame serialises a frame in protobuf wire format without generated code.
func EncodeFrame(frame Frame) []byte {
	var b []byte
	b = appendVarint(b, frameEpoch, frame.Epoch)
	b = appendVarint(b, frameSequence, frame.Sequence)
	b = appendVarint(b, frameTurn, uint64(frame.Turn))
	b = appendVarint(b, frameActive, uint64(frame.ActivePlayer))
	b = appendVarint(b, frameSecondsLeft, protowire.EncodeZigZag(int64(frame.SecondsLeft)))
	if frame.Phase != "" {
		b = protowire.AppendTag(b, framePhase, protowire.BytesType)
		b = protowire.AppendString(b, frame.Phase)
	}
	if frame.Paused {
		b = appendVarint(b, framePaused, 1)
	}
	b = appendVarint(b, frameWinner, uint64(frame.Winner))
	if !frame.CapturedAt.IsZero() {
		b = appendVarint(b, frameCapturedMs, protowire.EncodeZigZag(frame.CapturedAt.UnixMilli()))
	}
	//1.- Nested records are length-delimited so readers can skip what they do not know.
	for _, tk := range frame.Tanks {
		var nested []byte
		nested = appendVarint(nested, tankPlayer, uint64(tk.PlayerID))
		nested = appendVarint(nested, tankHealth, uint64(tk.Health))
		nested = appendDouble(nested, tankX, tk.X)
		nested = appendDouble(nested, tankY, tk.Y)
		b = protowire.AppendTag(b, frameTank, protowire.BytesType)
		b = protowire.AppendBytes(b, nested)
	}
	for _, p := range frame.Projectiles {
		var nested []byte
		nested = appendVarint(nested, projectileID, p.ID)
		nested = appendDouble(nested, projectileX, p.X)
		nested = appendDouble(nested, projectileY, p.Y)
		b = protowire.AppendTag(b, frameProjectile, protowire.BytesType)
		b = protowire.AppendBytes(b, nested)
	}
	return b
}

// DecodeFrame parses a frame produced by EncodeFrame. Unknown fields are skipped.
func DecodeFrame(b []byte) (Frame, error) {
	var frame Frame
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch num {
		case frameEpoch:
			frame.Epoch = scalar
		case frameSequence:
			frame.Sequence = scalar
		case frameTurn:
			frame.Turn = int(scalar)
		case frameActive:
			frame.ActivePlayer = int(scalar)
		case frameSecondsLeft:
			frame.SecondsLeft = int(protowire.DecodeZigZag(scalar))
		case framePhase:
			frame.Phase = string(value)
		case framePaused:
			frame.Paused = scalar != 0
		case frameWinner:
			frame.Winner = int(scalar)
		case frameCapturedMs:
			frame.CapturedAt = time.UnixMilli(protowire.DecodeZigZag(scalar)).UTC()
		case frameTank:
			tk, err := decodeTank(value)
			if err != nil {
				return err
			}
			frame.Tanks = append(frame.Tanks, tk)
		case frameProjectile:
			p, err := decodeProjectile(value)
			if err != nil {
				return err
			}
			frame.Projectiles = append(frame.Projectiles, p)
		}
		return nil
	})
	return frame, err
}

func decodeTank(b []byte) (TankFrame, error) {
	var tk TankFrame
	err := consumeFields(b, func(num protowire.Number, _ protowire.Type, _ []byte, scalar uint64) error {
		switch num {
		case tankPlayer:
			tk.PlayerID = int(scalar)
		case tankHealth:
			tk.Health = int(scalar)
		case tankX:
			tk.X = math.Float64frombits(scalar)
		case tankY:
			tk.Y = math.Float64frombits(scalar)
		}
		return nil
	})
	return tk, err
}

func decodeProjectile(b []byte) (ProjectileFrame, error) {
	var p ProjectileFrame
	err := consumeFields(b, func(num protowire.Number, _ protowire.Type, _ []byte, scalar uint64) error {
		switch num {
		case projectileID:
			p.ID = scalar
		case projectileX:
			p.X = math.Float64frombits(scalar)
		case projectileY:
			p.Y = math.Float64frombits(scalar)
		}
		return nil
	})
	return p, err
}

type fieldFunc func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error

// consumeFields walks one message, handing varint and fixed64 values as scalars
// and length-delimited values as bytes.
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		var (
			value  []byte
			scalar uint64
		)
		switch typ {
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("consume field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, value, scalar); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
