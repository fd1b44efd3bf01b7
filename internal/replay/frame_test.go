package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestFrameRoundTrip(t *testing.T) {
	captured := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	frame := Frame{
		Epoch:        3,
		Sequence:     42,
		Turn:         5,
		ActivePlayer: 2,
		SecondsLeft:  17,
		Phase:        "projectile_in_flight",
		Paused:       true,
		CapturedAt:   captured,
		Tanks: []TankFrame{
			{PlayerID: 1, Health: 80, X: 3.75, Y: 9.5},
			{PlayerID: 2, Health: 100, X: -1.25, Y: 4},
		},
		Projectiles: []ProjectileFrame{{ID: 3<<32 | 1, X: 12.5, Y: 14.25}},
	}
	decoded, err := DecodeFrame(EncodeFrame(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Epoch != 3 || decoded.Sequence != 42 || decoded.Turn != 5 || decoded.ActivePlayer != 2 {
		t.Fatalf("unexpected header fields %+v", decoded)
	}
	if decoded.SecondsLeft != 17 || decoded.Phase != frame.Phase || !decoded.Paused {
		t.Fatalf("unexpected turn fields %+v", decoded)
	}
	if !decoded.CapturedAt.Equal(captured) {
		t.Fatalf("expected capture time %v, got %v", captured, decoded.CapturedAt)
	}
	if len(decoded.Tanks) != 2 || decoded.Tanks[1] != frame.Tanks[1] {
		t.Fatalf("unexpected tanks %+v", decoded.Tanks)
	}
	if len(decoded.Projectiles) != 1 || decoded.Projectiles[0] != frame.Projectiles[0] {
		t.Fatalf("unexpected projectiles %+v", decoded.Projectiles)
	}
}

func TestDecodeFrameSkipsUnknownFields(t *testing.T) {
	//1.- A field from a newer writer must not break older readers.
	b := EncodeFrame(Frame{Epoch: 9, Winner: 1})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	decoded, err := DecodeFrame(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Epoch != 9 || decoded.Winner != 1 {
		t.Fatalf("unexpected frame %+v", decoded)
	}
}

func TestDecodeFrameRejectsTruncatedInput(t *testing.T) {
	b := EncodeFrame(Frame{Epoch: 1, Phase: "countdown"})
	if _, err := DecodeFrame(b[:len(b)-2]); err == nil {
		t.Fatalf("expected truncated input to fail")
	}
}

func TestReadFramesReportsTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	file, err := os.Create(filepath.Join(dir, framesName))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	//1.- One whole record followed by a length prefix that promises more than is left.
	record := protowire.AppendBytes(nil, EncodeFrame(Frame{Epoch: 1}))
	record = protowire.AppendVarint(record, 10)
	record = append(record, 1, 2, 3)
	if _, err := encoder.Write(record); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	frames, err := ReadFrames(dir)
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	if len(frames) != 1 || frames[0].Epoch != 1 {
		t.Fatalf("expected the whole record to survive, got %+v", frames)
	}
}
