package stats

import (
	"context"
	"errors"
	"sync"

	"forefront/arena/internal/tank"
)

const (
	// CounterPlayer1 names the persisted win counter of seat 1.
	CounterPlayer1 = "Player1Wins"
	// CounterPlayer2 names the persisted win counter of seat 2.
	CounterPlayer2 = "Player2Wins"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("stats store closed")

// Tally is a snapshot of both win counters.
type Tally struct {
	Player1Wins int64 `json:"player1_wins"`
	Player2Wins int64 `json:"player2_wins"`
}

// For returns the counter of the given seat.
func (t Tally) For(playerID int) int64 {
	if playerID == 2 {
		return t.Player2Wins
	}
	return t.Player1Wins
}

// Store persists the per-seat win counters. Missing counters read as zero.
type Store interface {
	Wins(ctx context.Context) (Tally, error)
	RecordWin(ctx context.Context, playerID int) (Tally, error)
	Close() error
}

func counterName(playerID int) (string, error) {
	switch playerID {
	case 1:
		return CounterPlayer1, nil
	case 2:
		return CounterPlayer2, nil
	default:
		return "", tank.ErrUnknownPlayer
	}
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tally  Tally
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Wins implements Store.
func (m *MemoryStore) Wins(ctx context.Context) (Tally, error) {
	if err := ctx.Err(); err != nil {
		return Tally{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Tally{}, ErrClosed
	}
	return m.tally, nil
}

// RecordWin implements Store.
func (m *MemoryStore) RecordWin(ctx context.Context, playerID int) (Tally, error) {
	if err := ctx.Err(); err != nil {
		return Tally{}, err
	}
	if _, err := counterName(playerID); err != nil {
		return Tally{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Tally{}, ErrClosed
	}
	if playerID == 1 {
		m.tally.Player1Wins++
	} else {
		m.tally.Player2Wins++
	}
	return m.tally, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
