package match

import (
	"context"
	"time"

	"forefront/arena/internal/events"
	"forefront/arena/internal/logging"
)

// recordTimeout bounds the win counter write issued when a match ends.
const recordTimeout = 5 * time.Second

type step int

const (
	stepContinue step = iota
	stepHandOff
	stepFinish
)

// run is the single long-lived timer task of a match. It exits when the match
// context is cancelled, the host moves to a newer epoch, or the match ends.
func (m *Match) run() {
	completed := false
	defer close(m.done)
	defer func() {
		m.mu.Lock()
		winner := m.winner
		m.mu.Unlock()
		m.deps.metrics.MatchEnded(context.Background(), winner, completed)
	}()

	for {
		//1.- Bail out as soon as the host has started a newer match.
		if !m.alive() {
			m.recordIfOver()
			return
		}
		//2.- A paused match blocks here until exactly one resume releases it.
		if !m.awaitResume() {
			m.recordIfOver()
			return
		}
		elapsed := m.waitTick()
		if !m.alive() {
			m.recordIfOver()
			return
		}
		switch m.advance(elapsed) {
		case stepFinish:
			completed = true
			m.finish()
			return
		case stepHandOff:
			m.handOff()
		}
	}
}

func (m *Match) alive() bool {
	return m.ctx.Err() == nil && m.current() == m.epoch
}

// awaitResume reports false when the match was torn down while paused.
func (m *Match) awaitResume() bool {
	for {
		m.mu.Lock()
		paused, over := m.paused, m.over
		m.mu.Unlock()
		if !paused || over {
			return true
		}
		select {
		case <-m.ctx.Done():
			return false
		case <-m.resume:
		}
	}
}

// waitTick blocks for one countdown step. It returns early, without the tick
// elapsing, once the turn may end or the match is over.
func (m *Match) waitTick() bool {
	timer := time.NewTimer(m.rules.Tick)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-m.landed:
		case <-m.wake:
		}
		if m.interrupted() {
			return false
		}
	}
}

func (m *Match) interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.over || m.paused || m.readyToEndLocked()
}

func (m *Match) readyToEndLocked() bool {
	return !m.inFlight && m.pendingVolley == 0 && (m.turnEnded || m.secondsLeft <= 0)
}

// advance applies one timer step to the turn state.
func (m *Match) advance(elapsed bool) step {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.over {
		return stepFinish
	}
	if m.paused {
		return stepContinue
	}
	if elapsed {
		//1.- The countdown keeps running during a flight but floors at zero.
		if m.secondsLeft > 0 {
			m.secondsLeft--
			m.emitLocked(events.Event{Kind: events.KindCountdownTick, SecondsLeft: m.secondsLeft})
		}
		//2.- Every tick with a shell still unanswered counts toward the whiff timeout.
		if m.inFlight {
			m.whiffs++
			if m.whiffs >= m.rules.WhiffThreshold {
				m.whiffLocked()
			}
		}
	}
	if m.readyToEndLocked() {
		return stepHandOff
	}
	return stepContinue
}

// handOff passes control to the other player.
func (m *Match) handOff() {
	m.mu.Lock()
	if m.over {
		m.mu.Unlock()
		return
	}
	//1.- Housekeeping in order: projectiles, turn flag, seat, preview, ammo.
	m.clearProjectilesLocked()
	m.turnEnded = false
	previous := m.active
	m.active = 3 - m.active
	m.turn++
	m.preview = nil
	m.ammo = 1
	m.transition = true
	m.movementEnabled = false
	next := m.active
	m.mu.Unlock()
	m.logger.Info("passing control", logging.Int("from", previous), logging.Int("to", next))

	//2.- Movement stays disabled while control passes between players.
	if !m.sleep(m.rules.HandoffDelay) || !m.awaitResume() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.over {
		return
	}
	//3.- Fresh budgets and a full countdown open the next turn.
	m.whiffs = 0
	for _, t := range m.tanks {
		t.ResetBudgets(m.rules.Budgets)
	}
	m.secondsLeft = m.rules.TurnSeconds
	m.transition = false
	m.movementEnabled = true
	m.deps.metrics.TurnCompleted(m.ctx)
	m.emitLocked(events.Event{Kind: events.KindTurnChanged, PlayerID: m.active, Budgets: m.tankFor(m.active).Budgets()})
	m.emitLocked(events.Event{Kind: events.KindCountdownTick, SecondsLeft: m.secondsLeft})
}

// finish records the result, holds the end notice, then signals a return to start.
func (m *Match) finish() {
	m.recordIfOver()
	if !m.sleep(m.rules.MatchOverNotice) {
		return
	}
	m.mu.Lock()
	m.emitLocked(events.Event{Kind: events.KindReturnToStart, WinnerID: m.winner})
	m.mu.Unlock()
}

// recordIfOver persists the win exactly once for a finished match.
func (m *Match) recordIfOver() {
	m.mu.Lock()
	over, winner := m.over, m.winner
	m.mu.Unlock()
	if !over || winner == 0 {
		return
	}
	m.recorded.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		tally, err := m.deps.stats.RecordWin(ctx, winner)
		if err != nil {
			m.logger.Error("record win failed", logging.Int("winner", winner), logging.Error(err))
			return
		}
		m.logger.Info("win recorded",
			logging.Int("winner", winner),
			logging.Int64("player1_wins", tally.Player1Wins),
			logging.Int64("player2_wins", tally.Player2Wins),
		)
	})
}

// sleep waits for d and reports false if the match was torn down meanwhile.
func (m *Match) sleep(d time.Duration) bool {
	if d <= 0 {
		return m.alive()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return m.alive()
	}
}
