// Package lifecycle implements the countdown -> active -> finished game state machine.
// Every function works on a *domain.Game and an explicit server time, so callers decide
// persistence and the clock.
package lifecycle

import (
	"time"

	"tourney-engine/internal/domain"
)

type Timing struct {
	Countdown       time.Duration `yaml:"countdown"`
	WrongAnswerLock time.Duration `yaml:"wrong_answer_lock"`
	AFKWarnAfter    time.Duration `yaml:"afk_warn_after"`
	AFKResignAfter  time.Duration `yaml:"afk_resign_after"`
	MaxMistakes     int           `yaml:"max_mistakes"`
}

func DefaultTiming() Timing {
	return Timing{
		Countdown:       5 * time.Second,
		WrongAnswerLock: 5 * time.Second,
		AFKWarnAfter:    15 * time.Second,
		AFKResignAfter:  5 * time.Second,
		MaxMistakes:     3,
	}
}

type EventKind string

const (
	EventActivated  EventKind = "activated"
	EventAFKWarning EventKind = "afk_warning"
)

type Event struct {
	Kind          EventKind
	ParticipantID string
}

type SubmitOutcome struct {
	Correct     bool
	Mistakes    int
	LockedUntil *time.Time
	Finished    bool
}

// Advance applies every time-driven transition due at now: countdown expiry, AFK warnings,
// AFK resignations and time-outs. Expiries resolve in order of their own instants, so the
// player whose deadline passed first loses even when both are observed late.
func Advance(g *domain.Game, now time.Time, t Timing) (changed bool, events []Event) {
	if g.Status == domain.GameFinished {
		return false, nil
	}

	if g.Status == domain.GameCountdown {
		if now.Before(g.CountdownEndsAt) {
			return false, nil
		}
		activate(g)
		changed = true
		events = append(events, Event{Kind: EventActivated})
	}

	failA, reasonA := failureAt(g, &g.A, t)
	failB, reasonB := failureAt(g, &g.B, t)
	dueA := !now.Before(failA)
	dueB := !now.Before(failB)

	switch {
	case dueA && dueB && failA.Equal(failB):
		reason := domain.EndDoubleTimeout
		if reasonA == domain.EndAFK && reasonB == domain.EndAFK {
			reason = domain.EndDoubleAFK
		}
		finish(g, "", reason, failA)
		return true, events
	case dueA && (!dueB || failA.Before(failB)):
		finish(g, g.B.ParticipantID, reasonA, failA)
		return true, events
	case dueB:
		finish(g, g.A.ParticipantID, reasonB, failB)
		return true, events
	}

	for _, p := range []*domain.PlayerState{&g.A, &g.B} {
		if p.AFKWarned || p.LastActionAt != nil || t.AFKWarnAfter <= 0 {
			continue
		}
		if !now.Before(g.StartedAt.Add(t.AFKWarnAfter)) {
			p.AFKWarned = true
			changed = true
			events = append(events, Event{Kind: EventAFKWarning, ParticipantID: p.ParticipantID})
		}
	}

	return changed, events
}

func activate(g *domain.Game) {
	started := g.CountdownEndsAt
	g.StartedAt = &started
	g.Status = domain.GameActive
	for _, p := range []*domain.PlayerState{&g.A, &g.B} {
		p.TimeLimitMs = g.BaseTimeMs
		if p.Berserk {
			p.TimeLimitMs = g.BaseTimeMs / 2
		}
	}
}

// failureAt is the earliest instant a player loses by inaction: their deadline, or the AFK
// resignation point when they never interacted.
func failureAt(g *domain.Game, p *domain.PlayerState, t Timing) (time.Time, domain.EndReason) {
	at, reason := g.Deadline(p), domain.EndTimeout
	if p.LastActionAt == nil && t.AFKWarnAfter > 0 {
		afk := g.StartedAt.Add(t.AFKWarnAfter + t.AFKResignAfter)
		if afk.Before(at) {
			at, reason = afk, domain.EndAFK
		}
	}
	return at, reason
}

// Submit records an answer. Callers run Advance first so expired players are already resolved.
// Submitting to a finished game is a no-op.
func Submit(g *domain.Game, participantID, answer string, correct bool, now time.Time, t Timing) (SubmitOutcome, error) {
	if g.Status == domain.GameFinished {
		return SubmitOutcome{Finished: true}, nil
	}
	self, opponent, ok := g.Side(participantID)
	if !ok {
		return SubmitOutcome{}, domain.ErrNotAPlayer
	}
	if g.Status != domain.GameActive || !now.Before(g.Deadline(self)) {
		return SubmitOutcome{}, domain.ErrGameNotActive
	}
	if self.LockedUntil != nil && now.Before(*self.LockedUntil) {
		return SubmitOutcome{Mistakes: self.Mistakes, LockedUntil: self.LockedUntil}, domain.ErrInputLocked
	}

	acted := now
	self.LastActionAt = &acted
	self.Answer = answer
	self.TimeMs = now.Sub(*g.StartedAt).Milliseconds()

	if correct {
		finish(g, self.ParticipantID, domain.EndCorrectAnswer, now)
		return SubmitOutcome{Correct: true, Mistakes: self.Mistakes, Finished: true}, nil
	}

	self.Mistakes++
	locked := now.Add(t.WrongAnswerLock)
	self.LockedUntil = &locked
	if self.Mistakes >= t.MaxMistakes {
		finish(g, opponent.ParticipantID, domain.EndMistakeCap, now)
		return SubmitOutcome{Mistakes: self.Mistakes, Finished: true}, nil
	}
	return SubmitOutcome{Mistakes: self.Mistakes, LockedUntil: self.LockedUntil}, nil
}

// Resign ends the game in the opponent's favour. Allowed in countdown and active.
func Resign(g *domain.Game, participantID string, reason domain.EndReason, now time.Time) error {
	if g.Status == domain.GameFinished {
		return nil
	}
	_, opponent, ok := g.Side(participantID)
	if !ok {
		return domain.ErrNotAPlayer
	}
	finish(g, opponent.ParticipantID, reason, now)
	return nil
}

// Touch records player activity without an answer, which holds off the AFK timer.
func Touch(g *domain.Game, participantID string, now time.Time) error {
	self, _, ok := g.Side(participantID)
	if !ok {
		return domain.ErrNotAPlayer
	}
	if g.Status != domain.GameActive {
		return nil
	}
	acted := now
	self.LastActionAt = &acted
	return nil
}

func ActivateBerserk(g *domain.Game, participantID string) error {
	self, _, ok := g.Side(participantID)
	if !ok {
		return domain.ErrNotAPlayer
	}
	if g.Status != domain.GameCountdown {
		return domain.ErrNotInCountdown
	}
	self.Berserk = true
	return nil
}

// ForceDraw closes an unfinished game with no winner. Reports whether anything changed.
func ForceDraw(g *domain.Game, reason domain.EndReason, now time.Time) bool {
	if g.Status == domain.GameFinished {
		return false
	}
	finish(g, "", reason, now)
	return true
}

func finish(g *domain.Game, winnerID string, reason domain.EndReason, at time.Time) {
	finished := at
	g.Status = domain.GameFinished
	g.FinishedAt = &finished
	g.WinnerID = winnerID
	g.IsDraw = winnerID == ""
	g.EndReason = reason
}
