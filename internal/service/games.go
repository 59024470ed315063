package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/notify"
	"tourney-engine/internal/repository"
	"tourney-engine/internal/scoring"
)

type SubmitResult struct {
	IsCorrect   bool
	Mistakes    int
	LockedUntil *time.Time
	Finished    bool
	WinnerID    string
	IsDraw      bool
}

// gameOp mutates a game that already had its time-driven transitions applied. It reports
// whether it changed the game; a returned error is still reported to the caller after any
// timer transitions are persisted.
type gameOp func(g *domain.Game, now time.Time) (bool, error)

// GetGame returns the game with overdue timers applied, so polling clients never see a
// game past its deadline still marked active.
func (e *Engine) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	return e.mutateGame(ctx, gameID, nil)
}

func (e *Engine) SubmitAnswer(ctx context.Context, gameID, userID, answer string, clientElapsedMs int64) (*SubmitResult, error) {
	var res SubmitResult
	g, err := e.mutateGame(ctx, gameID, func(g *domain.Game, now time.Time) (bool, error) {
		res = SubmitResult{}
		self, _, ok := g.SideForUser(userID)
		if !ok {
			return false, domain.ErrNotAPlayer
		}
		if g.Status == domain.GameFinished {
			res.Mistakes = self.Mistakes
			return false, nil
		}

		correct := false
		if g.Status == domain.GameActive {
			var err error
			correct, err = callOracle(ctx, e, "checker", func(ctx context.Context) (bool, error) {
				return e.checker.Check(ctx, g.ProblemAnswer, answer)
			})
			if err != nil {
				return false, err
			}
		}

		out, err := lifecycle.Submit(g, self.ParticipantID, answer, correct, now, e.timing)
		res.Mistakes = out.Mistakes
		res.LockedUntil = out.LockedUntil
		if err != nil {
			return false, err
		}
		res.IsCorrect = out.Correct

		if g.StartedAt != nil {
			drift := clientElapsedMs - now.Sub(*g.StartedAt).Milliseconds()
			e.logger.Debug().
				Str("game_id", g.ID).
				Str("user_id", userID).
				Int64("client_drift_ms", drift).
				Bool("correct", out.Correct).
				Msg("answer submitted")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	res.Finished = g.Status == domain.GameFinished
	res.WinnerID = g.WinnerID
	res.IsDraw = g.IsDraw
	return &res, nil
}

func (e *Engine) GiveUp(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return e.mutateGame(ctx, gameID, func(g *domain.Game, now time.Time) (bool, error) {
		self, _, ok := g.SideForUser(userID)
		if !ok {
			return false, domain.ErrNotAPlayer
		}
		if g.Status == domain.GameFinished {
			return false, nil
		}
		return true, lifecycle.Resign(g, self.ParticipantID, domain.EndResign, now)
	})
}

func (e *Engine) ActivateBerserk(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return e.mutateGame(ctx, gameID, func(g *domain.Game, now time.Time) (bool, error) {
		self, _, ok := g.SideForUser(userID)
		if !ok {
			return false, domain.ErrNotAPlayer
		}
		if self.Berserk && g.Status == domain.GameCountdown {
			return false, nil
		}
		if err := lifecycle.ActivateBerserk(g, self.ParticipantID); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Heartbeat records player activity so a player who is thinking is not resigned as AFK.
func (e *Engine) Heartbeat(ctx context.Context, gameID, userID string) (*domain.Game, error) {
	return e.mutateGame(ctx, gameID, func(g *domain.Game, now time.Time) (bool, error) {
		self, _, ok := g.SideForUser(userID)
		if !ok {
			return false, domain.ErrNotAPlayer
		}
		if g.Status != domain.GameActive {
			return false, nil
		}
		return true, lifecycle.Touch(g, self.ParticipantID, now)
	})
}

// mutateGame loads a game, applies overdue timer transitions and op, and persists the
// result. A lost compare-and-swap reruns everything against fresh state; once a game is
// finished every further attempt is a no-op.
func (e *Engine) mutateGame(ctx context.Context, gameID string, op gameOp) (*domain.Game, error) {
	for range constants.MaxConflictRetries {
		g, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		wasFinished := g.Status == domain.GameFinished

		now := e.clock.Now().UTC()
		advanced, events := lifecycle.Advance(g, now, e.timing)

		changed := false
		var opErr error
		if op != nil {
			changed, opErr = op(g, now)
		}
		if !advanced && !changed {
			return g, opErr
		}

		var persistErr error
		if !wasFinished && g.Status == domain.GameFinished {
			persistErr = e.resolve(ctx, g, now)
		} else {
			persistErr = e.store.UpdateGame(ctx, g)
		}
		if errors.Is(persistErr, domain.ErrConflict) {
			e.raceLost("game")
			continue
		}
		if persistErr != nil {
			return nil, persistErr
		}

		e.publisher.GameChanged(ctx, g)
		for _, ev := range events {
			e.publisher.Event(ctx, notify.Event{
				Kind:          string(ev.Kind),
				TournamentID:  g.TournamentID,
				GameID:        g.ID,
				ParticipantID: ev.ParticipantID,
			})
		}
		if g.Status == domain.GameFinished && !wasFinished {
			e.applyRatings(ctx, g.ID)
		}
		return g, opErr
	}
	return nil, domain.ErrConflict
}

// resolve scores a game that just finished and commits it together with both participants,
// who return to the lobby.
func (e *Engine) resolve(ctx context.Context, g *domain.Game, now time.Time) error {
	if err := g.CheckFinished(); err != nil {
		return fmt.Errorf("game %s: %w", g.ID, err)
	}

	batch := repository.Batch{Games: []*domain.Game{g}}
	for _, side := range []*domain.PlayerState{&g.A, &g.B} {
		if !side.Present() {
			continue
		}
		p, err := e.store.GetParticipantByID(ctx, side.ParticipantID)
		if err != nil {
			return fmt.Errorf("failed to load participant %s: %w", side.ParticipantID, err)
		}

		u := scoring.Calculate(e.rules, scoring.ResultFor(g, p.ID), side.Berserk, g.ProblemDifficulty, p.Streak)
		u.Apply(p)
		side.Points = u.ScoreDelta
		side.RatingDelta = u.RatingDelta
		side.RatingApplied = u.RatingDelta == 0

		if p.Status == domain.ParticipantInGame {
			since := now
			p.Status = domain.ParticipantInLobby
			p.LobbySince = &since
		}
		p.UpdatedAt = now
		batch.Participants = append(batch.Participants, p)
	}

	if err := e.store.Commit(ctx, batch); err != nil {
		return err
	}

	e.metrics.GamesResolved.WithLabelValues(string(g.EndReason)).Inc()
	e.logger.Info().
		Str("game_id", g.ID).
		Str("tournament_id", g.TournamentID).
		Str("reason", string(g.EndReason)).
		Str("winner_id", g.WinnerID).
		Bool("draw", g.IsDraw).
		Msg("game resolved")
	for _, p := range batch.Participants {
		e.publisher.ParticipantChanged(ctx, p)
	}
	return nil
}

// applyRatings pushes pending rating deltas of a finished game to the rating store and marks
// each side applied. Failures leave the side pending for the next sweep.
func (e *Engine) applyRatings(ctx context.Context, gameID string) {
	unlock := e.locks.lock("ratings:" + gameID)
	defer unlock()

	g, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to load game for ratings")
		return
	}

	applied := false
	for _, side := range []*domain.PlayerState{&g.A, &g.B} {
		if !side.Present() || side.RatingApplied {
			continue
		}
		delta, userID := side.RatingDelta, side.UserID
		_, err := callOracle(ctx, e, "ratings", func(ctx context.Context) (int, error) {
			return e.ratings.ApplyRatingDelta(ctx, userID, delta)
		})
		if err != nil {
			e.logger.Warn().Err(err).Str("game_id", gameID).Str("user_id", userID).Msg("rating update deferred")
			continue
		}
		side.RatingApplied = true
		applied = true
	}
	if !applied {
		return
	}

	for range constants.MaxConflictRetries {
		err := e.store.UpdateGame(ctx, g)
		if err == nil {
			return
		}
		if !errors.Is(err, domain.ErrConflict) {
			e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to record applied ratings")
			return
		}
		e.raceLost("ratings")
		fresh, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return
		}
		fresh.A.RatingApplied = fresh.A.RatingApplied || g.A.RatingApplied
		fresh.B.RatingApplied = fresh.B.RatingApplied || g.B.RatingApplied
		g = fresh
	}
}

// CurrentGame returns the unfinished game a participant is seated in, with overdue timers
// applied. ErrGameNotFound means the participant is not playing.
func (e *Engine) CurrentGame(ctx context.Context, tournamentID, userID string) (*domain.Game, error) {
	p, err := e.store.GetParticipant(ctx, tournamentID, userID)
	if err != nil {
		return nil, err
	}
	open, err := e.store.ListGames(ctx, repository.GameFilter{
		TournamentID: tournamentID,
		Statuses:     []domain.GameStatus{domain.GameCountdown, domain.GameActive},
	})
	if err != nil {
		return nil, err
	}
	for _, g := range open {
		if _, _, ok := g.Side(p.ID); ok {
			return e.GetGame(ctx, g.ID)
		}
	}
	return nil, domain.ErrGameNotFound
}
