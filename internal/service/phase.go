package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AdvanceTournament runs one phase step for a tournament: start it when due, end it when its
// time is up, and otherwise sweep game deadlines and pair whoever is waiting.
func (e *Engine) AdvanceTournament(ctx context.Context, tournamentID string) error {
	unlock := e.locks.lock(tournamentLock(tournamentID))
	defer unlock()

	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	now := e.clock.Now().UTC()

	if t.Status == domain.TournamentScheduled {
		if now.Before(t.StartTime) {
			return nil
		}
		if err := e.startTournament(ctx, t, now); err != nil {
			return err
		}
	}
	if t.Status != domain.TournamentActive {
		return nil
	}
	if !now.Before(t.EndTime()) {
		return e.finishTournament(ctx, t)
	}

	e.sweepGames(ctx, t.ID)

	switch t.Type {
	case domain.TournamentArena:
		_, err = e.runArenaCycle(ctx, t)
	case domain.TournamentSwiss:
		_, err = e.runSwissRound(ctx, t)
	}
	return err
}

// startTournament activates a scheduled tournament and moves registered players into the
// lobby in one commit.
func (e *Engine) startTournament(ctx context.Context, t *domain.Tournament, now time.Time) error {
	all, err := e.store.ListParticipants(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to list participants: %w", err)
	}

	t.Status = domain.TournamentActive
	t.UpdatedAt = now
	batch := repository.Batch{Tournament: t}
	for _, p := range filterStatus(all, domain.ParticipantRegistered) {
		since := now
		p.Status = domain.ParticipantInLobby
		p.LobbySince = &since
		p.UpdatedAt = now
		batch.Participants = append(batch.Participants, p)
	}

	if err := e.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.raceLost("phase")
		}
		return fmt.Errorf("failed to start tournament: %w", err)
	}

	e.metrics.PhaseChanges.WithLabelValues(string(domain.TournamentActive)).Inc()
	e.logger.Info().
		Str("tournament_id", t.ID).
		Str("type", string(t.Type)).
		Int("players", len(batch.Participants)).
		Msg("tournament started")
	e.publisher.TournamentChanged(ctx, t)
	for _, p := range batch.Participants {
		e.publisher.ParticipantChanged(ctx, p)
	}
	return nil
}

// finishTournament draws every open game and freezes the tournament. Callers hold the
// tournament lock.
func (e *Engine) finishTournament(ctx context.Context, t *domain.Tournament) error {
	open, err := e.store.ListGames(ctx, repository.GameFilter{
		TournamentID: t.ID,
		Statuses:     []domain.GameStatus{domain.GameCountdown, domain.GameActive},
	})
	if err != nil {
		return fmt.Errorf("failed to list open games: %w", err)
	}
	for _, g := range open {
		_, err := e.mutateGame(ctx, g.ID, func(g *domain.Game, now time.Time) (bool, error) {
			return lifecycle.ForceDraw(g, domain.EndTournamentEnd, now), nil
		})
		if err != nil {
			return fmt.Errorf("failed to close game %s: %w", g.ID, err)
		}
	}

	now := e.clock.Now().UTC()
	t.Status = domain.TournamentFinished
	t.UpdatedAt = now
	if err := e.store.UpdateTournament(ctx, t); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.raceLost("phase")
		}
		return fmt.Errorf("failed to finish tournament: %w", err)
	}

	e.metrics.PhaseChanges.WithLabelValues(string(domain.TournamentFinished)).Inc()
	e.logger.Info().
		Str("tournament_id", t.ID).
		Int("closed_games", len(open)).
		Msg("tournament finished")
	e.publisher.TournamentChanged(ctx, t)
	return nil
}

// sweepGames applies overdue timers to every open game of a tournament.
func (e *Engine) sweepGames(ctx context.Context, tournamentID string) {
	open, err := e.store.ListGames(ctx, repository.GameFilter{
		TournamentID: tournamentID,
		Statuses:     []domain.GameStatus{domain.GameCountdown, domain.GameActive},
	})
	if err != nil {
		e.logger.Error().Err(err).Str("tournament_id", tournamentID).Msg("failed to list open games")
		return
	}
	for _, g := range open {
		if _, err := e.mutateGame(ctx, g.ID, nil); err != nil {
			e.logger.Error().Err(err).Str("game_id", g.ID).Msg("failed to sweep game")
		}
	}
}

// RetryPendingRatings pushes rating deltas that an earlier attempt could not apply.
func (e *Engine) RetryPendingRatings(ctx context.Context) {
	pending, err := e.store.ListGames(ctx, repository.GameFilter{PendingRatings: true})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to list games with pending ratings")
		return
	}
	for _, g := range pending {
		e.applyRatings(ctx, g.ID)
	}
}

// PhaseController drives every live tournament forward on each tick.
type PhaseController struct {
	engine *Engine
	store  repository.Store
	logger zerolog.Logger
}

func NewPhaseController(engine *Engine, store repository.Store, logger zerolog.Logger) *PhaseController {
	return &PhaseController{
		engine: engine,
		store:  store,
		logger: logger.With().Str("component", "phase").Logger(),
	}
}

// Tick advances all scheduled and active tournaments concurrently. A failing tournament is
// logged and does not hold up the others.
func (c *PhaseController) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.TickTimeout)
	defer cancel()

	live, err := c.store.ListTournaments(ctx, domain.TournamentScheduled, domain.TournamentActive)
	if err != nil {
		return fmt.Errorf("failed to list tournaments: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(constants.TickConcurrency)
	for _, t := range live {
		g.Go(func() error {
			if err := c.engine.AdvanceTournament(ctx, t.ID); err != nil {
				c.logger.Error().Err(err).Str("tournament_id", t.ID).Msg("failed to advance tournament")
			}
			return nil
		})
	}
	_ = g.Wait()

	c.engine.RetryPendingRatings(ctx)
	return nil
}
