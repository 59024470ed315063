package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type CreateTournamentInput struct {
	Name                  string
	Type                  domain.TournamentType
	Category              string
	StartTime             time.Time
	DurationMinutes       int
	TimePerProblemSeconds int
	MinRating             int
	MaxRating             int
	TotalRounds           int
}

func (in CreateTournamentInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidTournament)
	case in.Type != domain.TournamentArena && in.Type != domain.TournamentSwiss:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTournament, in.Type)
	case in.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidTournament)
	case in.TimePerProblemSeconds <= 0:
		return fmt.Errorf("%w: time per problem must be positive", domain.ErrInvalidTournament)
	case in.Type == domain.TournamentSwiss && in.TotalRounds <= 0:
		return fmt.Errorf("%w: swiss needs at least one round", domain.ErrInvalidTournament)
	case in.MinRating < 0 || in.MaxRating < 0:
		return fmt.Errorf("%w: ratings must not be negative", domain.ErrInvalidTournament)
	case in.MinRating > 0 && in.MaxRating > 0 && in.MinRating > in.MaxRating:
		return fmt.Errorf("%w: min rating above max rating", domain.ErrInvalidTournament)
	}
	return nil
}

func (e *Engine) CreateTournament(ctx context.Context, in CreateTournamentInput) (*domain.Tournament, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	now := e.clock.Now().UTC()
	t := &domain.Tournament{
		ID:                    id,
		Name:                  strings.TrimSpace(in.Name),
		Type:                  in.Type,
		Status:                domain.TournamentScheduled,
		Category:              in.Category,
		StartTime:             in.StartTime.UTC(),
		DurationMinutes:       in.DurationMinutes,
		TimePerProblemSeconds: in.TimePerProblemSeconds,
		MinRating:             in.MinRating,
		MaxRating:             in.MaxRating,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if t.Type == domain.TournamentSwiss {
		t.TotalRounds = in.TotalRounds
	}

	if err := e.store.CreateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	e.logger.Info().
		Str("tournament_id", t.ID).
		Str("type", string(t.Type)).
		Time("start_time", t.StartTime).
		Msg("tournament created")
	e.publisher.TournamentChanged(ctx, t)
	return t, nil
}

// JoinTournament registers a user. Joining twice returns the existing participant; a
// withdrawn participant is revived with their score intact.
func (e *Engine) JoinTournament(ctx context.Context, tournamentID, userID string) (*domain.Participant, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}

	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TournamentFinished {
		return nil, domain.ErrTournamentFinished
	}

	existing, err := e.store.GetParticipant(ctx, tournamentID, userID)
	if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != domain.ParticipantWithdrawn {
		return existing, nil
	}

	rating, err := callOracle(ctx, e, "ratings", func(ctx context.Context) (int, error) {
		return e.ratings.GetRating(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if !t.AcceptsRating(rating) {
		return nil, fmt.Errorf("%w: rating %d", domain.ErrRatingOutOfRange, rating)
	}

	if existing != nil {
		return e.mutateParticipant(ctx, tournamentID, userID, func(p *domain.Participant, now time.Time) (bool, error) {
			if p.Status != domain.ParticipantWithdrawn {
				return false, nil
			}
			enterLobby(p, t, now)
			return true, nil
		})
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}
	now := e.clock.Now().UTC()
	p := &domain.Participant{
		ID:           id,
		TournamentID: tournamentID,
		UserID:       userID,
		JoinedAt:     now,
		UpdatedAt:    now,
	}
	enterLobby(p, t, now)

	if err := e.store.CreateParticipant(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.raceLost("join")
			return e.store.GetParticipant(ctx, tournamentID, userID)
		}
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	e.logger.Info().
		Str("tournament_id", tournamentID).
		Str("user_id", userID).
		Int("rating", rating).
		Str("status", string(p.Status)).
		Msg("participant joined")
	e.publisher.ParticipantChanged(ctx, p)
	return p, nil
}

// enterLobby puts a participant in the waiting state matching the tournament phase.
func enterLobby(p *domain.Participant, t *domain.Tournament, now time.Time) {
	if t.Status == domain.TournamentScheduled {
		p.Status = domain.ParticipantRegistered
		p.LobbySince = nil
		return
	}
	since := now
	p.Status = domain.ParticipantInLobby
	p.LobbySince = &since
}

func (e *Engine) Withdraw(ctx context.Context, tournamentID, userID string) (*domain.Participant, error) {
	if err := e.requireOpen(ctx, tournamentID); err != nil {
		return nil, err
	}
	return e.mutateParticipant(ctx, tournamentID, userID, func(p *domain.Participant, now time.Time) (bool, error) {
		switch p.Status {
		case domain.ParticipantWithdrawn:
			return false, nil
		case domain.ParticipantInGame:
			return false, domain.ErrParticipantInGame
		}
		p.Status = domain.ParticipantWithdrawn
		p.LobbySince = nil
		return true, nil
	})
}

// SetPaused takes a participant out of pairing or returns them to it. Pauses beyond the free
// allowance add a growing cooldown before the participant may resume.
func (e *Engine) SetPaused(ctx context.Context, tournamentID, userID string, paused bool) (*domain.Participant, error) {
	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TournamentFinished {
		return nil, domain.ErrTournamentFinished
	}

	return e.mutateParticipant(ctx, tournamentID, userID, func(p *domain.Participant, now time.Time) (bool, error) {
		switch p.Status {
		case domain.ParticipantWithdrawn:
			return false, domain.ErrWithdrawn
		case domain.ParticipantInGame:
			if paused {
				return false, domain.ErrParticipantInGame
			}
			return false, nil
		}

		if paused {
			if p.Status == domain.ParticipantPaused {
				return false, nil
			}
			p.Status = domain.ParticipantPaused
			p.LobbySince = nil
			p.PauseCount++
			pausedAt := now
			p.LastPausedAt = &pausedAt
			penalty := max(0, p.PauseCount-e.settings.FreePauses)
			rejoin := now.Add(time.Duration(penalty) * e.settings.RejoinCooldown)
			p.CanRejoinAt = &rejoin
			return true, nil
		}

		if p.Status != domain.ParticipantPaused {
			return false, nil
		}
		if p.CanRejoinAt != nil && now.Before(*p.CanRejoinAt) {
			return false, fmt.Errorf("%w: wait until %s", domain.ErrRejoinCooldown, p.CanRejoinAt.Format(time.RFC3339))
		}
		enterLobby(p, t, now)
		return true, nil
	})
}

// SetBerserkNext arms berserk for the participant's next game.
func (e *Engine) SetBerserkNext(ctx context.Context, tournamentID, userID string, berserk bool) (*domain.Participant, error) {
	if err := e.requireOpen(ctx, tournamentID); err != nil {
		return nil, err
	}
	return e.mutateParticipant(ctx, tournamentID, userID, func(p *domain.Participant, now time.Time) (bool, error) {
		if p.Status == domain.ParticipantWithdrawn {
			return false, domain.ErrWithdrawn
		}
		if p.IsBerserkNext == berserk {
			return false, nil
		}
		p.IsBerserkNext = berserk
		return true, nil
	})
}

// Standings ranks participants by score, then wins, then current streak.
func (e *Engine) Standings(ctx context.Context, tournamentID string) ([]domain.Standing, error) {
	if _, err := e.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	ps, err := e.store.ListParticipants(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(ps, func(a, b domain.Participant) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return cmp.Compare(b.Streak, a.Streak)
	})

	out := make([]domain.Standing, len(ps))
	for i, p := range ps {
		out[i] = domain.Standing{Rank: i + 1, Participant: p}
	}
	return out, nil
}

func (e *Engine) requireOpen(ctx context.Context, tournamentID string) error {
	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status == domain.TournamentFinished {
		return domain.ErrTournamentFinished
	}
	return nil
}

// mutateParticipant applies fn to a fresh copy and writes it back with compare-and-swap,
// re-reading on a lost race. fn reports whether it changed anything.
func (e *Engine) mutateParticipant(
	ctx context.Context,
	tournamentID, userID string,
	fn func(p *domain.Participant, now time.Time) (bool, error),
) (*domain.Participant, error) {
	for range constants.MaxConflictRetries {
		p, err := e.store.GetParticipant(ctx, tournamentID, userID)
		if err != nil {
			return nil, err
		}

		now := e.clock.Now().UTC()
		changed, err := fn(p, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return p, nil
		}

		p.UpdatedAt = now
		if err := e.store.UpdateParticipant(ctx, p); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				e.raceLost("participant")
				continue
			}
			return nil, err
		}

		e.logger.Debug().
			Str("tournament_id", tournamentID).
			Str("user_id", userID).
			Str("status", string(p.Status)).
			Msg("participant updated")
		e.publisher.ParticipantChanged(ctx, p)
		return p, nil
	}
	return nil, domain.ErrConflict
}
