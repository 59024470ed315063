package repository

import (
	"context"

	"tourney-engine/internal/domain"
)

// Store persists tournaments, participants and games. Every update is a compare-and-swap on
// the record's Version and fails with domain.ErrConflict when the stored version moved on.
// A successful update bumps Version on the passed struct.
type Store interface {
	CreateTournament(ctx context.Context, t *domain.Tournament) error
	GetTournament(ctx context.Context, id string) (*domain.Tournament, error)
	ListTournaments(ctx context.Context, statuses ...domain.TournamentStatus) ([]domain.Tournament, error)
	UpdateTournament(ctx context.Context, t *domain.Tournament) error

	// CreateParticipant fails with domain.ErrConflict when the user already joined.
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, tournamentID, userID string) (*domain.Participant, error)
	GetParticipantByID(ctx context.Context, id string) (*domain.Participant, error)
	ListParticipants(ctx context.Context, tournamentID string) ([]domain.Participant, error)
	UpdateParticipant(ctx context.Context, p *domain.Participant) error

	GetGame(ctx context.Context, id string) (*domain.Game, error)
	ListGames(ctx context.Context, filter GameFilter) ([]domain.Game, error)
	UpdateGame(ctx context.Context, g *domain.Game) error

	// Commit applies a batch atomically: all updates succeed or none do.
	Commit(ctx context.Context, b Batch) error
}

// Batch groups writes that must land together, e.g. a pairing (new games plus participants
// moving into in_game) or a resolution (finished game plus both participants).
type Batch struct {
	Tournament   *domain.Tournament
	NewGames     []*domain.Game
	Games        []*domain.Game
	Participants []*domain.Participant
}

type GameFilter struct {
	TournamentID   string
	Statuses       []domain.GameStatus
	Round          *int
	PendingRatings bool
}

func (f GameFilter) matches(g *domain.Game) bool {
	if f.TournamentID != "" && g.TournamentID != f.TournamentID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if g.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Round != nil && g.Round != *f.Round {
		return false
	}
	if f.PendingRatings {
		if g.Status != domain.GameFinished {
			return false
		}
		pending := (g.A.Present() && !g.A.RatingApplied) || (g.B.Present() && !g.B.RatingApplied)
		if !pending {
			return false
		}
	}
	return true
}

// RatingStore is the user rating oracle. Ratings never go below zero.
type RatingStore interface {
	GetRating(ctx context.Context, userID string) (int, error)
	ApplyRatingDelta(ctx context.Context, userID string, delta int) (int, error)
}
