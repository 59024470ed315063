package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tourney-engine/internal/domain"
)

var participantTable = newTable("participants",
	"id", "tournament_id", "user_id", "status", "score", "wins", "losses", "draws", "streak",
	"is_on_fire", "is_berserk_next", "last_opponent_id", "lobby_since", "pause_count",
	"last_paused_at", "can_rejoin_at", "version", "joined_at", "updated_at",
)

func participantArgs(p *domain.Participant, version int64) []any {
	return []any{
		p.ID, p.TournamentID, p.UserID, string(p.Status), p.Score, p.Wins, p.Losses, p.Draws, p.Streak,
		p.IsOnFire, p.IsBerserkNext, nullString(p.LastOpponentID), nullTime(p.LobbySince), p.PauseCount,
		nullTime(p.LastPausedAt), nullTime(p.CanRejoinAt), version, p.JoinedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	var p domain.Participant
	var status string
	var lastOpponent sql.NullString
	var lobbySince, lastPaused, canRejoin sql.NullTime
	err := row.Scan(
		&p.ID, &p.TournamentID, &p.UserID, &status, &p.Score, &p.Wins, &p.Losses, &p.Draws, &p.Streak,
		&p.IsOnFire, &p.IsBerserkNext, &lastOpponent, &lobbySince, &p.PauseCount,
		&lastPaused, &canRejoin, &p.Version, &p.JoinedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	p.LastOpponentID = lastOpponent.String
	p.LobbySince = timePtr(lobbySince)
	p.LastPausedAt = timePtr(lastPaused)
	p.CanRejoinAt = timePtr(canRejoin)
	return &p, nil
}

func (s *SQLStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if _, err := s.db.ExecContext(ctx, participantTable.insertSQL, participantArgs(p, p.Version)...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (s *SQLStore) getParticipant(ctx context.Context, where string, args ...any) (*domain.Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx, participantTable.selectSQL+" WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (s *SQLStore) GetParticipant(ctx context.Context, tournamentID, userID string) (*domain.Participant, error) {
	return s.getParticipant(ctx, "tournament_id = ? AND user_id = ?", tournamentID, userID)
}

func (s *SQLStore) GetParticipantByID(ctx context.Context, id string) (*domain.Participant, error) {
	return s.getParticipant(ctx, "id = ?", id)
}

func (s *SQLStore) ListParticipants(ctx context.Context, tournamentID string) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		participantTable.selectSQL+" WHERE tournament_id = ? ORDER BY joined_at, id", tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	out := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	return s.Commit(ctx, Batch{Participants: []*domain.Participant{p}})
}
