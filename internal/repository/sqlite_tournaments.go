package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tourney-engine/internal/domain"
)

var tournamentTable = newTable("tournaments",
	"id", "name", "type", "status", "category", "start_time", "duration_minutes",
	"time_per_problem_seconds", "min_rating", "max_rating", "total_rounds", "current_round",
	"version", "created_at", "updated_at",
)

func tournamentArgs(t *domain.Tournament, version int64) []any {
	return []any{
		t.ID, t.Name, string(t.Type), string(t.Status), t.Category, t.StartTime.UTC(), t.DurationMinutes,
		t.TimePerProblemSeconds, t.MinRating, t.MaxRating, t.TotalRounds, t.CurrentRound,
		version, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	}
}

func scanTournament(row rowScanner) (*domain.Tournament, error) {
	var t domain.Tournament
	var typ, status string
	err := row.Scan(
		&t.ID, &t.Name, &typ, &status, &t.Category, &t.StartTime, &t.DurationMinutes,
		&t.TimePerProblemSeconds, &t.MinRating, &t.MaxRating, &t.TotalRounds, &t.CurrentRound,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TournamentType(typ)
	t.Status = domain.TournamentStatus(status)
	t.StartTime = t.StartTime.UTC()
	return &t, nil
}

func (s *SQLStore) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	if _, err := s.db.ExecContext(ctx, tournamentTable.insertSQL, tournamentArgs(t, t.Version)...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert tournament: %w", err)
	}
	return nil
}

func (s *SQLStore) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	t, err := scanTournament(s.db.QueryRowContext(ctx, tournamentTable.selectSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) ListTournaments(ctx context.Context, statuses ...domain.TournamentStatus) ([]domain.Tournament, error) {
	query := tournamentTable.selectSQL
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY start_time, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	out := []domain.Tournament{}
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateTournament(ctx context.Context, t *domain.Tournament) error {
	return s.Commit(ctx, Batch{Tournament: t})
}
