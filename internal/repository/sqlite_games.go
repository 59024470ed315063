package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tourney-engine/internal/domain"
)

func sideColumns(prefix string) []string {
	cols := []string{
		"participant_id", "user_id", "answer", "time_ms", "mistakes", "berserk", "time_limit_ms",
		"locked_until", "last_action_at", "afk_warned", "points", "rating_delta", "rating_applied",
	}
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return cols
}

var gameTable = newTable("games", gameColumns()...)

func gameColumns() []string {
	cols := []string{"id", "tournament_id", "round"}
	cols = append(cols, sideColumns("a_")...)
	cols = append(cols, sideColumns("b_")...)
	return append(cols,
		"problem_id", "problem_answer", "problem_difficulty", "base_time_ms", "status",
		"countdown_ends_at", "started_at", "finished_at", "winner_id", "is_draw", "is_bye",
		"end_reason", "version", "created_at",
	)
}

func sideArgs(p *domain.PlayerState) []any {
	return []any{
		nullString(p.ParticipantID), nullString(p.UserID), p.Answer, p.TimeMs, p.Mistakes, p.Berserk,
		p.TimeLimitMs, nullTime(p.LockedUntil), nullTime(p.LastActionAt), p.AFKWarned, p.Points,
		p.RatingDelta, p.RatingApplied,
	}
}

func gameArgs(g *domain.Game, version int64) []any {
	var round any
	if g.Round > 0 {
		round = g.Round
	}
	args := []any{g.ID, g.TournamentID, round}
	args = append(args, sideArgs(&g.A)...)
	args = append(args, sideArgs(&g.B)...)
	return append(args,
		g.ProblemID, g.ProblemAnswer, g.ProblemDifficulty, g.BaseTimeMs, string(g.Status),
		g.CountdownEndsAt.UTC(), nullTime(g.StartedAt), nullTime(g.FinishedAt), nullString(g.WinnerID),
		g.IsDraw, g.IsBye, string(g.EndReason), version, g.CreatedAt.UTC(),
	)
}

type sideScan struct {
	participantID, userID     sql.NullString
	lockedUntil, lastActionAt sql.NullTime
}

func (s *sideScan) dest(p *domain.PlayerState) []any {
	return []any{
		&s.participantID, &s.userID, &p.Answer, &p.TimeMs, &p.Mistakes, &p.Berserk,
		&p.TimeLimitMs, &s.lockedUntil, &s.lastActionAt, &p.AFKWarned, &p.Points,
		&p.RatingDelta, &p.RatingApplied,
	}
}

func (s *sideScan) apply(p *domain.PlayerState) {
	p.ParticipantID = s.participantID.String
	p.UserID = s.userID.String
	p.LockedUntil = timePtr(s.lockedUntil)
	p.LastActionAt = timePtr(s.lastActionAt)
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var g domain.Game
	var round sql.NullInt64
	var a, b sideScan
	var status, endReason string
	var winner sql.NullString
	var startedAt, finishedAt sql.NullTime

	dest := []any{&g.ID, &g.TournamentID, &round}
	dest = append(dest, a.dest(&g.A)...)
	dest = append(dest, b.dest(&g.B)...)
	dest = append(dest,
		&g.ProblemID, &g.ProblemAnswer, &g.ProblemDifficulty, &g.BaseTimeMs, &status,
		&g.CountdownEndsAt, &startedAt, &finishedAt, &winner, &g.IsDraw, &g.IsBye,
		&endReason, &g.Version, &g.CreatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	g.Round = int(round.Int64)
	a.apply(&g.A)
	b.apply(&g.B)
	g.Status = domain.GameStatus(status)
	g.EndReason = domain.EndReason(endReason)
	g.WinnerID = winner.String
	g.CountdownEndsAt = g.CountdownEndsAt.UTC()
	g.StartedAt = timePtr(startedAt)
	g.FinishedAt = timePtr(finishedAt)

	if err := g.CheckFinished(); err != nil {
		return nil, fmt.Errorf("game %s: %w", g.ID, err)
	}
	return &g, nil
}

func (s *SQLStore) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, gameTable.selectSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game %s: %w", id, err)
	}
	return g, nil
}

func (s *SQLStore) ListGames(ctx context.Context, filter GameFilter) ([]domain.Game, error) {
	var where []string
	var args []any
	if filter.TournamentID != "" {
		where = append(where, "tournament_id = ?")
		args = append(args, filter.TournamentID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Round != nil {
		if *filter.Round == 0 {
			where = append(where, "round IS NULL")
		} else {
			where = append(where, "round = ?")
			args = append(args, *filter.Round)
		}
	}
	if filter.PendingRatings {
		where = append(where, "status = 'finished' AND ((a_participant_id IS NOT NULL AND NOT a_rating_applied) OR (b_participant_id IS NOT NULL AND NOT b_rating_applied))")
	}

	query := gameTable.selectSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	out := []domain.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if errors.Is(err, domain.ErrMalformedGame) {
			s.logger.Error().Err(err).Msg("skipping malformed game")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateGame(ctx context.Context, g *domain.Game) error {
	return s.Commit(ctx, Batch{Games: []*domain.Game{g}})
}
