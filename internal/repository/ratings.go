package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tourney-engine/internal/config"

	"github.com/rs/zerolog"
)

// SQLRatings stores user ratings next to the tournament tables. Users without a row have the
// configured default rating.
type SQLRatings struct {
	db            *sql.DB
	defaultRating int
	logger        zerolog.Logger
}

func NewSQLRatings(sqlDB *sql.DB, cfg *config.Config, logger zerolog.Logger) *SQLRatings {
	return &SQLRatings{
		db:            sqlDB,
		defaultRating: cfg.DefaultRating,
		logger:        logger,
	}
}

func (r *SQLRatings) GetRating(ctx context.Context, userID string) (int, error) {
	var rating int
	err := r.db.QueryRowContext(ctx, "SELECT rating FROM user_ratings WHERE user_id = ?", userID).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return r.defaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rating for %s: %w", userID, err)
	}
	return rating, nil
}

func (r *SQLRatings) ApplyRatingDelta(ctx context.Context, userID string, delta int) (int, error) {
	var rating int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_ratings (user_id, rating, updated_at)
		VALUES (?, MAX(0, ? + ?), ?)
		ON CONFLICT (user_id) DO UPDATE SET
			rating = MAX(0, user_ratings.rating + ?),
			updated_at = excluded.updated_at
		RETURNING rating`,
		userID, r.defaultRating, delta, time.Now().UTC(), delta,
	).Scan(&rating)
	if err != nil {
		return 0, fmt.Errorf("failed to apply rating delta for %s: %w", userID, err)
	}

	r.logger.Debug().Str("user_id", userID).Int("delta", delta).Int("rating", rating).Msg("rating updated")
	return rating, nil
}

func (r *SQLRatings) SetRating(ctx context.Context, userID string, rating int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_ratings (user_id, rating, updated_at) VALUES (?, MAX(0, ?), ?)
		ON CONFLICT (user_id) DO UPDATE SET rating = excluded.rating, updated_at = excluded.updated_at`,
		userID, rating, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set rating for %s: %w", userID, err)
	}
	return nil
}
