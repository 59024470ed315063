package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tourney-engine/internal/config"
	"tourney-engine/internal/database"
	"tourney-engine/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "up", zerolog.Nop()))
	t.Cleanup(func() { db.Close() })
	return db
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(zerolog.Nop()),
		"sqlite": NewSQLStore(openTestDB(t), zerolog.Nop()),
	}
}

func seedTournament(t *testing.T, s Store) *domain.Tournament {
	t.Helper()
	tour := &domain.Tournament{
		ID:                    "t1",
		Name:                  "Friday Arena",
		Type:                  domain.TournamentArena,
		Status:                domain.TournamentScheduled,
		Category:              "algebra",
		StartTime:             base,
		DurationMinutes:       30,
		TimePerProblemSeconds: 60,
		CreatedAt:             base,
		UpdatedAt:             base,
	}
	require.NoError(t, s.CreateTournament(context.Background(), tour))
	return tour
}

func seedParticipant(t *testing.T, s Store, id, userID string) *domain.Participant {
	t.Helper()
	since := base.Add(time.Minute)
	p := &domain.Participant{
		ID:           id,
		TournamentID: "t1",
		UserID:       userID,
		Status:       domain.ParticipantInLobby,
		LobbySince:   &since,
		JoinedAt:     base,
		UpdatedAt:    base,
	}
	require.NoError(t, s.CreateParticipant(context.Background(), p))
	return p
}

func TestTournamentCAS(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tour := seedTournament(t, s)

			got, err := s.GetTournament(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "Friday Arena", got.Name)
			assert.True(t, got.StartTime.Equal(base))
			assert.Equal(t, domain.TournamentArena, got.Type)

			stale := *got
			got.Status = domain.TournamentActive
			require.NoError(t, s.UpdateTournament(ctx, got))
			assert.Equal(t, int64(1), got.Version)

			stale.Status = domain.TournamentFinished
			assert.ErrorIs(t, s.UpdateTournament(ctx, &stale), domain.ErrConflict)

			active, err := s.ListTournaments(ctx, domain.TournamentActive)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, tour.ID, active[0].ID)

			none, err := s.ListTournaments(ctx, domain.TournamentFinished)
			require.NoError(t, err)
			assert.Empty(t, none)

			_, err = s.GetTournament(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrTournamentNotFound)
		})
	}
}

func TestParticipantUniqueAndCAS(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedTournament(t, s)
			seedParticipant(t, s, "p1", "alice")

			dup := &domain.Participant{ID: "p2", TournamentID: "t1", UserID: "alice", Status: domain.ParticipantInLobby, JoinedAt: base, UpdatedAt: base}
			assert.ErrorIs(t, s.CreateParticipant(ctx, dup), domain.ErrConflict)

			p, err := s.GetParticipant(ctx, "t1", "alice")
			require.NoError(t, err)
			require.NotNil(t, p.LobbySince)
			assert.True(t, p.LobbySince.Equal(base.Add(time.Minute)))
			assert.Empty(t, p.LastOpponentID)

			first, second := *p, *p
			first.Status = domain.ParticipantInGame
			first.LastOpponentID = "p9"
			first.LobbySince = nil
			require.NoError(t, s.UpdateParticipant(ctx, &first))

			second.Status = domain.ParticipantPaused
			assert.ErrorIs(t, s.UpdateParticipant(ctx, &second), domain.ErrConflict)

			got, err := s.GetParticipantByID(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, domain.ParticipantInGame, got.Status)
			assert.Equal(t, "p9", got.LastOpponentID)
			assert.Nil(t, got.LobbySince)

			_, err = s.GetParticipant(ctx, "t1", "bob")
			assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
		})
	}
}

func TestCommitIsAllOrNothing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedTournament(t, s)
			a := seedParticipant(t, s, "pa", "alice")
			b := seedParticipant(t, s, "pb", "bob")

			// someone else moves b first
			moved := *b
			moved.Status = domain.ParticipantPaused
			require.NoError(t, s.UpdateParticipant(ctx, &moved))

			g := &domain.Game{
				ID:              "g1",
				TournamentID:    "t1",
				A:               domain.PlayerState{ParticipantID: "pa", UserID: "alice"},
				B:               domain.PlayerState{ParticipantID: "pb", UserID: "bob"},
				Status:          domain.GameCountdown,
				CountdownEndsAt: base.Add(5 * time.Second),
				CreatedAt:       base,
			}
			a.Status, b.Status = domain.ParticipantInGame, domain.ParticipantInGame
			err := s.Commit(ctx, Batch{NewGames: []*domain.Game{g}, Participants: []*domain.Participant{a, b}})
			require.ErrorIs(t, err, domain.ErrConflict)

			_, err = s.GetGame(ctx, "g1")
			assert.ErrorIs(t, err, domain.ErrGameNotFound)
			stillLobby, err := s.GetParticipantByID(ctx, "pa")
			require.NoError(t, err)
			assert.Equal(t, domain.ParticipantInLobby, stillLobby.Status)
			assert.Equal(t, int64(0), stillLobby.Version)
		})
	}
}

func TestGameRoundTripAndFilters(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedTournament(t, s)
			a := seedParticipant(t, s, "pa", "alice")
			seedParticipant(t, s, "pb", "bob")
			seedParticipant(t, s, "pc", "carol")

			started := base.Add(5 * time.Second)
			locked := base.Add(9 * time.Second)
			live := &domain.Game{
				ID:                "g1",
				TournamentID:      "t1",
				Round:             2,
				A:                 domain.PlayerState{ParticipantID: "pa", UserID: "alice", Berserk: true, TimeLimitMs: 30_000, Mistakes: 1, LockedUntil: &locked},
				B:                 domain.PlayerState{ParticipantID: "pb", UserID: "bob", TimeLimitMs: 60_000},
				ProblemID:         "prob-1",
				ProblemAnswer:     "42",
				ProblemDifficulty: 3.5,
				BaseTimeMs:        60_000,
				Status:            domain.GameActive,
				CountdownEndsAt:   started,
				StartedAt:         &started,
				CreatedAt:         base,
			}
			finished := base.Add(time.Minute)
			bye := &domain.Game{
				ID:              "g2",
				TournamentID:    "t1",
				Round:           2,
				A:               domain.PlayerState{ParticipantID: "pc", UserID: "carol", Points: 1, RatingApplied: true},
				Status:          domain.GameFinished,
				CountdownEndsAt: base,
				FinishedAt:      &finished,
				IsBye:           true,
				EndReason:       domain.EndBye,
				CreatedAt:       base.Add(time.Second),
			}
			require.NoError(t, s.Commit(ctx, Batch{NewGames: []*domain.Game{live, bye}}))

			got, err := s.GetGame(ctx, "g1")
			require.NoError(t, err)
			assert.Equal(t, 2, got.Round)
			assert.True(t, got.A.Berserk)
			assert.Equal(t, int64(30_000), got.A.TimeLimitMs)
			require.NotNil(t, got.A.LockedUntil)
			assert.True(t, got.A.LockedUntil.Equal(locked))
			assert.Nil(t, got.B.LockedUntil)
			assert.Equal(t, "42", got.ProblemAnswer)
			assert.InDelta(t, 3.5, got.ProblemDifficulty, 1e-9)
			require.NotNil(t, got.StartedAt)
			assert.True(t, got.StartedAt.Equal(started))

			gotBye, err := s.GetGame(ctx, "g2")
			require.NoError(t, err)
			assert.True(t, gotBye.IsBye)
			assert.False(t, gotBye.B.Present())
			assert.NoError(t, gotBye.CheckFinished())

			// finish g1 with pending ratings
			got.Status = domain.GameFinished
			got.WinnerID = a.ID
			got.FinishedAt = &finished
			got.A.RatingDelta = 17
			require.NoError(t, s.UpdateGame(ctx, got))
			assert.Equal(t, int64(1), got.Version)

			round := 2
			inRound, err := s.ListGames(ctx, GameFilter{TournamentID: "t1", Round: &round})
			require.NoError(t, err)
			assert.Len(t, inRound, 2)

			arena := 0
			none, err := s.ListGames(ctx, GameFilter{TournamentID: "t1", Round: &arena})
			require.NoError(t, err)
			assert.Empty(t, none)

			open, err := s.ListGames(ctx, GameFilter{TournamentID: "t1", Statuses: []domain.GameStatus{domain.GameCountdown, domain.GameActive}})
			require.NoError(t, err)
			assert.Empty(t, open)

			pending, err := s.ListGames(ctx, GameFilter{TournamentID: "t1", PendingRatings: true})
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "g1", pending[0].ID)
		})
	}
}

func TestRatingsClampAtZero(t *testing.T) {
	ratings := map[string]RatingStore{
		"memory": NewMemoryRatings(1200),
		"sqlite": NewSQLRatings(openTestDB(t), &config.Config{DefaultRating: 1200}, zerolog.Nop()),
	}
	for name, r := range ratings {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rating, err := r.GetRating(ctx, "new-user")
			require.NoError(t, err)
			assert.Equal(t, 1200, rating)

			rating, err = r.ApplyRatingDelta(ctx, "new-user", 16)
			require.NoError(t, err)
			assert.Equal(t, 1216, rating)

			rating, err = r.ApplyRatingDelta(ctx, "new-user", -5000)
			require.NoError(t, err)
			assert.Equal(t, 0, rating)

			rating, err = r.GetRating(ctx, "new-user")
			require.NoError(t, err)
			assert.Equal(t, 0, rating)
		})
	}
}

func TestSQLRatingsSetRating(t *testing.T) {
	ctx := context.Background()
	r := NewSQLRatings(openTestDB(t), &config.Config{DefaultRating: 1200}, zerolog.Nop())

	require.NoError(t, r.SetRating(ctx, "seeded", 1550))
	rating, err := r.GetRating(ctx, "seeded")
	require.NoError(t, err)
	assert.Equal(t, 1550, rating)

	require.NoError(t, r.SetRating(ctx, "seeded", -20))
	rating, err = r.GetRating(ctx, "seeded")
	require.NoError(t, err)
	assert.Equal(t, 0, rating)
}
