package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tourney-engine/internal/domain"
	"tourney-engine/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downRatings fails rating writes while down is set.
type downRatings struct {
	*repository.MemoryRatings
	down atomic.Bool
}

func (r *downRatings) ApplyRatingDelta(ctx context.Context, userID string, delta int) (int, error) {
	if r.down.Load() {
		return 0, errors.New("rating store unreachable")
	}
	return r.MemoryRatings.ApplyRatingDelta(ctx, userID, delta)
}

func TestTournamentStartMovesRegisteredIntoLobby(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, err := h.engine.CreateTournament(ctx, CreateTournamentInput{
		Name:                  "Later",
		Type:                  domain.TournamentArena,
		StartTime:             epoch.Add(time.Minute),
		DurationMinutes:       10,
		TimePerProblemSeconds: 60,
	})
	require.NoError(t, err)
	h.join(t, tr.ID, map[string]int{"solo": 1200})

	h.advance(t, tr.ID)
	tr, err = h.engine.GetTournament(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentScheduled, tr.Status)
	assert.Equal(t, domain.ParticipantRegistered, h.participant(t, tr.ID, "solo").Status)

	h.clock.Advance(time.Minute)
	h.advance(t, tr.ID)
	tr, err = h.engine.GetTournament(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentActive, tr.Status)

	p := h.participant(t, tr.ID, "solo")
	assert.Equal(t, domain.ParticipantInLobby, p.Status)
	require.NotNil(t, p.LobbySince)
	assert.True(t, p.LobbySince.Equal(epoch.Add(time.Minute)))
}

func TestTournamentEndDrawsOpenGames(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, err := h.engine.CreateTournament(ctx, CreateTournamentInput{
		Name:                  "Short",
		Type:                  domain.TournamentArena,
		StartTime:             epoch,
		DurationMinutes:       1,
		TimePerProblemSeconds: 120,
	})
	require.NoError(t, err)
	h.join(t, tr.ID, map[string]int{"alice": 1200, "bob": 1200})
	h.advance(t, tr.ID)
	g := h.gameOf(t, tr.ID, "alice")

	h.clock.Advance(10 * time.Second)
	for _, user := range []string{"alice", "bob"} {
		_, err := h.engine.Heartbeat(ctx, g.ID, user)
		require.NoError(t, err)
	}

	h.clock.Advance(55 * time.Second)
	h.advance(t, tr.ID)

	tr, err = h.engine.GetTournament(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentFinished, tr.Status)

	final, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameFinished, final.Status)
	assert.True(t, final.IsDraw)
	assert.Equal(t, domain.EndTournamentEnd, final.EndReason)

	for _, user := range []string{"alice", "bob"} {
		p := h.participant(t, tr.ID, user)
		assert.Equal(t, 0, p.Score)
		assert.Equal(t, 1, p.Draws)
	}

	// finished tournaments are frozen
	h.clock.Advance(time.Minute)
	h.advance(t, tr.ID)
	assert.Len(t, h.games(t, tr.ID), 1)
	_, err = h.engine.Withdraw(ctx, tr.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrTournamentFinished)
}

func TestSweepResolvesAbandonedGame(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)

	// nobody touches the game; the tick alone must resolve it
	h.clock.Advance(25 * time.Second)
	h.advance(t, tr.ID)

	final, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameFinished, final.Status)
	assert.Equal(t, domain.EndDoubleAFK, final.EndReason)

	// both are back in the lobby and the same tick paired them again
	assert.Len(t, h.games(t, tr.ID), 2)
}

func TestPendingRatingsRetried(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ratings := &downRatings{MemoryRatings: h.ratings}
	h.engine.ratings = ratings
	tr, g := startArenaGame(t, h)

	ratings.down.Store(true)
	_, err := h.engine.GiveUp(ctx, g.ID, "bob")
	require.NoError(t, err)

	pending, err := h.store.ListGames(ctx, repository.GameFilter{PendingRatings: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, h.participant(t, tr.ID, "alice").Score, "scoring does not wait for ratings")

	ratings.down.Store(false)
	h.engine.RetryPendingRatings(ctx)

	pending, err = h.store.ListGames(ctx, repository.GameFilter{PendingRatings: true})
	require.NoError(t, err)
	assert.Empty(t, pending)

	rating, err := h.ratings.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1312, rating)

	// a second retry must not apply the delta again
	h.engine.RetryPendingRatings(ctx)
	rating, err = h.ratings.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1312, rating)
}

func TestPhaseControllerTick(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	current := h.tournament(t, domain.TournamentArena, 0)
	later, err := h.engine.CreateTournament(ctx, CreateTournamentInput{
		Name:                  "Tomorrow",
		Type:                  domain.TournamentSwiss,
		StartTime:             epoch.Add(24 * time.Hour),
		DurationMinutes:       60,
		TimePerProblemSeconds: 60,
		TotalRounds:           5,
	})
	require.NoError(t, err)
	h.join(t, current.ID, map[string]int{"a": 1200, "b": 1300})

	controller := NewPhaseController(h.engine, h.store, zerolog.Nop())
	require.NoError(t, controller.Tick(ctx))

	got, err := h.engine.GetTournament(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentActive, got.Status)
	assert.Len(t, h.games(t, current.ID), 1)

	got, err = h.engine.GetTournament(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentScheduled, got.Status)
}

func TestSchedulerRunsTick(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.tournament(t, domain.TournamentArena, 0)

	controller := NewPhaseController(h.engine, h.store, zerolog.Nop())
	sch, err := NewScheduler(controller, h.cfg, h.clock, zerolog.Nop())
	require.NoError(t, err)
	sch.Start()
	t.Cleanup(func() { assert.NoError(t, sch.Stop()) })

	sch.tick()
	got, err := h.engine.GetTournament(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentActive, got.Status)
}
