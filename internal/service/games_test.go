package service

import (
	"context"
	"testing"
	"time"

	"tourney-engine/internal/domain"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startArenaGame creates an arena with two players and returns their game once paired.
func startArenaGame(t *testing.T, h *harness) (*domain.Tournament, domain.Game) {
	t.Helper()
	tr := h.tournament(t, domain.TournamentArena, 0)
	h.join(t, tr.ID, map[string]int{"alice": 1300, "bob": 1250})
	h.advance(t, tr.ID)
	return tr, h.gameOf(t, tr.ID, "alice")
}

func TestArenaBerserkWin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr := h.tournament(t, domain.TournamentArena, 0)
	h.join(t, tr.ID, map[string]int{"alice": 1300, "bob": 1250})

	_, err := h.engine.SetBerserkNext(ctx, tr.ID, "alice", true)
	require.NoError(t, err)
	h.advance(t, tr.ID)

	g := h.gameOf(t, tr.ID, "alice")
	alice, _, _ := g.SideForUser("alice")
	assert.True(t, alice.Berserk)
	assert.Equal(t, domain.GameCountdown, g.Status)
	assert.False(t, h.participant(t, tr.ID, "alice").IsBerserkNext, "opt-in is consumed by the game")

	h.clock.Advance(5 * time.Second)
	active, err := h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, domain.GameActive, active.Status)
	alice, bob, _ := active.SideForUser("alice")
	assert.Equal(t, int64(30_000), alice.TimeLimitMs)
	assert.Equal(t, int64(60_000), bob.TimeLimitMs)

	h.clock.Advance(10 * time.Second)
	res, err := h.engine.SubmitAnswer(ctx, g.ID, "alice", " 42 ", 10_050)
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.True(t, res.Finished)

	a := h.participant(t, tr.ID, "alice")
	assert.Equal(t, 3, a.Score)
	assert.Equal(t, 1, a.Streak)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, domain.ParticipantInLobby, a.Status)

	b := h.participant(t, tr.ID, "bob")
	assert.Equal(t, 0, b.Score)
	assert.Equal(t, 1, b.Losses)

	final, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, final.WinnerID)
	assert.Equal(t, domain.EndCorrectAnswer, final.EndReason)
	assert.True(t, final.A.RatingApplied && final.B.RatingApplied)

	ra, err := h.ratings.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1312, ra)
	rb, err := h.ratings.GetRating(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1242, rb)
}

func TestBerserkOnlyDuringCountdown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, g := startArenaGame(t, h)

	_, err := h.engine.ActivateBerserk(ctx, g.ID, "bob")
	require.NoError(t, err)
	_, err = h.engine.ActivateBerserk(ctx, g.ID, "bob")
	require.NoError(t, err)

	_, err = h.engine.ActivateBerserk(ctx, g.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotAPlayer)

	h.clock.Advance(5 * time.Second)
	_, err = h.engine.ActivateBerserk(ctx, g.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotInCountdown)

	active, err := h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)
	_, bob, _ := active.SideForUser("alice")
	assert.True(t, bob.Berserk)
	assert.Equal(t, int64(30_000), bob.TimeLimitMs)
}

func TestMistakeCapEndsGame(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)
	h.clock.Advance(5 * time.Second)

	h.clock.Advance(time.Second)
	res, err := h.engine.SubmitAnswer(ctx, g.ID, "alice", "41", 1000)
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 1, res.Mistakes)
	require.NotNil(t, res.LockedUntil)

	h.clock.Advance(2 * time.Second)
	_, err = h.engine.SubmitAnswer(ctx, g.ID, "alice", "42", 3000)
	assert.ErrorIs(t, err, domain.ErrInputLocked)

	h.clock.Advance(4 * time.Second)
	res, err = h.engine.SubmitAnswer(ctx, g.ID, "alice", "40", 7000)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Mistakes)

	h.clock.Advance(6 * time.Second)
	res, err = h.engine.SubmitAnswer(ctx, g.ID, "alice", "43", 13000)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Mistakes)
	assert.True(t, res.Finished)

	bob := h.participant(t, tr.ID, "bob")
	assert.Equal(t, bob.ID, res.WinnerID)
	assert.Equal(t, 2, bob.Score)

	final, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndMistakeCap, final.EndReason)

	// late submissions after the cap change nothing
	res, err = h.engine.SubmitAnswer(ctx, g.ID, "alice", "42", 14000)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 2, h.participant(t, tr.ID, "bob").Score)
}

func TestSubmitBeforeActivation(t *testing.T) {
	h := newHarness(t, nil)
	_, g := startArenaGame(t, h)

	_, err := h.engine.SubmitAnswer(context.Background(), g.ID, "alice", "42", 0)
	assert.ErrorIs(t, err, domain.ErrGameNotActive)
}

func TestTimeoutResolvedByLateRead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)
	h.clock.Advance(5 * time.Second)

	// both interact, so only the 60s deadlines can end the game
	h.clock.Advance(10 * time.Second)
	_, err := h.engine.Heartbeat(ctx, g.ID, "alice")
	require.NoError(t, err)
	_, err = h.engine.SubmitAnswer(ctx, g.ID, "bob", "7", 10_000)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	final, err := h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameFinished, final.Status)
	assert.True(t, final.IsDraw)
	assert.Equal(t, domain.EndDoubleTimeout, final.EndReason)

	for _, user := range []string{"alice", "bob"} {
		p := h.participant(t, tr.ID, user)
		assert.Equal(t, 0, p.Score)
		assert.Equal(t, 1, p.Draws)
		assert.Equal(t, domain.ParticipantInLobby, p.Status)
	}
}

func TestAFKWarningThenResign(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)
	h.clock.Advance(5 * time.Second)

	h.clock.Advance(5 * time.Second)
	_, err := h.engine.Heartbeat(ctx, g.ID, "bob")
	require.NoError(t, err)

	h.clock.Advance(10 * time.Second)
	warned, err := h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)
	alice, _, _ := warned.SideForUser("alice")
	assert.True(t, alice.AFKWarned)
	assert.Equal(t, domain.GameActive, warned.Status)
	assert.Contains(t, h.pub.eventKinds(), string(lifecycle.EventAFKWarning))

	h.clock.Advance(5 * time.Second)
	final, err := h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GameFinished, final.Status)
	assert.Equal(t, domain.EndAFK, final.EndReason)
	assert.Equal(t, h.participant(t, tr.ID, "bob").ID, final.WinnerID)
}

func TestResolutionIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)

	_, err := h.engine.GiveUp(ctx, g.ID, "bob")
	require.NoError(t, err)
	first := h.participant(t, tr.ID, "alice")

	_, err = h.engine.GiveUp(ctx, g.ID, "bob")
	require.NoError(t, err)
	_, err = h.engine.GiveUp(ctx, g.ID, "alice")
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.engine.GetGame(ctx, g.ID)
	require.NoError(t, err)

	again := h.participant(t, tr.ID, "alice")
	assert.Equal(t, first.Score, again.Score)
	assert.Equal(t, first.Wins, again.Wins)
	assert.Equal(t, 2, again.Score)

	final, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndResign, final.EndReason)
	assert.Equal(t, again.ID, final.WinnerID)
}

func TestResolutionRaceLoserNoOps(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr, g := startArenaGame(t, h)
	h.clock.Advance(6 * time.Second)

	// a stale copy finished elsewhere must not be applied on top of the winner
	stale, err := h.store.GetGame(ctx, g.ID)
	require.NoError(t, err)

	_, err = h.engine.SubmitAnswer(ctx, g.ID, "alice", "42", 6000)
	require.NoError(t, err)

	lifecycle.ForceDraw(stale, domain.EndTournamentEnd, h.clock.Now())
	err = h.store.Commit(ctx, repository.Batch{Games: []*domain.Game{stale}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, 2, h.participant(t, tr.ID, "alice").Score)
	assert.Equal(t, 0, h.participant(t, tr.ID, "bob").Draws)
}

func TestRatingFloorAtZero(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tr := h.tournament(t, domain.TournamentArena, 0)
	h.join(t, tr.ID, map[string]int{"alice": 1200, "bob": 5})
	h.advance(t, tr.ID)
	g := h.gameOf(t, tr.ID, "bob")

	_, err := h.engine.GiveUp(ctx, g.ID, "bob")
	require.NoError(t, err)

	rating, err := h.ratings.GetRating(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, rating)
}

func TestGameOpsRejectOutsiders(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, g := startArenaGame(t, h)

	_, err := h.engine.GiveUp(ctx, g.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotAPlayer)
	_, err = h.engine.SubmitAnswer(ctx, g.ID, "mallory", "42", 0)
	assert.ErrorIs(t, err, domain.ErrNotAPlayer)
	_, err = h.engine.GetGame(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
}
