package scoring

import (
	"testing"

	"tourney-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name        string
		result      Result
		berserk     bool
		difficulty  float64
		priorStreak int
		want        Update
	}{
		{
			name:       "plain win",
			result:     Win,
			difficulty: 3,
			want:       Update{ScoreDelta: 2, Streak: 1, RatingDelta: 16, Wins: 1},
		},
		{
			name:       "berserk win",
			result:     Win,
			berserk:    true,
			difficulty: 3,
			want:       Update{ScoreDelta: 3, Streak: 1, RatingDelta: 16, Wins: 1},
		},
		{
			name:        "win reaching fire threshold",
			result:      Win,
			difficulty:  1,
			priorStreak: 2,
			want:        Update{ScoreDelta: 2, Streak: 3, IsOnFire: true, RatingDelta: 12, Wins: 1},
		},
		{
			name:        "loss resets streak",
			result:      Loss,
			berserk:     true,
			difficulty:  3,
			priorStreak: 5,
			want:        Update{Streak: 0, RatingDelta: -11, Losses: 1},
		},
		{
			name:        "draw resets streak",
			result:      Draw,
			difficulty:  3,
			priorStreak: 4,
			want:        Update{Streak: 0, Draws: 1},
		},
		{
			name:        "bye keeps streak",
			result:      Bye,
			priorStreak: 3,
			want:        Update{ScoreDelta: 1, Streak: 3, IsOnFire: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(rules, tt.result, tt.berserk, tt.difficulty, tt.priorStreak)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreakMonotonicity(t *testing.T) {
	rules := DefaultRules()
	seq := []Result{Win, Win, Bye, Win, Loss, Win, Draw, Win, Win}

	streak := 0
	for i, r := range seq {
		u := Calculate(rules, r, false, 2, streak)
		switch r {
		case Win:
			require.Equal(t, streak+1, u.Streak, "step %d", i)
		case Loss, Draw:
			require.Zero(t, u.Streak, "step %d", i)
		case Bye:
			require.Equal(t, streak, u.Streak, "step %d", i)
		}
		require.Equal(t, u.Streak >= rules.FireThreshold, u.IsOnFire, "step %d", i)
		require.GreaterOrEqual(t, u.ScoreDelta, 0)
		streak = u.Streak
	}
	assert.Equal(t, 2, streak)
}

func TestRatingClamp(t *testing.T) {
	rules := DefaultRules()
	loss := -RatingLoss(rules, 5)
	require.Equal(t, -14, loss)

	assert.Equal(t, 0, ClampRating(3, loss))
	assert.Equal(t, 0, ClampRating(0, loss))
	assert.Equal(t, 86, ClampRating(100, loss))
	assert.Equal(t, 20, ClampRating(0, RatingGain(rules, 5)))
}

func TestUpdateApply(t *testing.T) {
	p := &domain.Participant{Score: 4, Wins: 2, Streak: 2}
	Calculate(DefaultRules(), Win, true, 1, p.Streak).Apply(p)

	assert.Equal(t, 7, p.Score)
	assert.Equal(t, 3, p.Wins)
	assert.Equal(t, 3, p.Streak)
	assert.True(t, p.IsOnFire)
}

func TestResultFor(t *testing.T) {
	g := &domain.Game{WinnerID: "a", A: domain.PlayerState{ParticipantID: "a"}, B: domain.PlayerState{ParticipantID: "b"}}
	assert.Equal(t, Win, ResultFor(g, "a"))
	assert.Equal(t, Loss, ResultFor(g, "b"))

	g = &domain.Game{IsDraw: true}
	assert.Equal(t, Draw, ResultFor(g, "a"))

	g = &domain.Game{IsBye: true}
	assert.Equal(t, Bye, ResultFor(g, "a"))
}
