// Package scoring turns game results into score, streak and rating updates.
package scoring

import (
	"math"

	"tourney-engine/internal/domain"
)

type Rules struct {
	BasePoints             int     `yaml:"base_points"`
	BerserkBonus           int     `yaml:"berserk_bonus"`
	FireThreshold          int     `yaml:"fire_threshold"`
	RatingBase             float64 `yaml:"rating_base"`
	RatingDifficultyFactor float64 `yaml:"rating_difficulty_factor"`
	RatingLossFactor       float64 `yaml:"rating_loss_factor"`
}

func DefaultRules() Rules {
	return Rules{
		BasePoints:             2,
		BerserkBonus:           1,
		FireThreshold:          3,
		RatingBase:             10,
		RatingDifficultyFactor: 2,
		RatingLossFactor:       0.7,
	}
}

type Result int

const (
	Loss Result = iota
	Win
	Draw
	Bye
)

func (r Result) String() string {
	switch r {
	case Win:
		return "win"
	case Draw:
		return "draw"
	case Bye:
		return "bye"
	default:
		return "loss"
	}
}

// Update is the effect of one game on a participant.
type Update struct {
	ScoreDelta  int
	Streak      int
	IsOnFire    bool
	RatingDelta int
	Wins        int
	Losses      int
	Draws       int
}

// Calculate is pure: same inputs, same update.
func Calculate(rules Rules, result Result, berserk bool, difficulty float64, priorStreak int) Update {
	u := Update{Streak: priorStreak}

	switch result {
	case Win:
		u.ScoreDelta = rules.BasePoints
		if berserk {
			u.ScoreDelta += rules.BerserkBonus
		}
		u.Streak = priorStreak + 1
		u.Wins = 1
		u.RatingDelta = RatingGain(rules, difficulty)
	case Loss:
		u.Streak = 0
		u.Losses = 1
		u.RatingDelta = -RatingLoss(rules, difficulty)
	case Draw:
		u.Streak = 0
		u.Draws = 1
	case Bye:
		u.ScoreDelta = rules.BasePoints / 2
	}

	u.IsOnFire = rules.FireThreshold > 0 && u.Streak >= rules.FireThreshold
	return u
}

// Apply writes the update onto a participant.
func (u Update) Apply(p *domain.Participant) {
	p.Score += u.ScoreDelta
	p.Streak = u.Streak
	p.IsOnFire = u.IsOnFire
	p.Wins += u.Wins
	p.Losses += u.Losses
	p.Draws += u.Draws
}

func RatingGain(rules Rules, difficulty float64) int {
	return int(math.Round(rules.RatingBase + rules.RatingDifficultyFactor*difficulty))
}

func RatingLoss(rules Rules, difficulty float64) int {
	return int(math.Round(rules.RatingLossFactor * float64(RatingGain(rules, difficulty))))
}

// ClampRating applies delta with a floor of zero.
func ClampRating(current, delta int) int {
	return max(0, current+delta)
}

// ResultFor derives a participant's result from a finished game.
func ResultFor(g *domain.Game, participantID string) Result {
	switch {
	case g.IsBye:
		return Bye
	case g.IsDraw:
		return Draw
	case g.WinnerID == participantID:
		return Win
	default:
		return Loss
	}
}
