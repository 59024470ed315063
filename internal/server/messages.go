package server

import (
	"time"

	"tourney-engine/internal/domain"
)

type CreateTournamentRequest struct {
	Name                  string    `json:"name"`
	Type                  string    `json:"type"`
	Category              string    `json:"category,omitempty"`
	StartTime             time.Time `json:"startTime"`
	DurationMinutes       int       `json:"durationMinutes"`
	TimePerProblemSeconds int       `json:"timePerProblemSeconds"`
	MinRating             int       `json:"minRating,omitempty"`
	MaxRating             int       `json:"maxRating,omitempty"`
	TotalRounds           int       `json:"totalRounds,omitempty"`
}

type GetTournamentRequest struct {
	TournamentID string `json:"tournamentId"`
}

type TournamentResponse struct {
	Tournament Tournament `json:"tournament"`
}

// ParticipantRequest addresses one user in one tournament (join, withdraw).
type ParticipantRequest struct {
	TournamentID string `json:"tournamentId"`
	UserID       string `json:"userId"`
}

type SetPausedRequest struct {
	TournamentID string `json:"tournamentId"`
	UserID       string `json:"userId"`
	Paused       bool   `json:"paused"`
}

type SetBerserkNextRequest struct {
	TournamentID string `json:"tournamentId"`
	UserID       string `json:"userId"`
	Berserk      bool   `json:"berserk"`
}

type ParticipantResponse struct {
	Participant Participant `json:"participant"`
}

// GameActionRequest addresses one player in one game (berserk, give up, heartbeat).
type GameActionRequest struct {
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
}

type SubmitAnswerRequest struct {
	GameID          string `json:"gameId"`
	UserID          string `json:"userId"`
	Answer          string `json:"answer"`
	ClientElapsedMs int64  `json:"clientElapsedMs,omitempty"`
}

type SubmitAnswerResponse struct {
	IsCorrect   bool       `json:"isCorrect"`
	Mistakes    int        `json:"mistakes"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
	Finished    bool       `json:"finished"`
	WinnerID    string     `json:"winnerId,omitempty"`
	IsDraw      bool       `json:"isDraw,omitempty"`
}

type GetGameRequest struct {
	GameID string `json:"gameId"`
}

type GameResponse struct {
	Game Game `json:"game"`
}

type GetStandingsRequest struct {
	TournamentID string `json:"tournamentId"`
}

type StandingsResponse struct {
	Standings []Standing `json:"standings"`
}

type Tournament struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Type                  string    `json:"type"`
	Status                string    `json:"status"`
	Category              string    `json:"category,omitempty"`
	StartTime             time.Time `json:"startTime"`
	EndTime               time.Time `json:"endTime"`
	DurationMinutes       int       `json:"durationMinutes"`
	TimePerProblemSeconds int       `json:"timePerProblemSeconds"`
	MinRating             int       `json:"minRating,omitempty"`
	MaxRating             int       `json:"maxRating,omitempty"`
	TotalRounds           int       `json:"totalRounds,omitempty"`
	CurrentRound          int       `json:"currentRound,omitempty"`
}

type Participant struct {
	ID             string     `json:"id"`
	TournamentID   string     `json:"tournamentId"`
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	Score          int        `json:"score"`
	Wins           int        `json:"wins"`
	Losses         int        `json:"losses"`
	Draws          int        `json:"draws"`
	Streak         int        `json:"streak"`
	IsOnFire       bool       `json:"isOnFire"`
	IsBerserkNext  bool       `json:"isBerserkNext"`
	LastOpponentID string     `json:"lastOpponentId,omitempty"`
	PauseCount     int        `json:"pauseCount"`
	CanRejoinAt    *time.Time `json:"canRejoinAt,omitempty"`
	JoinedAt       time.Time  `json:"joinedAt"`
}

type Player struct {
	ParticipantID string     `json:"participantId"`
	UserID        string     `json:"userId"`
	Mistakes      int        `json:"mistakes"`
	Berserk       bool       `json:"berserk"`
	TimeLimitMs   int64      `json:"timeLimitMs,omitempty"`
	TimeMs        int64      `json:"timeMs,omitempty"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty"`
	AFKWarned     bool       `json:"afkWarned,omitempty"`
	Points        int        `json:"points"`
	RatingDelta   int        `json:"ratingDelta"`
}

// Game never carries the expected answer.
type Game struct {
	ID              string     `json:"id"`
	TournamentID    string     `json:"tournamentId"`
	Round           int        `json:"round,omitempty"`
	A               Player     `json:"a"`
	B               *Player    `json:"b,omitempty"`
	ProblemID       string     `json:"problemId,omitempty"`
	BaseTimeMs      int64      `json:"baseTimeMs"`
	Status          string     `json:"status"`
	CountdownEndsAt time.Time  `json:"countdownEndsAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	WinnerID        string     `json:"winnerId,omitempty"`
	IsDraw          bool       `json:"isDraw,omitempty"`
	IsBye           bool       `json:"isBye,omitempty"`
	EndReason       string     `json:"endReason,omitempty"`
}

type Standing struct {
	Rank        int         `json:"rank"`
	Participant Participant `json:"participant"`
}

func toTournament(t *domain.Tournament) Tournament {
	return Tournament{
		ID:                    t.ID,
		Name:                  t.Name,
		Type:                  string(t.Type),
		Status:                string(t.Status),
		Category:              t.Category,
		StartTime:             t.StartTime,
		EndTime:               t.EndTime(),
		DurationMinutes:       t.DurationMinutes,
		TimePerProblemSeconds: t.TimePerProblemSeconds,
		MinRating:             t.MinRating,
		MaxRating:             t.MaxRating,
		TotalRounds:           t.TotalRounds,
		CurrentRound:          t.CurrentRound,
	}
}

func toParticipant(p *domain.Participant) Participant {
	return Participant{
		ID:             p.ID,
		TournamentID:   p.TournamentID,
		UserID:         p.UserID,
		Status:         string(p.Status),
		Score:          p.Score,
		Wins:           p.Wins,
		Losses:         p.Losses,
		Draws:          p.Draws,
		Streak:         p.Streak,
		IsOnFire:       p.IsOnFire,
		IsBerserkNext:  p.IsBerserkNext,
		LastOpponentID: p.LastOpponentID,
		PauseCount:     p.PauseCount,
		CanRejoinAt:    p.CanRejoinAt,
		JoinedAt:       p.JoinedAt,
	}
}

func toPlayer(p *domain.PlayerState) Player {
	return Player{
		ParticipantID: p.ParticipantID,
		UserID:        p.UserID,
		Mistakes:      p.Mistakes,
		Berserk:       p.Berserk,
		TimeLimitMs:   p.TimeLimitMs,
		TimeMs:        p.TimeMs,
		LockedUntil:   p.LockedUntil,
		AFKWarned:     p.AFKWarned,
		Points:        p.Points,
		RatingDelta:   p.RatingDelta,
	}
}

func toGame(g *domain.Game) Game {
	out := Game{
		ID:              g.ID,
		TournamentID:    g.TournamentID,
		Round:           g.Round,
		A:               toPlayer(&g.A),
		ProblemID:       g.ProblemID,
		BaseTimeMs:      g.BaseTimeMs,
		Status:          string(g.Status),
		CountdownEndsAt: g.CountdownEndsAt,
		StartedAt:       g.StartedAt,
		FinishedAt:      g.FinishedAt,
		WinnerID:        g.WinnerID,
		IsDraw:          g.IsDraw,
		IsBye:           g.IsBye,
		EndReason:       string(g.EndReason),
	}
	if g.B.Present() {
		b := toPlayer(&g.B)
		out.B = &b
	}
	return out
}
