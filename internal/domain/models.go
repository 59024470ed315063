package domain

import (
	"time"
)

type TournamentType string

const (
	TournamentArena TournamentType = "arena"
	TournamentSwiss TournamentType = "swiss"
)

type TournamentStatus string

const (
	TournamentScheduled TournamentStatus = "scheduled"
	TournamentActive    TournamentStatus = "active"
	TournamentFinished  TournamentStatus = "finished"
)

type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantInLobby    ParticipantStatus = "in_lobby"
	ParticipantInGame     ParticipantStatus = "in_game"
	ParticipantPaused     ParticipantStatus = "paused"
	ParticipantWithdrawn  ParticipantStatus = "withdrawn"
)

type GameStatus string

const (
	GameCountdown GameStatus = "countdown"
	GameActive    GameStatus = "active"
	GameFinished  GameStatus = "finished"
)

type EndReason string

const (
	EndCorrectAnswer EndReason = "correct_answer"
	EndMistakeCap    EndReason = "mistake_cap"
	EndTimeout       EndReason = "timeout"
	EndResign        EndReason = "resign"
	EndAFK           EndReason = "afk"
	EndDoubleTimeout EndReason = "double_timeout"
	EndDoubleAFK     EndReason = "double_afk"
	EndTournamentEnd EndReason = "tournament_end"
	EndBye           EndReason = "bye"
)

type Tournament struct {
	ID                    string
	Name                  string
	Type                  TournamentType
	Status                TournamentStatus
	Category              string
	StartTime             time.Time
	DurationMinutes       int
	TimePerProblemSeconds int
	MinRating             int // 0 = unbounded
	MaxRating             int // 0 = unbounded
	TotalRounds           int // swiss only
	CurrentRound          int
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (t *Tournament) EndTime() time.Time {
	return t.StartTime.Add(time.Duration(t.DurationMinutes) * time.Minute)
}

// AcceptsRating reports whether a player with the given rating may join.
func (t *Tournament) AcceptsRating(rating int) bool {
	if t.MinRating > 0 && rating < t.MinRating {
		return false
	}
	if t.MaxRating > 0 && rating > t.MaxRating {
		return false
	}
	return true
}

type Participant struct {
	ID             string
	TournamentID   string
	UserID         string
	Status         ParticipantStatus
	Score          int
	Wins           int
	Losses         int
	Draws          int
	Streak         int
	IsOnFire       bool
	IsBerserkNext  bool
	LastOpponentID string
	LobbySince     *time.Time
	PauseCount     int
	LastPausedAt   *time.Time
	CanRejoinAt    *time.Time
	Version        int64
	JoinedAt       time.Time
	UpdatedAt      time.Time
}

// PlayerState is one side of a game.
type PlayerState struct {
	ParticipantID string
	UserID        string
	Answer        string
	TimeMs        int64
	Mistakes      int
	Berserk       bool
	TimeLimitMs   int64
	LockedUntil   *time.Time
	LastActionAt  *time.Time
	AFKWarned     bool
	Points        int
	RatingDelta   int
	RatingApplied bool
}

func (p *PlayerState) Present() bool {
	return p.ParticipantID != ""
}

type Game struct {
	ID                string
	TournamentID      string
	Round             int // 0 for arena games
	A                 PlayerState
	B                 PlayerState // empty for a bye
	ProblemID         string
	ProblemAnswer     string `json:"-"`
	ProblemDifficulty float64
	BaseTimeMs        int64
	Status            GameStatus
	CountdownEndsAt   time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	WinnerID          string
	IsDraw            bool
	IsBye             bool
	EndReason         EndReason
	Version           int64
	CreatedAt         time.Time
}

// Side returns the player state for a participant and the opponent's state.
func (g *Game) Side(participantID string) (self, opponent *PlayerState, ok bool) {
	switch participantID {
	case "":
		return nil, nil, false
	case g.A.ParticipantID:
		return &g.A, &g.B, true
	case g.B.ParticipantID:
		return &g.B, &g.A, true
	}
	return nil, nil, false
}

// SideForUser is Side keyed by user id.
func (g *Game) SideForUser(userID string) (self, opponent *PlayerState, ok bool) {
	switch userID {
	case "":
		return nil, nil, false
	case g.A.UserID:
		return &g.A, &g.B, true
	case g.B.UserID:
		return &g.B, &g.A, true
	}
	return nil, nil, false
}

// Deadline is the server instant a player's time limit expires. Zero before activation.
func (g *Game) Deadline(p *PlayerState) time.Time {
	if g.StartedAt == nil {
		return time.Time{}
	}
	return g.StartedAt.Add(time.Duration(p.TimeLimitMs) * time.Millisecond)
}

// CheckFinished validates the finished-game invariant: exactly one of winner, draw, bye.
func (g *Game) CheckFinished() error {
	if g.Status != GameFinished {
		return nil
	}
	set := 0
	if g.WinnerID != "" {
		set++
	}
	if g.IsDraw {
		set++
	}
	if g.IsBye {
		set++
	}
	if set != 1 {
		return ErrMalformedGame
	}
	return nil
}

type Problem struct {
	ID         string  `json:"id" yaml:"id"`
	Statement  string  `json:"statement" yaml:"statement"`
	Answer     string  `json:"answer" yaml:"answer"`
	Difficulty float64 `json:"difficulty" yaml:"difficulty"`
	Category   string  `json:"category" yaml:"category"`
	Rating     int     `json:"rating" yaml:"rating"`
}

type ProblemFilter struct {
	Category  string
	MinRating int
	MaxRating int
}

type Standing struct {
	Rank        int
	Participant Participant
}
