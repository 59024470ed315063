package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	TickTimeout        = 20 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultTickInterval   = 1 * time.Second
	DefaultRating         = 1200
	DefaultSwissLookahead = 3
	DefaultFreePauses     = 2
	DefaultRejoinCooldown = 30 * time.Second
	ProblemRatingWindow   = 200
)

const (
	// CAS retries before a race-lost update is surfaced to the caller
	MaxConflictRetries = 5
	OracleMaxRetries   = 3
	OracleRetryBase    = 100 * time.Millisecond
	TickConcurrency    = 8
	RatingConcurrency  = 8
)

const (
	TopicTournaments  = "tournaments"
	TopicParticipants = "participants"
	TopicGames        = "games"
)
