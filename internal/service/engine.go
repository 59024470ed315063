package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tourney-engine/internal/config"
	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/metrics"
	"tourney-engine/internal/notify"
	"tourney-engine/internal/problem"
	"tourney-engine/internal/repository"
	"tourney-engine/internal/scoring"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Engine owns every tournament state transition: joins, pauses, pairing, game play and
// resolution. All writes go through compare-and-swap store updates; pairing and phase
// changes for one tournament are additionally serialized in process.
type Engine struct {
	store     repository.Store
	ratings   repository.RatingStore
	problems  problem.Supplier
	checker   problem.Checker
	publisher notify.Publisher
	metrics   *metrics.Metrics
	rules     scoring.Rules
	timing    lifecycle.Timing
	settings  config.EngineRules
	clock     clockwork.Clock
	locks     *keyedMutex
	retryBase time.Duration
	logger    zerolog.Logger
}

func NewEngine(
	store repository.Store,
	ratings repository.RatingStore,
	problems problem.Supplier,
	checker problem.Checker,
	publisher notify.Publisher,
	m *metrics.Metrics,
	cfg *config.Config,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		ratings:   ratings,
		problems:  problems,
		checker:   checker,
		publisher: publisher,
		metrics:   m,
		rules:     cfg.Rules,
		timing:    cfg.Timing,
		settings:  cfg.Engine,
		clock:     clock,
		locks:     newKeyedMutex(),
		retryBase: constants.OracleRetryBase,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// callOracle retries an external call with exponential backoff. Errors marked permanent by
// the collaborator (no matching problem) are not retried.
func callOracle[T any](ctx context.Context, e *Engine, oracle string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	backoff := retry.WithMaxRetries(constants.OracleMaxRetries, retry.NewExponential(e.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if errors.Is(err, problem.ErrNoProblem) {
				return err
			}
			return retry.RetryableError(err)
		}
		out = v
		return nil
	})
	if err != nil {
		e.metrics.OracleFailures.WithLabelValues(oracle).Inc()
		return out, fmt.Errorf("%w: %s: %w", domain.ErrOracleUnavailable, oracle, err)
	}
	return out, nil
}

func (e *Engine) raceLost(op string) {
	e.metrics.RaceLost.WithLabelValues(op).Inc()
}

// GetTournament is a plain read.
func (e *Engine) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	return e.store.GetTournament(ctx, id)
}
