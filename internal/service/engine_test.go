package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tourney-engine/internal/config"
	"tourney-engine/internal/domain"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/metrics"
	"tourney-engine/internal/notify"
	"tourney-engine/internal/problem"
	"tourney-engine/internal/repository"
	"tourney-engine/internal/scoring"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type recorder struct {
	mu           sync.Mutex
	tournaments  int
	participants int
	games        []domain.Game
	events       []notify.Event
}

func (r *recorder) TournamentChanged(ctx context.Context, t *domain.Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tournaments++
}

func (r *recorder) ParticipantChanged(ctx context.Context, p *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants++
}

func (r *recorder) GameChanged(ctx context.Context, g *domain.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, *g)
}

func (r *recorder) Event(ctx context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) eventKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// flakySupplier fails the first failures calls, then delegates.
type flakySupplier struct {
	next     problem.Supplier
	failures int32
	calls    atomic.Int32
}

func (s *flakySupplier) GetProblem(ctx context.Context, filter domain.ProblemFilter) (*domain.Problem, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, errors.New("supplier down")
	}
	return s.next.GetProblem(ctx, filter)
}

type harness struct {
	engine  *Engine
	store   *repository.MemoryStore
	ratings *repository.MemoryRatings
	clock   *clockwork.FakeClock
	pub     *recorder
	cfg     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		TickInterval:  time.Second,
		DefaultRating: 1200,
		Rules:         scoring.DefaultRules(),
		Timing:        lifecycle.DefaultTiming(),
		Engine: config.EngineRules{
			SwissLookahead: 3,
			FreePauses:     2,
			RejoinCooldown: 30 * time.Second,
		},
	}
}

func catalog() *problem.Catalog {
	return problem.NewCatalog([]domain.Problem{
		{ID: "p1", Statement: "6 * 7", Answer: "42", Difficulty: 1, Category: "math", Rating: 1200},
		{ID: "p2", Statement: "50 - 8", Answer: "42", Difficulty: 1, Category: "math", Rating: 1400},
	}, zerolog.Nop())
}

func newHarness(t *testing.T, supplier problem.Supplier) *harness {
	t.Helper()
	if supplier == nil {
		supplier = catalog()
	}

	logger := zerolog.Nop()
	h := &harness{
		store:   repository.NewMemoryStore(logger),
		ratings: repository.NewMemoryRatings(1200),
		clock:   clockwork.NewFakeClockAt(epoch),
		pub:     &recorder{},
		cfg:     testConfig(),
	}
	h.engine = NewEngine(
		h.store,
		h.ratings,
		supplier,
		problem.NormalizedChecker{},
		h.pub,
		metrics.New(prometheus.NewRegistry()),
		h.cfg,
		h.clock,
		logger,
	)
	h.engine.retryBase = time.Millisecond
	return h
}

func (h *harness) tournament(t *testing.T, typ domain.TournamentType, rounds int) *domain.Tournament {
	t.Helper()
	tr, err := h.engine.CreateTournament(context.Background(), CreateTournamentInput{
		Name:                  "Friday " + string(typ),
		Type:                  typ,
		Category:              "math",
		StartTime:             epoch,
		DurationMinutes:       60,
		TimePerProblemSeconds: 60,
		TotalRounds:           rounds,
	})
	require.NoError(t, err)
	return tr
}

func (h *harness) join(t *testing.T, tournamentID string, users map[string]int) map[string]*domain.Participant {
	t.Helper()
	ctx := context.Background()
	out := make(map[string]*domain.Participant, len(users))
	for user, rating := range users {
		require.NoError(t, h.ratings.SetRating(ctx, user, rating))
		p, err := h.engine.JoinTournament(ctx, tournamentID, user)
		require.NoError(t, err)
		out[user] = p
	}
	return out
}

func (h *harness) advance(t *testing.T, tournamentID string) {
	t.Helper()
	require.NoError(t, h.engine.AdvanceTournament(context.Background(), tournamentID))
}

func (h *harness) participant(t *testing.T, tournamentID, userID string) *domain.Participant {
	t.Helper()
	p, err := h.store.GetParticipant(context.Background(), tournamentID, userID)
	require.NoError(t, err)
	return p
}

func (h *harness) games(t *testing.T, tournamentID string) []domain.Game {
	t.Helper()
	gs, err := h.store.ListGames(context.Background(), repository.GameFilter{TournamentID: tournamentID})
	require.NoError(t, err)
	return gs
}

// gameOf returns the single open game a user is seated in.
func (h *harness) gameOf(t *testing.T, tournamentID, userID string) domain.Game {
	t.Helper()
	for _, g := range h.games(t, tournamentID) {
		if g.Status == domain.GameFinished {
			continue
		}
		if _, _, ok := g.SideForUser(userID); ok {
			return g
		}
	}
	t.Fatalf("no open game for %s", userID)
	return domain.Game{}
}

func TestCallOracleRetriesThenSucceeds(t *testing.T) {
	supplier := &flakySupplier{next: catalog(), failures: 2}
	h := newHarness(t, supplier)

	p, err := callOracle(context.Background(), h.engine, "problems", func(ctx context.Context) (*domain.Problem, error) {
		return supplier.GetProblem(ctx, domain.ProblemFilter{Category: "math"})
	})
	require.NoError(t, err)
	assert.Equal(t, "42", p.Answer)
	assert.Equal(t, int32(3), supplier.calls.Load())
}

func TestCallOracleDoesNotRetryMissingProblem(t *testing.T) {
	h := newHarness(t, nil)
	calls := 0

	_, err := callOracle(context.Background(), h.engine, "problems", func(ctx context.Context) (*domain.Problem, error) {
		calls++
		return nil, problem.ErrNoProblem
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.ErrorIs(t, err, problem.ErrNoProblem)
	assert.Equal(t, 1, calls)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("tournament:t1")
			defer unlock()
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}
