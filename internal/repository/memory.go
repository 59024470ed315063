package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"tourney-engine/internal/domain"
	"tourney-engine/internal/scoring"

	"github.com/rs/zerolog"
)

// MemoryStore keeps everything in process. One mutex guards all maps, which makes every
// Commit trivially atomic.
type MemoryStore struct {
	mu           sync.Mutex
	tournaments  map[string]domain.Tournament
	participants map[string]domain.Participant
	games        map[string]domain.Game
	logger       zerolog.Logger
}

func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		tournaments:  make(map[string]domain.Tournament),
		participants: make(map[string]domain.Participant),
		games:        make(map[string]domain.Game),
		logger:       logger,
	}
}

func (s *MemoryStore) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tournaments[t.ID]; ok {
		return domain.ErrConflict
	}
	s.tournaments[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tournaments[id]
	if !ok {
		return nil, domain.ErrTournamentNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListTournaments(ctx context.Context, statuses ...domain.TournamentStatus) ([]domain.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Tournament{}
	for _, t := range s.tournaments {
		if len(statuses) == 0 || slices.Contains(statuses, t.Status) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Tournament) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateTournament(ctx context.Context, t *domain.Tournament) error {
	return s.Commit(ctx, Batch{Tournament: t})
}

func (s *MemoryStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tournaments[p.TournamentID]; !ok {
		return domain.ErrTournamentNotFound
	}
	for _, existing := range s.participants {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return domain.ErrConflict
		}
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetParticipant(ctx context.Context, tournamentID, userID string) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		if p.TournamentID == tournamentID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

func (s *MemoryStore) GetParticipantByID(ctx context.Context, id string) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, tournamentID string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Participant{}
	for _, p := range s.participants {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	return s.Commit(ctx, Batch{Participants: []*domain.Participant{p}})
}

func (s *MemoryStore) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return &g, nil
}

func (s *MemoryStore) ListGames(ctx context.Context, filter GameFilter) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Game{}
	for _, g := range s.games {
		if filter.matches(&g) {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b domain.Game) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) UpdateGame(ctx context.Context, g *domain.Game) error {
	return s.Commit(ctx, Batch{Games: []*domain.Game{g}})
}

func (s *MemoryStore) Commit(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate everything before touching state
	if t := b.Tournament; t != nil {
		stored, ok := s.tournaments[t.ID]
		if !ok || stored.Version != t.Version {
			return domain.ErrConflict
		}
	}
	for _, g := range b.NewGames {
		if _, ok := s.games[g.ID]; ok {
			return domain.ErrConflict
		}
	}
	for _, g := range b.Games {
		stored, ok := s.games[g.ID]
		if !ok || stored.Version != g.Version {
			return domain.ErrConflict
		}
	}
	for _, p := range b.Participants {
		stored, ok := s.participants[p.ID]
		if !ok || stored.Version != p.Version {
			return domain.ErrConflict
		}
	}

	if t := b.Tournament; t != nil {
		t.Version++
		s.tournaments[t.ID] = *t
	}
	for _, g := range b.NewGames {
		s.games[g.ID] = *g
	}
	for _, g := range b.Games {
		g.Version++
		s.games[g.ID] = *g
	}
	for _, p := range b.Participants {
		p.Version++
		s.participants[p.ID] = *p
	}
	return nil
}

// MemoryRatings is an in-process RatingStore.
type MemoryRatings struct {
	mu            sync.Mutex
	ratings       map[string]int
	defaultRating int
}

func NewMemoryRatings(defaultRating int) *MemoryRatings {
	return &MemoryRatings{ratings: make(map[string]int), defaultRating: defaultRating}
}

func (r *MemoryRatings) GetRating(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rating, ok := r.ratings[userID]; ok {
		return rating, nil
	}
	return r.defaultRating, nil
}

func (r *MemoryRatings) ApplyRatingDelta(ctx context.Context, userID string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.ratings[userID]
	if !ok {
		current = r.defaultRating
	}
	r.ratings[userID] = scoring.ClampRating(current, delta)
	return r.ratings[userID], nil
}

func (r *MemoryRatings) SetRating(ctx context.Context, userID string, rating int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ratings[userID] = max(0, rating)
	return nil
}
