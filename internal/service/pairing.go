package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"
	"tourney-engine/internal/pairing"
	"tourney-engine/internal/repository"
	"tourney-engine/internal/scoring"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// RunArenaCycle pairs the current arena lobby once and returns the number of games created.
func (e *Engine) RunArenaCycle(ctx context.Context, tournamentID string) (int, error) {
	unlock := e.locks.lock(tournamentLock(tournamentID))
	defer unlock()

	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	return e.runArenaCycle(ctx, t)
}

// RunSwissRound pairs the next swiss round when the current one is complete. It returns the
// number of games created, bye included; zero means the round is still being played.
func (e *Engine) RunSwissRound(ctx context.Context, tournamentID string) (int, error) {
	unlock := e.locks.lock(tournamentLock(tournamentID))
	defer unlock()

	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	return e.runSwissRound(ctx, t)
}

func tournamentLock(id string) string {
	return "tournament:" + id
}

func (e *Engine) runArenaCycle(ctx context.Context, t *domain.Tournament) (int, error) {
	if t.Type != domain.TournamentArena {
		return 0, fmt.Errorf("%w: not an arena tournament", domain.ErrInvalidTournament)
	}
	if t.Status != domain.TournamentActive {
		return 0, domain.ErrTournamentNotActive
	}

	start := e.clock.Now()
	defer func() {
		e.metrics.PairingDuration.WithLabelValues(string(t.Type)).Observe(e.clock.Since(start).Seconds())
	}()

	all, err := e.store.ListParticipants(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list participants: %w", err)
	}
	lobby := filterStatus(all, domain.ParticipantInLobby)
	if len(lobby) < 2 {
		e.metrics.PairingCycles.WithLabelValues(string(t.Type), "idle").Inc()
		return 0, nil
	}

	ratings := e.lookupRatings(ctx, lobby)
	byID := make(map[string]*domain.Participant, len(lobby))
	pool := make([]pairing.Candidate, 0, len(lobby))
	for _, p := range lobby {
		rating, ok := ratings[p.UserID]
		if !ok {
			continue
		}
		byID[p.ID] = p
		since := p.JoinedAt
		if p.LobbySince != nil {
			since = *p.LobbySince
		}
		pool = append(pool, pairing.Candidate{
			ID:             p.ID,
			Rating:         rating,
			Score:          p.Score,
			LastOpponentID: p.LastOpponentID,
			LobbySince:     since,
		})
	}

	pairs, waiting := pairing.Arena(pool)
	created := 0
	for _, pair := range pairs {
		a, b := byID[pair.A.ID], byID[pair.B.ID]
		prob, err := e.pickProblem(ctx, t, pair.A.Rating, pair.B.Rating)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("tournament_id", t.ID).
				Str("a", a.UserID).
				Str("b", b.UserID).
				Msg("pair deferred, no problem available")
			continue
		}

		now := e.clock.Now().UTC()
		g, err := e.newGame(t, 0, a, b, prob, now)
		if err != nil {
			return created, err
		}
		err = e.store.Commit(ctx, repository.Batch{
			NewGames:     []*domain.Game{g},
			Participants: []*domain.Participant{a, b},
		})
		if errors.Is(err, domain.ErrConflict) {
			// one of the two paused or withdrew since the snapshot
			e.raceLost("pairing")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to commit pairing: %w", err)
		}

		created++
		e.gameCreated(ctx, t, g, a, b)
	}

	outcome := "ok"
	if created == 0 {
		outcome = "idle"
	}
	e.metrics.PairingCycles.WithLabelValues(string(t.Type), outcome).Inc()
	e.logger.Debug().
		Str("tournament_id", t.ID).
		Int("lobby", len(lobby)).
		Int("games", created).
		Int("waiting", len(waiting)).
		Msg("arena cycle complete")
	return created, nil
}

func (e *Engine) runSwissRound(ctx context.Context, t *domain.Tournament) (int, error) {
	if t.Type != domain.TournamentSwiss {
		return 0, fmt.Errorf("%w: not a swiss tournament", domain.ErrInvalidTournament)
	}
	if t.Status != domain.TournamentActive {
		return 0, domain.ErrTournamentNotActive
	}

	games, err := e.store.ListGames(ctx, repository.GameFilter{TournamentID: t.ID})
	if err != nil {
		return 0, fmt.Errorf("failed to list games: %w", err)
	}
	for _, g := range games {
		if g.Round == t.CurrentRound && g.Status != domain.GameFinished {
			return 0, nil
		}
	}
	if t.CurrentRound >= t.TotalRounds {
		return 0, e.finishTournament(ctx, t)
	}

	start := e.clock.Now()
	defer func() {
		e.metrics.PairingDuration.WithLabelValues(string(t.Type)).Observe(e.clock.Since(start).Seconds())
	}()

	all, err := e.store.ListParticipants(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list participants: %w", err)
	}
	eligible := filterStatus(all, domain.ParticipantInLobby)
	if len(eligible) < 2 {
		e.metrics.PairingCycles.WithLabelValues(string(t.Type), "idle").Inc()
		return 0, nil
	}

	opponents, byes := swissHistory(games)
	ratings := e.lookupRatings(ctx, eligible)
	if len(ratings) < len(eligible) {
		// a partial field would hand the missing players a silent bye
		e.metrics.PairingCycles.WithLabelValues(string(t.Type), "deferred").Inc()
		return 0, fmt.Errorf("%w: ratings incomplete for round %d", domain.ErrOracleUnavailable, t.CurrentRound+1)
	}

	byID := make(map[string]*domain.Participant, len(eligible))
	players := make([]pairing.Candidate, 0, len(eligible))
	for _, p := range eligible {
		byID[p.ID] = p
		players = append(players, pairing.Candidate{
			ID:        p.ID,
			Rating:    ratings[p.UserID],
			Score:     p.Score,
			Opponents: opponents[p.ID],
			Byes:      byes[p.ID],
		})
	}

	res := pairing.Swiss(players, e.settings.SwissLookahead)
	round := t.CurrentRound + 1
	now := e.clock.Now().UTC()

	batch := repository.Batch{Tournament: t}
	for _, pair := range res.Pairs {
		prob, err := e.pickProblem(ctx, t, pair.A.Rating, pair.B.Rating)
		if err != nil {
			e.metrics.PairingCycles.WithLabelValues(string(t.Type), "deferred").Inc()
			return 0, fmt.Errorf("round %d deferred: %w", round, err)
		}
		a, b := byID[pair.A.ID], byID[pair.B.ID]
		g, err := e.newGame(t, round, a, b, prob, now)
		if err != nil {
			return 0, err
		}
		batch.NewGames = append(batch.NewGames, g)
		batch.Participants = append(batch.Participants, a, b)
	}
	if res.Bye != nil {
		p := byID[res.Bye.ID]
		g, err := e.byeGame(t, round, p, now)
		if err != nil {
			return 0, err
		}
		batch.NewGames = append(batch.NewGames, g)
		batch.Participants = append(batch.Participants, p)
	}

	t.CurrentRound = round
	t.UpdatedAt = now
	if err := e.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.raceLost("pairing")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to commit round %d: %w", round, err)
	}

	e.metrics.PairingCycles.WithLabelValues(string(t.Type), "ok").Inc()
	e.logger.Info().
		Str("tournament_id", t.ID).
		Int("round", round).
		Int("games", len(res.Pairs)).
		Bool("bye", res.Bye != nil).
		Msg("swiss round paired")

	e.publisher.TournamentChanged(ctx, t)
	for _, g := range batch.NewGames {
		if g.IsBye {
			e.metrics.GamesResolved.WithLabelValues(string(domain.EndBye)).Inc()
			e.publisher.GameChanged(ctx, g)
			continue
		}
		a, _ := findParticipant(batch.Participants, g.A.ParticipantID)
		b, _ := findParticipant(batch.Participants, g.B.ParticipantID)
		e.gameCreated(ctx, t, g, a, b)
	}
	for _, p := range batch.Participants {
		if p.Status != domain.ParticipantInGame {
			e.publisher.ParticipantChanged(ctx, p)
		}
	}
	return len(batch.NewGames), nil
}

// swissHistory collects prior opponents and bye counts per participant.
func swissHistory(games []domain.Game) (map[string]map[string]bool, map[string]int) {
	opponents := make(map[string]map[string]bool)
	byes := make(map[string]int)
	link := func(a, b string) {
		if opponents[a] == nil {
			opponents[a] = make(map[string]bool)
		}
		opponents[a][b] = true
	}
	for _, g := range games {
		if g.IsBye {
			byes[g.A.ParticipantID]++
			continue
		}
		if g.A.Present() && g.B.Present() {
			link(g.A.ParticipantID, g.B.ParticipantID)
			link(g.B.ParticipantID, g.A.ParticipantID)
		}
	}
	return opponents, byes
}

// lookupRatings reads ratings concurrently. Players whose rating could not be read are left
// out of the result and sit this cycle out.
func (e *Engine) lookupRatings(ctx context.Context, ps []*domain.Participant) map[string]int {
	results := make([]int, len(ps))
	found := make([]bool, len(ps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.RatingConcurrency)
	for i, p := range ps {
		g.Go(func() error {
			rating, err := callOracle(gctx, e, "ratings", func(ctx context.Context) (int, error) {
				return e.ratings.GetRating(ctx, p.UserID)
			})
			if err != nil {
				e.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("rating lookup failed")
				return nil
			}
			results[i], found[i] = rating, true
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]int, len(ps))
	for i, p := range ps {
		if found[i] {
			out[p.UserID] = results[i]
		}
	}
	return out
}

// pickProblem asks the supplier for a problem near the pair's average rating.
func (e *Engine) pickProblem(ctx context.Context, t *domain.Tournament, ratingA, ratingB int) (*domain.Problem, error) {
	avg := (ratingA + ratingB) / 2
	filter := domain.ProblemFilter{
		Category:  t.Category,
		MinRating: max(0, avg-constants.ProblemRatingWindow),
		MaxRating: avg + constants.ProblemRatingWindow,
	}
	return callOracle(ctx, e, "problems", func(ctx context.Context) (*domain.Problem, error) {
		return e.problems.GetProblem(ctx, filter)
	})
}

// newGame builds a countdown game for a pair and moves both participants into it, consuming
// their berserk opt-in.
func (e *Engine) newGame(t *domain.Tournament, round int, a, b *domain.Participant, prob *domain.Problem, now time.Time) (*domain.Game, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	g := &domain.Game{
		ID:                id,
		TournamentID:      t.ID,
		Round:             round,
		A:                 seat(a, b, now),
		B:                 seat(b, a, now),
		ProblemID:         prob.ID,
		ProblemAnswer:     prob.Answer,
		ProblemDifficulty: prob.Difficulty,
		BaseTimeMs:        int64(t.TimePerProblemSeconds) * 1000,
		Status:            domain.GameCountdown,
		CountdownEndsAt:   now.Add(e.timing.Countdown),
		CreatedAt:         now,
	}
	return g, nil
}

func seat(p, opponent *domain.Participant, now time.Time) domain.PlayerState {
	ps := domain.PlayerState{
		ParticipantID: p.ID,
		UserID:        p.UserID,
		Berserk:       p.IsBerserkNext,
	}
	p.Status = domain.ParticipantInGame
	p.IsBerserkNext = false
	p.LastOpponentID = opponent.ID
	p.LobbySince = nil
	p.UpdatedAt = now
	return ps
}

// byeGame records a swiss bye as an already finished game and scores it immediately.
func (e *Engine) byeGame(t *domain.Tournament, round int, p *domain.Participant, now time.Time) (*domain.Game, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	u := scoring.Calculate(e.rules, scoring.Bye, false, 0, p.Streak)
	u.Apply(p)
	p.UpdatedAt = now

	finished := now
	return &domain.Game{
		ID:           id,
		TournamentID: t.ID,
		Round:        round,
		A: domain.PlayerState{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Points:        u.ScoreDelta,
			RatingApplied: true,
		},
		Status:          domain.GameFinished,
		CountdownEndsAt: now,
		FinishedAt:      &finished,
		IsBye:           true,
		EndReason:       domain.EndBye,
		CreatedAt:       now,
	}, nil
}

func (e *Engine) gameCreated(ctx context.Context, t *domain.Tournament, g *domain.Game, a, b *domain.Participant) {
	e.metrics.GamesCreated.WithLabelValues(string(t.Type)).Inc()
	e.logger.Info().
		Str("tournament_id", t.ID).
		Str("game_id", g.ID).
		Int("round", g.Round).
		Str("a", g.A.UserID).
		Str("b", g.B.UserID).
		Str("problem_id", g.ProblemID).
		Msg("game created")
	e.publisher.GameChanged(ctx, g)
	if a != nil {
		e.publisher.ParticipantChanged(ctx, a)
	}
	if b != nil {
		e.publisher.ParticipantChanged(ctx, b)
	}
}

func filterStatus(ps []domain.Participant, status domain.ParticipantStatus) []*domain.Participant {
	out := make([]*domain.Participant, 0, len(ps))
	for i := range ps {
		if ps[i].Status == status {
			out = append(out, &ps[i])
		}
	}
	return out
}

func findParticipant(ps []*domain.Participant, id string) (*domain.Participant, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
