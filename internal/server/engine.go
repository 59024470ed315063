package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourney-engine/internal/domain"
	"tourney-engine/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

// EngineServer exposes the tournament engine over connect. Tournament advancement is driven
// by the scheduler and has no procedure.
type EngineServer struct {
	engine *service.Engine
	logger zerolog.Logger
}

func NewEngineServer(engine *service.Engine, logger zerolog.Logger) *EngineServer {
	return &EngineServer{engine: engine, logger: logger.With().Str("component", "server").Logger()}
}

func (s *EngineServer) CreateTournament(ctx context.Context, req *connect.Request[CreateTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.engine.CreateTournament(ctx, service.CreateTournamentInput{
		Name:                  req.Msg.Name,
		Type:                  domain.TournamentType(strings.ToLower(req.Msg.Type)),
		Category:              req.Msg.Category,
		StartTime:             req.Msg.StartTime,
		DurationMinutes:       req.Msg.DurationMinutes,
		TimePerProblemSeconds: req.Msg.TimePerProblemSeconds,
		MinRating:             req.Msg.MinRating,
		MaxRating:             req.Msg.MaxRating,
		TotalRounds:           req.Msg.TotalRounds,
	})
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: toTournament(t)}), nil
}

func (s *EngineServer) GetTournament(ctx context.Context, req *connect.Request[GetTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	if err := required("tournamentId", req.Msg.TournamentID); err != nil {
		return nil, err
	}
	t, err := s.engine.GetTournament(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: toTournament(t)}), nil
}

func (s *EngineServer) JoinTournament(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error) {
	return s.participantCall(ctx, req.Msg.TournamentID, req.Msg.UserID, func() (*domain.Participant, error) {
		return s.engine.JoinTournament(ctx, req.Msg.TournamentID, req.Msg.UserID)
	})
}

func (s *EngineServer) Withdraw(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error) {
	return s.participantCall(ctx, req.Msg.TournamentID, req.Msg.UserID, func() (*domain.Participant, error) {
		return s.engine.Withdraw(ctx, req.Msg.TournamentID, req.Msg.UserID)
	})
}

func (s *EngineServer) SetPaused(ctx context.Context, req *connect.Request[SetPausedRequest]) (*connect.Response[ParticipantResponse], error) {
	return s.participantCall(ctx, req.Msg.TournamentID, req.Msg.UserID, func() (*domain.Participant, error) {
		return s.engine.SetPaused(ctx, req.Msg.TournamentID, req.Msg.UserID, req.Msg.Paused)
	})
}

func (s *EngineServer) SetBerserkNext(ctx context.Context, req *connect.Request[SetBerserkNextRequest]) (*connect.Response[ParticipantResponse], error) {
	return s.participantCall(ctx, req.Msg.TournamentID, req.Msg.UserID, func() (*domain.Participant, error) {
		return s.engine.SetBerserkNext(ctx, req.Msg.TournamentID, req.Msg.UserID, req.Msg.Berserk)
	})
}

func (s *EngineServer) participantCall(ctx context.Context, tournamentID, userID string, call func() (*domain.Participant, error)) (*connect.Response[ParticipantResponse], error) {
	if err := required("tournamentId", tournamentID); err != nil {
		return nil, err
	}
	if err := required("userId", userID); err != nil {
		return nil, err
	}
	p, err := call()
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&ParticipantResponse{Participant: toParticipant(p)}), nil
}

func (s *EngineServer) ActivateBerserk(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return s.gameCall(ctx, req.Msg.GameID, req.Msg.UserID, func() (*domain.Game, error) {
		return s.engine.ActivateBerserk(ctx, req.Msg.GameID, req.Msg.UserID)
	})
}

func (s *EngineServer) GiveUp(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return s.gameCall(ctx, req.Msg.GameID, req.Msg.UserID, func() (*domain.Game, error) {
		return s.engine.GiveUp(ctx, req.Msg.GameID, req.Msg.UserID)
	})
}

func (s *EngineServer) Heartbeat(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return s.gameCall(ctx, req.Msg.GameID, req.Msg.UserID, func() (*domain.Game, error) {
		return s.engine.Heartbeat(ctx, req.Msg.GameID, req.Msg.UserID)
	})
}

func (s *EngineServer) GetGame(ctx context.Context, req *connect.Request[GetGameRequest]) (*connect.Response[GameResponse], error) {
	if err := required("gameId", req.Msg.GameID); err != nil {
		return nil, err
	}
	g, err := s.engine.GetGame(ctx, req.Msg.GameID)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&GameResponse{Game: toGame(g)}), nil
}

func (s *EngineServer) GetCurrentGame(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[GameResponse], error) {
	if err := required("tournamentId", req.Msg.TournamentID); err != nil {
		return nil, err
	}
	if err := required("userId", req.Msg.UserID); err != nil {
		return nil, err
	}
	g, err := s.engine.CurrentGame(ctx, req.Msg.TournamentID, req.Msg.UserID)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&GameResponse{Game: toGame(g)}), nil
}

func (s *EngineServer) gameCall(ctx context.Context, gameID, userID string, call func() (*domain.Game, error)) (*connect.Response[GameResponse], error) {
	if err := required("gameId", gameID); err != nil {
		return nil, err
	}
	if err := required("userId", userID); err != nil {
		return nil, err
	}
	g, err := call()
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&GameResponse{Game: toGame(g)}), nil
}

func (s *EngineServer) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	if err := required("gameId", req.Msg.GameID); err != nil {
		return nil, err
	}
	if err := required("userId", req.Msg.UserID); err != nil {
		return nil, err
	}

	res, err := s.engine.SubmitAnswer(ctx, req.Msg.GameID, req.Msg.UserID, req.Msg.Answer, req.Msg.ClientElapsedMs)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}
	return connect.NewResponse(&SubmitAnswerResponse{
		IsCorrect:   res.IsCorrect,
		Mistakes:    res.Mistakes,
		LockedUntil: res.LockedUntil,
		Finished:    res.Finished,
		WinnerID:    res.WinnerID,
		IsDraw:      res.IsDraw,
	}), nil
}

func (s *EngineServer) GetStandings(ctx context.Context, req *connect.Request[GetStandingsRequest]) (*connect.Response[StandingsResponse], error) {
	if err := required("tournamentId", req.Msg.TournamentID); err != nil {
		return nil, err
	}
	standings, err := s.engine.Standings(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}

	out := make([]Standing, len(standings))
	for i, st := range standings {
		out[i] = Standing{Rank: st.Rank, Participant: toParticipant(&st.Participant)}
	}
	return connect.NewResponse(&StandingsResponse{Standings: out}), nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s is required", field))
	}
	return nil
}

// toConnectError maps engine errors onto connect codes. Unexpected errors are logged and
// reported as internal without their detail.
func (s *EngineServer) toConnectError(ctx context.Context, err error) error {
	switch {
	case domain.IsNotFound(err):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidTournament):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case domain.IsValidation(err):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, domain.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, domain.ErrOracleUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}

	s.loggerFor(ctx).Error().Err(err).Msg("request failed")
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// loggerFor prefers the request-scoped logger installed by the request id middleware.
func (s *EngineServer) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// NewLoggingInterceptor logs every unary call with its procedure, duration and error code.
func NewLoggingInterceptor(logger zerolog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Str("code", connect.CodeOf(err).String()).Err(err)
			}
			event.
				Str("procedure", req.Spec().Procedure).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("rpc")
			return res, err
		}
	}
}
