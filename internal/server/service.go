package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const EngineServiceName = "tournament.v1.EngineService"

// EngineServicePath is the mount point for every procedure of the service.
const EngineServicePath = "/" + EngineServiceName + "/"

const (
	CreateTournamentProcedure = EngineServicePath + "CreateTournament"
	GetTournamentProcedure    = EngineServicePath + "GetTournament"
	JoinTournamentProcedure   = EngineServicePath + "JoinTournament"
	WithdrawProcedure         = EngineServicePath + "Withdraw"
	SetPausedProcedure        = EngineServicePath + "SetPaused"
	SetBerserkNextProcedure   = EngineServicePath + "SetBerserkNext"
	ActivateBerserkProcedure  = EngineServicePath + "ActivateBerserk"
	SubmitAnswerProcedure     = EngineServicePath + "SubmitAnswer"
	GiveUpProcedure           = EngineServicePath + "GiveUp"
	HeartbeatProcedure        = EngineServicePath + "Heartbeat"
	GetGameProcedure          = EngineServicePath + "GetGame"
	GetCurrentGameProcedure   = EngineServicePath + "GetCurrentGame"
	GetStandingsProcedure     = EngineServicePath + "GetStandings"
)

type EngineServiceHandler interface {
	CreateTournament(context.Context, *connect.Request[CreateTournamentRequest]) (*connect.Response[TournamentResponse], error)
	GetTournament(context.Context, *connect.Request[GetTournamentRequest]) (*connect.Response[TournamentResponse], error)
	JoinTournament(context.Context, *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error)
	Withdraw(context.Context, *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error)
	SetPaused(context.Context, *connect.Request[SetPausedRequest]) (*connect.Response[ParticipantResponse], error)
	SetBerserkNext(context.Context, *connect.Request[SetBerserkNextRequest]) (*connect.Response[ParticipantResponse], error)
	ActivateBerserk(context.Context, *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error)
	SubmitAnswer(context.Context, *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error)
	GiveUp(context.Context, *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error)
	Heartbeat(context.Context, *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error)
	GetGame(context.Context, *connect.Request[GetGameRequest]) (*connect.Response[GameResponse], error)
	GetCurrentGame(context.Context, *connect.Request[ParticipantRequest]) (*connect.Response[GameResponse], error)
	GetStandings(context.Context, *connect.Request[GetStandingsRequest]) (*connect.Response[StandingsResponse], error)
}

// NewEngineServiceHandler builds an http.Handler serving every procedure and returns the
// path to mount it on. Messages are JSON only.
func NewEngineServiceHandler(svc EngineServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	handlers := map[string]http.Handler{
		CreateTournamentProcedure: connect.NewUnaryHandler(CreateTournamentProcedure, svc.CreateTournament, opts...),
		GetTournamentProcedure:    connect.NewUnaryHandler(GetTournamentProcedure, svc.GetTournament, opts...),
		JoinTournamentProcedure:   connect.NewUnaryHandler(JoinTournamentProcedure, svc.JoinTournament, opts...),
		WithdrawProcedure:         connect.NewUnaryHandler(WithdrawProcedure, svc.Withdraw, opts...),
		SetPausedProcedure:        connect.NewUnaryHandler(SetPausedProcedure, svc.SetPaused, opts...),
		SetBerserkNextProcedure:   connect.NewUnaryHandler(SetBerserkNextProcedure, svc.SetBerserkNext, opts...),
		ActivateBerserkProcedure:  connect.NewUnaryHandler(ActivateBerserkProcedure, svc.ActivateBerserk, opts...),
		SubmitAnswerProcedure:     connect.NewUnaryHandler(SubmitAnswerProcedure, svc.SubmitAnswer, opts...),
		GiveUpProcedure:           connect.NewUnaryHandler(GiveUpProcedure, svc.GiveUp, opts...),
		HeartbeatProcedure:        connect.NewUnaryHandler(HeartbeatProcedure, svc.Heartbeat, opts...),
		GetGameProcedure:          connect.NewUnaryHandler(GetGameProcedure, svc.GetGame, opts...),
		GetCurrentGameProcedure:   connect.NewUnaryHandler(GetCurrentGameProcedure, svc.GetCurrentGame, opts...),
		GetStandingsProcedure:     connect.NewUnaryHandler(GetStandingsProcedure, svc.GetStandings, opts...),
	}

	return EngineServicePath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// EngineServiceClient calls the engine over connect with the JSON codec.
type EngineServiceClient struct {
	createTournament *connect.Client[CreateTournamentRequest, TournamentResponse]
	getTournament    *connect.Client[GetTournamentRequest, TournamentResponse]
	joinTournament   *connect.Client[ParticipantRequest, ParticipantResponse]
	withdraw         *connect.Client[ParticipantRequest, ParticipantResponse]
	setPaused        *connect.Client[SetPausedRequest, ParticipantResponse]
	setBerserkNext   *connect.Client[SetBerserkNextRequest, ParticipantResponse]
	activateBerserk  *connect.Client[GameActionRequest, GameResponse]
	submitAnswer     *connect.Client[SubmitAnswerRequest, SubmitAnswerResponse]
	giveUp           *connect.Client[GameActionRequest, GameResponse]
	heartbeat        *connect.Client[GameActionRequest, GameResponse]
	getGame          *connect.Client[GetGameRequest, GameResponse]
	getCurrentGame   *connect.Client[ParticipantRequest, GameResponse]
	getStandings     *connect.Client[GetStandingsRequest, StandingsResponse]
}

func NewEngineServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EngineServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	return &EngineServiceClient{
		createTournament: connect.NewClient[CreateTournamentRequest, TournamentResponse](httpClient, baseURL+CreateTournamentProcedure, opts...),
		getTournament:    connect.NewClient[GetTournamentRequest, TournamentResponse](httpClient, baseURL+GetTournamentProcedure, opts...),
		joinTournament:   connect.NewClient[ParticipantRequest, ParticipantResponse](httpClient, baseURL+JoinTournamentProcedure, opts...),
		withdraw:         connect.NewClient[ParticipantRequest, ParticipantResponse](httpClient, baseURL+WithdrawProcedure, opts...),
		setPaused:        connect.NewClient[SetPausedRequest, ParticipantResponse](httpClient, baseURL+SetPausedProcedure, opts...),
		setBerserkNext:   connect.NewClient[SetBerserkNextRequest, ParticipantResponse](httpClient, baseURL+SetBerserkNextProcedure, opts...),
		activateBerserk:  connect.NewClient[GameActionRequest, GameResponse](httpClient, baseURL+ActivateBerserkProcedure, opts...),
		submitAnswer:     connect.NewClient[SubmitAnswerRequest, SubmitAnswerResponse](httpClient, baseURL+SubmitAnswerProcedure, opts...),
		giveUp:           connect.NewClient[GameActionRequest, GameResponse](httpClient, baseURL+GiveUpProcedure, opts...),
		heartbeat:        connect.NewClient[GameActionRequest, GameResponse](httpClient, baseURL+HeartbeatProcedure, opts...),
		getGame:          connect.NewClient[GetGameRequest, GameResponse](httpClient, baseURL+GetGameProcedure, opts...),
		getCurrentGame:   connect.NewClient[ParticipantRequest, GameResponse](httpClient, baseURL+GetCurrentGameProcedure, opts...),
		getStandings:     connect.NewClient[GetStandingsRequest, StandingsResponse](httpClient, baseURL+GetStandingsProcedure, opts...),
	}
}

func (c *EngineServiceClient) CreateTournament(ctx context.Context, req *connect.Request[CreateTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	return c.createTournament.CallUnary(ctx, req)
}

func (c *EngineServiceClient) GetTournament(ctx context.Context, req *connect.Request[GetTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	return c.getTournament.CallUnary(ctx, req)
}

func (c *EngineServiceClient) JoinTournament(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error) {
	return c.joinTournament.CallUnary(ctx, req)
}

func (c *EngineServiceClient) Withdraw(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[ParticipantResponse], error) {
	return c.withdraw.CallUnary(ctx, req)
}

func (c *EngineServiceClient) SetPaused(ctx context.Context, req *connect.Request[SetPausedRequest]) (*connect.Response[ParticipantResponse], error) {
	return c.setPaused.CallUnary(ctx, req)
}

func (c *EngineServiceClient) SetBerserkNext(ctx context.Context, req *connect.Request[SetBerserkNextRequest]) (*connect.Response[ParticipantResponse], error) {
	return c.setBerserkNext.CallUnary(ctx, req)
}

func (c *EngineServiceClient) ActivateBerserk(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return c.activateBerserk.CallUnary(ctx, req)
}

func (c *EngineServiceClient) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	return c.submitAnswer.CallUnary(ctx, req)
}

func (c *EngineServiceClient) GiveUp(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return c.giveUp.CallUnary(ctx, req)
}

func (c *EngineServiceClient) Heartbeat(ctx context.Context, req *connect.Request[GameActionRequest]) (*connect.Response[GameResponse], error) {
	return c.heartbeat.CallUnary(ctx, req)
}

func (c *EngineServiceClient) GetGame(ctx context.Context, req *connect.Request[GetGameRequest]) (*connect.Response[GameResponse], error) {
	return c.getGame.CallUnary(ctx, req)
}

func (c *EngineServiceClient) GetCurrentGame(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[GameResponse], error) {
	return c.getCurrentGame.CallUnary(ctx, req)
}

func (c *EngineServiceClient) GetStandings(ctx context.Context, req *connect.Request[GetStandingsRequest]) (*connect.Response[StandingsResponse], error) {
	return c.getStandings.CallUnary(ctx, req)
}

// JSONCodec marshals plain Go structs. It replaces connect's default protobuf JSON codec,
// which only accepts generated messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
