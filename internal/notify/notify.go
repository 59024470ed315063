// Package notify publishes row-change events for tournaments, participants and games so
// clients can follow state without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Publisher interface {
	TournamentChanged(ctx context.Context, t *domain.Tournament)
	ParticipantChanged(ctx context.Context, p *domain.Participant)
	GameChanged(ctx context.Context, g *domain.Game)
	Event(ctx context.Context, e Event)
}

// Event is a transient notification that does not map to a row, such as an AFK warning.
type Event struct {
	Kind          string `json:"kind"`
	TournamentID  string `json:"tournament_id"`
	GameID        string `json:"game_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
}

const TopicEvents = "events"

// WatermillPublisher marshals payloads to JSON and publishes them on per-kind topics.
// Publishing never fails the caller: delivery errors are logged.
type WatermillPublisher struct {
	pub    message.Publisher
	logger zerolog.Logger
}

func NewWatermillPublisher(pub message.Publisher, logger zerolog.Logger) *WatermillPublisher {
	return &WatermillPublisher{pub: pub, logger: logger}
}

func (p *WatermillPublisher) TournamentChanged(ctx context.Context, t *domain.Tournament) {
	p.publish(ctx, constants.TopicTournaments, t.ID, t)
}

func (p *WatermillPublisher) ParticipantChanged(ctx context.Context, pt *domain.Participant) {
	p.publish(ctx, constants.TopicParticipants, pt.TournamentID, pt)
}

func (p *WatermillPublisher) GameChanged(ctx context.Context, g *domain.Game) {
	p.publish(ctx, constants.TopicGames, g.TournamentID, g)
}

func (p *WatermillPublisher) Event(ctx context.Context, e Event) {
	p.publish(ctx, TopicEvents, e.TournamentID, e)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, tournamentID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal notification")
		return
	}

	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set("tournament_id", tournamentID)
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Str("tournament_id", tournamentID).Msg("failed to publish notification")
	}
}

// NewGoChannel builds the in-process pub/sub used when no external broker is configured.
func NewGoChannel(logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLogger(logger))
}

// Decode unmarshals a message published by WatermillPublisher.
func Decode[T any](msg *message.Message) (*T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", msg.UUID, err)
	}
	return &out, nil
}

// zerologAdapter implements watermill.LoggerAdapter.
type zerologAdapter struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return zerologAdapter{logger: logger.With().Str("component", "watermill").Logger()}
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{logger: a.logger.With().Fields(map[string]any(fields)).Logger()}
}
