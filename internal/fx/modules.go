package fx

import (
	"context"
	"fmt"

	"tourney-engine/internal/api"
	"tourney-engine/internal/config"
	"tourney-engine/internal/database"
	"tourney-engine/internal/logger"
	"tourney-engine/internal/metrics"
	"tourney-engine/internal/notify"
	"tourney-engine/internal/problem"
	"tourney-engine/internal/repository"
	"tourney-engine/internal/server"
	"tourney-engine/internal/service"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Storage is the persistence picked by STORE_DRIVER.
type Storage struct {
	Store   repository.Store
	Ratings repository.RatingStore
}

func ProvideStorage(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn().Msg("using in-memory store, state is lost on restart")
		return &Storage{
			Store:   repository.NewMemoryStore(logger),
			Ratings: repository.NewMemoryRatings(cfg.DefaultRating),
		}, nil
	}

	sqlDB, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := sqlDB.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
	return &Storage{
		Store:   repository.NewSQLStore(sqlDB, logger),
		Ratings: repository.NewSQLRatings(sqlDB, cfg, logger),
	}, nil
}

func ProvideStore(s *Storage) repository.Store { return s.Store }

func ProvideRatings(s *Storage) repository.RatingStore { return s.Ratings }

// ProvideProblems prefers the remote problem service and falls back to a local catalog.
func ProvideProblems(cfg *config.Config, logger zerolog.Logger) (problem.Supplier, error) {
	if cfg.ProblemsURL != "" {
		return api.NewProblemClient(cfg, logger), nil
	}
	catalog, err := problem.LoadCatalog(cfg.ProblemsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load problem catalog: %w", err)
	}
	return catalog, nil
}

func ProvideChecker() problem.Checker { return problem.NormalizedChecker{} }

func ProvidePubSub(lc fx.Lifecycle, logger zerolog.Logger) *gochannel.GoChannel {
	pubsub := notify.NewGoChannel(logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pubsub.Close()
		},
	})
	return pubsub
}

func ProvidePublisher(pubsub *gochannel.GoChannel, logger zerolog.Logger) notify.Publisher {
	return notify.NewWatermillPublisher(pubsub, logger)
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func ProvideClock() clockwork.Clock { return clockwork.NewRealClock() }

// LogEvents mirrors transient game events (AFK warnings and the like) into the debug log.
func LogEvents(lc fx.Lifecycle, pubsub *gochannel.GoChannel, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			msgs, err := pubsub.Subscribe(ctx, notify.TopicEvents)
			if err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}
			go drainEvents(msgs, logger)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func drainEvents(msgs <-chan *message.Message, logger zerolog.Logger) {
	for msg := range msgs {
		e, err := notify.Decode[notify.Event](msg)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping malformed event")
		} else {
			logger.Debug().
				Str("kind", e.Kind).
				Str("tournament_id", e.TournamentID).
				Str("game_id", e.GameID).
				Str("participant_id", e.ParticipantID).
				Msg("game event")
		}
		msg.Ack()
	}
}

// StartScheduler runs the phase controller for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, scheduler *service.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			return scheduler.Stop()
		},
	})
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	// storage
	fx.Provide(ProvideStorage),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRatings),
	// oracles
	fx.Provide(ProvideProblems),
	fx.Provide(ProvideChecker),
	// notifications and metrics
	fx.Provide(ProvidePubSub),
	fx.Provide(ProvidePublisher),
	fx.Provide(metrics.NewRegistry),
	fx.Provide(ProvideMetrics),
	// engine
	fx.Provide(ProvideClock),
	fx.Provide(service.NewEngine),
	fx.Provide(service.NewPhaseController),
	fx.Provide(service.NewScheduler),
	// server
	fx.Provide(server.NewEngineServer),
	fx.Invoke(LogEvents),
	fx.Invoke(StartScheduler),
)
