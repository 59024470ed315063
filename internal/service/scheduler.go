package service

import (
	"context"
	"fmt"

	"tourney-engine/internal/config"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Scheduler runs the phase controller tick on a fixed interval. A tick that overruns the
// interval delays the next one instead of overlapping it.
type Scheduler struct {
	scheduler  gocron.Scheduler
	controller *PhaseController
	logger     zerolog.Logger
}

func NewScheduler(controller *PhaseController, cfg *config.Config, clock clockwork.Clock, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()

	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(schedulerLogger{logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	sch := &Scheduler{scheduler: s, controller: controller, logger: logger}
	_, err = s.NewJob(
		gocron.DurationJob(cfg.TickInterval),
		gocron.NewTask(sch.tick),
		gocron.WithName("phase-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule tick: %w", err)
	}
	return sch, nil
}

func (s *Scheduler) tick() {
	if err := s.controller.Tick(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("tick failed")
	}
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info().Msg("scheduler started")
}

func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

type schedulerLogger struct {
	logger zerolog.Logger
}

func (l schedulerLogger) Debug(msg string, args ...any) { l.logger.Debug().Fields(args).Msg(msg) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.logger.Info().Fields(args).Msg(msg) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.logger.Warn().Fields(args).Msg(msg) }
func (l schedulerLogger) Error(msg string, args ...any) { l.logger.Error().Fields(args).Msg(msg) }
