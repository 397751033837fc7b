/**
 * @description
 * Cron scheduler for the outbox dispatcher process.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the outbox flush on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *OutboxDispatcher
	schedule   string
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. Overlapping runs are skipped.
func NewScheduler(dispatcher *OutboxDispatcher, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the flush job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.flush); err != nil {
		s.logger.Error("failed to schedule outbox dispatch job", "error", err)
		return err
	}
	s.logger.Info("scheduled outbox dispatch job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

func (s *Scheduler) flush() {
	published, err := s.dispatcher.FlushOnce(context.Background())
	if err != nil {
		s.logger.Error("outbox flush failed", "error", err)
		return
	}
	if published > 0 {
		s.logger.Info("outbox flushed", "published", published)
	}
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
