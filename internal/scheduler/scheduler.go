// Package scheduler drives the recurring daily fetch when one is configured.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/pipeline"
)

// FetchRunner triggers a fetch-and-store pass.
type FetchRunner interface {
	Run(ctx context.Context, start, end time.Time) map[string]pipeline.StationFetchResult
}

// Scheduler runs one fetch pass every day at a fixed UTC time, covering the
// previous day through today. Left unconfigured, it schedules nothing.
type Scheduler struct {
	scheduler *gocron.Scheduler
	fetch     FetchRunner
	dailyAt   string // "HH:MM", empty disables
	logger    *slog.Logger
}

// New creates a scheduler for the daily fetch job.
func New(fetch FetchRunner, dailyAt string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		fetch:     fetch,
		dailyAt:   dailyAt,
		logger:    logger,
	}
}

// Start schedules the daily job and starts the underlying scheduler. A bad
// time spec is reported before any job runs.
func (s *Scheduler) Start() error {
	if s.dailyAt == "" {
		s.logger.Info("daily fetch not configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(1).Day().At(s.dailyAt).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		end := domain.Now().UTC().Truncate(24 * time.Hour)
		start := end.AddDate(0, 0, -1)
		s.logger.Info("daily fetch starting", "start", domain.DateOnly(start), "end", domain.DateOnly(end))

		results := s.fetch.Run(ctx, start, end)
		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		s.logger.Info("daily fetch finished", "stations", len(results), "failed", failed)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("daily fetch scheduled", "at", s.dailyAt)
	return nil
}

// Stop cancels future jobs; a job already running finishes on its own.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
