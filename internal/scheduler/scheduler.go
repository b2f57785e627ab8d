package scheduler

import (
	"context"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/channels"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/go-co-op/gocron"
)

// SchedulableService queues its runs on the shared channels.
type SchedulableService interface {
	Name() string
	RunBatchJob(ctx context.Context, chans *channels.Channels) error
}

type Scheduler struct {
	Cron *gocron.Scheduler
}

func New() (*Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	// A daily batch that overruns must not start a second one on top of it.
	s.SingletonModeAll()
	return &Scheduler{Cron: s}, nil
}

// StartJob schedules the daily batch at "HH:MM" UTC and starts the scheduler.
func (s *Scheduler) StartJob(ctx context.Context, at string, chans *channels.Channels, services []SchedulableService) error {
	_, err := s.Cron.Every(1).Day().At(at).Do(func() {
		s.runAllJobs(ctx, chans, services)
	})
	if err != nil {
		logger.Error("Failed to schedule job at %s: %v", at, err)
		return err
	}

	s.Cron.StartAsync()
	logger.Info("Daily ETL batch scheduled at %s UTC", at)
	return nil
}

func (s *Scheduler) runAllJobs(ctx context.Context, chans *channels.Channels, services []SchedulableService) {
	logger.Info("--- Daily ETL Job Started ---")
	defer logger.Info("--- Daily ETL Job Finished ---")

	for _, service := range services {
		if err := service.RunBatchJob(ctx, chans); err != nil {
			logger.Error("Error running batch job for service %s: %v", service.Name(), err)
		}
	}

	logger.Info("Waiting for all submitted runs to complete...")
	chans.WG.Wait()
	logger.Info("All runs completed.")
}

func (s *Scheduler) RunImmediateJob(ctx context.Context, chans *channels.Channels, services []SchedulableService) {
	logger.Info("--- Immediate ETL Job Started ---")
	defer logger.Info("--- Immediate ETL Job Finished ---")

	s.runAllJobs(ctx, chans, services)
}

func (s *Scheduler) Stop() {
	s.Cron.Stop()
}
