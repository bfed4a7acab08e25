package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

// Runner is what the scheduler triggers once per day.
type Runner interface {
	Run(ctx context.Context) (weather.RunResult, error)
}

// Scheduler runs the pipeline once a day at a fixed UTC time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	at        string
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// New creates a new Scheduler. at is "HH:MM" in UTC; timeout bounds one run.
func New(runner Runner, at string, timeout time.Duration, log *zap.SugaredLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A run still in progress when the next one is due makes the next one wait.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		at:        at,
		timeout:   timeout,
		log:       log,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Infow("scheduler started", "at", s.at+" UTC")
	return nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log.Infow("scheduler: running daily job")
	res, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Errorw("scheduler: run failed", "runId", res.ID, "status", res.Status, "error", err)
		return
	}
	s.log.Infow("scheduler: run completed", "runId", res.ID, "status", res.Status, "rows", res.Rows)
}

// NextRun returns when the job fires next; zero before Start.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
