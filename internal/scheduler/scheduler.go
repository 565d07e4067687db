// Package scheduler runs the periodic jobs: leaderboard refresh, intent reconciliation and the dev sensor feed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"greencoin-backend/internal/infrastructure/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of periodic work. Errors are logged and counted; the schedule continues.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	ctx  context.Context
	stop context.CancelFunc
}

func New(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
		ctx:  ctx,
		stop: cancel,
	}
}

// Add registers a job. Schedules use the standard cron syntax or descriptors such as "@every 30s".
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s: no run function", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.runOnce(job) }); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job scheduled")
	return nil
}

func (s *Scheduler) runOnce(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	metrics.RecordJobRun(job.Name, err == nil)
	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.stop()
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
