package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "epdacep/internal/log"
)

// Updater is the job run on every tick.
type Updater interface {
	Update(ctx context.Context) error
}

// Scheduler runs Update on a cron schedule. Overlapping ticks are skipped,
// so a slow refresh never queues a second one behind it.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	job  Updater
}

// NewScheduler parses spec ("@every 60s", "*/5 * * * *") and registers job.
// ctx is handed to every Update.
func NewScheduler(ctx context.Context, spec string, job Updater) (*Scheduler, error) {
	logger := appLog.CronLogger()
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, ctx: ctx, job: job}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("app: invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.job.Update(s.ctx); err != nil {
		appLog.Error("app: scheduled update failed", err)
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("app: scheduler started", "next", s.cron.Entries()[0].Next)
}

// Stop stops future ticks and returns a context that is done once a
// running tick has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow runs one tick synchronously, outside the schedule.
func (s *Scheduler) RunNow() {
	s.tick()
}
