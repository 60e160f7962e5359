package backup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs backup cycles one at a time, forever: the first
// immediately, each next one when the schedule says it is due counted from
// the start of the previous cycle.
type Scheduler struct {
	engine   *Engine
	schedule cron.Schedule
	logger   *slog.Logger

	cycle func(ctx context.Context) (*Report, error)
	now   func() time.Time
	wait  func(ctx context.Context, d time.Duration) bool

	mu      sync.RWMutex
	running bool
	nextRun time.Time
}

func NewScheduler(engine *Engine, schedule cron.Schedule, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		schedule: schedule,
		logger:   logger,
		cycle:    engine.Run,
		now:      time.Now,
		wait:     sleep,
	}
}

// Run blocks until ctx is cancelled. Cancellation is only observed between
// cycles: an in-flight cycle always runs to its end.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Info("scheduler stopped")
	}()

	s.logger.Info("scheduler started")

	for {
		start := s.now()
		s.runCycle(ctx)

		if ctx.Err() != nil {
			return nil
		}

		next := s.schedule.Next(start)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		delay := next.Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		s.logger.Debug("next backup cycle scheduled", "next_run", next, "delay", delay)

		if !s.wait(ctx, delay) {
			return nil
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	// Shutdown must not interrupt a dump in progress.
	report, err := s.cycle(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
		return
	}
	s.logger.Info("scheduled backup completed",
		"events", len(report.Events),
		"failed", len(report.Failed()),
	)
}

// RunNow runs a single cycle outside of the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	return s.cycle(ctx)
}

func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) Engine() *Engine {
	return s.engine
}

// sleep waits for d, returning false if ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
