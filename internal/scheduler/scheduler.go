// Package scheduler triggers tracker runs on a fixed interval. It knows
// nothing about the run beyond its entry point; the tracker carries no timer
// of its own.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"price-tracker/internal/models"
)

// RunFunc is the single entry point the scheduler invokes.
type RunFunc func(ctx context.Context) models.RunResult

// Scheduler wraps a cron instance with an immediate first run.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	cron     *cron.Cron
}

func New(interval time.Duration, run RunFunc) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      run,
		cron:     cron.New(),
	}
}

// Start runs the job once immediately, then on every interval tick, and
// blocks until ctx is canceled. In-flight cron jobs finish before Start
// returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid schedule interval %v", s.interval)
	}

	log.Printf("Scheduler started: tracking every %v", s.interval)
	s.run(ctx)

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule tracking job: %w", err)
	}

	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	log.Println("Scheduler stopped")
	return nil
}
