// Package scheduler triggers named jobs on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/communitybot/feedwatch/pkg/logger"
)

type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the job once as soon as the scheduler starts.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker. A job never overlaps with itself;
// errors and panics are logged and the loop continues.
type Scheduler struct {
	jobs []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", j.Name)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	return nil
}

// Stop cancels the loops and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("scheduler not running")
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	logger.Info("job scheduled", "job", j.Name, "interval", j.Interval, "run_at_start", j.RunAtStart)

	if j.RunAtStart {
		run(ctx, j)
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx, j)
		}
	}
}

func run(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "job", j.Name, "panic", r)
		}
	}()
	if err := j.Run(ctx); err != nil {
		logger.Warn("job failed", "job", j.Name, "error", err, "took", time.Since(start).Truncate(time.Millisecond))
		return
	}
	logger.Debug("job finished", "job", j.Name, "took", time.Since(start).Truncate(time.Millisecond))
}
