package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Scheduler struct {
	jobs    []Job
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewScheduler keeps the jobs with a positive interval and a task; the rest are disabled.
func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger, backoff: BackoffDuration, stop: make(chan struct{})}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			logger.Info("job disabled", "job", j.Name)
			continue
		}
		if j.MaxAttempts <= 0 {
			j.MaxAttempts = 3
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// WithBackoff replaces the retry delay function.
func (s *Scheduler) WithBackoff(fn func(attempt int) time.Duration) *Scheduler {
	s.backoff = fn
	return s
}

// Jobs returns the enabled job names.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name)
	}
	return out
}

// Start launches one goroutine per job
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Stop signals jobs to stop and waits for them. A run in progress completes first.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			s.logger.Info("job stopping", "job", j.Name)
			return
		case <-ctx.Done():
			s.logger.Info("context canceled, job exiting", "job", j.Name)
			return
		case <-t.C:
			if err := s.RunOnce(ctx, j); err != nil {
				s.logger.Error("job failed", "job", j.Name, "err", err)
			}
		}
	}
}

// RunOnce runs j until it succeeds or exhausts its attempts, waiting between tries.
func (s *Scheduler) RunOnce(ctx context.Context, j Job) error {
	attempts := max(j.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.Run(ctx); err == nil {
			s.logger.Debug("job done", "job", j.Name, "attempt", attempt)
			return nil
		}
		s.logger.Warn("job attempt failed", "job", j.Name, "attempt", attempt, "err", err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(s.backoff(attempt)):
		case <-s.stop:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: %w: %v", j.Name, ErrMaxAttempts, err)
}
