package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/ethosprompt/backend/internal/errorreporting"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
)

// Job is a named task run on a schedule.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
	// Timeout bounds one run; zero means no limit beyond the service context.
	Timeout time.Duration
}

// Service runs jobs on their schedules. Runs of the same job never overlap.
type Service struct {
	clock clock.Clock
	jobs  []Job
	log   *slog.Logger

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewService creates a scheduler. A nil clock uses the wall clock.
func NewService(clk clock.Clock, jobs ...Job) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		clock: clk,
		jobs:  jobs,
		log:   logger.WithComponent("scheduler"),
		stop:  make(chan struct{}),
	}
}

// Start launches one goroutine per job and returns immediately.
func (s *Service) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop signals every job loop to exit and waits for in-flight runs.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context, job Job) {
	for {
		now := s.clock.Now()
		timer := s.clock.Timer(job.Schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, job Job) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := s.clock.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError{job: job.Name, value: r}
			}
		}()
		return job.Run(ctx)
	}()
	elapsed := s.clock.Since(start)

	if err != nil {
		s.log.Error("scheduled job failed", "job", job.Name, "duration", elapsed, "error", err)
		errorreporting.CaptureErrorWithContext(err,
			map[string]string{"component": "scheduler", "job": job.Name}, nil)
		return
	}
	s.log.Debug("scheduled job finished", "job", job.Name, "duration", elapsed)
}
