package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs named jobs on cron specs. A job still running when its next
// slot comes is skipped rather than stacked.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	stopOnCancel func() bool
}

// New creates a scheduler; each run gets at most timeout.
func New(timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers fn under spec, e.g. "@every 10m" or "*/5 * * * *".
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.runContext()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		started := time.Now()
		if err := fn(ctx); err != nil {
			logrus.Errorf("scheduled job %s failed: %v", name, err)
			return
		}
		logrus.Debugf("scheduled job %s finished in %v", name, time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s with spec %q: %w", name, spec, err)
	}
	logrus.Infof("scheduled job %s (%s)", name, spec)
	return nil
}

// Start runs the jobs until ctx is cancelled or Stop is called. Cancelling
// ctx stops new runs; a running job keeps its context until Stop returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.cron.Start()
	s.stopOnCancel = context.AfterFunc(ctx, func() { s.cron.Stop() })
}

// Stop prevents new runs, waits for running jobs to return and then releases
// their context.
func (s *Scheduler) Stop() {
	if s.stopOnCancel != nil {
		s.stopOnCancel()
	}
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
