// Package scheduler runs named background jobs on fixed intervals. A job
// never overlaps itself: a trigger that fires while the previous run is in
// flight is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job already running")
	ErrStopped    = errors.New("scheduler stopped")
)

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  sync.Mutex
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	// mu orders wg.Add against Stop's wg.Wait.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("scheduler"),
	}
}

// Register adds a job firing every interval. It must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if interval < time.Second {
		return fmt.Errorf("job %q: interval %s is below one second", name, interval)
	}
	j := &job{name: name, interval: interval, fn: fn}
	spec := fmt.Sprintf("@every %ds", int(interval/time.Second))
	if err := s.cron.AddFunc(spec, func() { s.trigger(j) }); err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	s.jobs[name] = j
	s.logger.Info("job registered", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("jobs", s.Jobs()))
}

// Stop halts the timers, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cron.Stop()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) trigger(j *job) {
	if err := s.run(s.ctx, j); errors.Is(err, ErrJobRunning) {
		s.logger.Debug("job still running, trigger skipped", zap.String("job", j.name))
	}
}

// RunNow runs the named job synchronously under the same single-flight guard
// as the timer, returning ErrJobRunning when a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	j, ok := s.jobs[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownJob)
	}
	runID := uuid.NewString()
	return runID, s.runWithID(ctx, j, runID)
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	return s.runWithID(ctx, j, uuid.NewString())
}

func (s *Scheduler) runWithID(ctx context.Context, j *job, runID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%q: %w", j.name, ErrStopped)
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !j.running.TryLock() {
		recordRun(ctx, j.name, "skipped")
		return fmt.Errorf("%q: %w", j.name, ErrJobRunning)
	}
	defer j.running.Unlock()

	logger := s.logger.With(zap.String("job", j.name), zap.String("run_id", runID))
	start := time.Now()
	err := j.fn(ctx)
	if err != nil {
		recordRun(ctx, j.name, "failure")
		logger.Error("job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	recordRun(ctx, j.name, "success")
	logger.Debug("job finished", zap.Duration("took", time.Since(start)))
	return nil
}
