package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
)

// Task is the unit of work bound to a recurring job. Errors are logged and
// recorded on the job; they never stop future firings.
type Task func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	task     Task
	cancel   context.CancelFunc
	running  bool
	lastRun  *time.Time
	lastErr  string
}

// JobStatus describes a registered job for the control surface.
type JobStatus struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status summarises the registry.
type Status struct {
	Total int         `json:"total"`
	Jobs  []JobStatus `json:"jobs"`
}

// Scheduler owns a registry of named recurring jobs, each driven by its own
// fixed-interval ticker goroutine. Jobs fire independently and may overlap in
// wall-clock time; correctness under overlap is the tasks' responsibility
// (query-before-write dedup, not locks).
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New constructs an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: logger,
	}
}

// Schedule registers a recurring task under a unique name. A job scheduled
// under an existing name stops and replaces the previous one.
func (s *Scheduler) Schedule(name string, every time.Duration, task Task) error {
	if name == "" || task == nil {
		return appErrors.Clone(appErrors.ErrValidation, "job name and task required")
	}
	if every <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("job %s: interval must be positive", name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[name]; ok && existing.running {
		existing.cancel()
		existing.running = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{name: name, interval: every, task: task, cancel: cancel, running: true}
	s.jobs[name] = j

	s.wg.Add(1)
	go s.loop(ctx, j)

	s.logger.Sugar().Infow("job scheduled", "job", name, "interval", every.String())
	return nil
}

// loop drives a single job. The cancel context only gates the ticker select:
// a stop prevents future firings, while the execution already in flight runs
// with its own context and finishes before the loop exits.
func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.execute(context.Background(), j.name, j.task)
			s.record(j.name, err)
			if err != nil {
				s.logger.Sugar().Errorw("job execution failed", "job", j.name, "error", err)
			}
		}
	}
}

// execute runs a task with panic containment. A panicking task is converted
// into an error so the ticker loop survives.
func (s *Scheduler) execute(ctx context.Context, name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
			s.logger.Sugar().Errorw("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return task(ctx)
}

func (s *Scheduler) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	now := time.Now().UTC()
	j.lastRun = &now
	if err != nil {
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
}

// Stop cancels future scheduled firings of the named job. The job stays
// registered and can still be invoked via TriggerNow. Stopping an unknown or
// already stopped job is a no-op.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok || !j.running {
		return false
	}
	j.cancel()
	j.running = false
	s.logger.Sugar().Infow("job stopped", "job", name)
	return true
}

// StopAll cancels future firings of every registered job. In-flight executions
// run to completion.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	stopped := 0
	for _, j := range s.jobs {
		if j.running {
			j.cancel()
			j.running = false
			stopped++
		}
	}
	s.mu.Unlock()
	if stopped > 0 {
		s.logger.Sugar().Infow("all jobs stopped", "count", stopped)
	}
	return stopped
}

// Wait blocks until all ticker loops have exited. Call after StopAll during
// shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TriggerNow runs the named job's task immediately, independent of its
// schedule and regardless of whether scheduled firings are stopped. The task
// result is returned to the caller; scheduled firings are unaffected.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrJobNotFound, fmt.Sprintf("job %s not registered", name))
	}

	s.logger.Sugar().Infow("job triggered manually", "job", name)
	err := s.execute(ctx, name, j.task)
	s.record(name, err)
	return err
}

// GetStatus reports the registry size and per-job state.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, JobStatus{
			Name:      j.name,
			Interval:  j.interval.String(),
			Running:   j.running,
			LastRun:   j.lastRun,
			LastError: j.lastErr,
		})
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })

	return Status{Total: len(jobs), Jobs: jobs}
}
