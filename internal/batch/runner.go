// Package batch runs one long job at a time in the background and keeps its
// progress for polling.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/metrics"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrJobRunning  = errors.New("a background job is already running")
	ErrJobNotFound = errors.New("job not found")
)

type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Job is a snapshot of a background job.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Progress  Progress  `json:"progress"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

// Duration is the elapsed run time, up to now for running jobs.
func (j Job) Duration(now time.Time) time.Duration {
	if j.EndedAt.IsZero() {
		return now.Sub(j.StartedAt)
	}
	return j.EndedAt.Sub(j.StartedAt)
}

// Task is the body of a job. report updates the progress counters.
type Task func(ctx context.Context, report func(done, total int)) (any, error)

type Runner struct {
	mu      sync.Mutex
	current *Job
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewRunner(timeout time.Duration, log *zap.Logger) *Runner {
	return &Runner{timeout: timeout, log: log.Named("batch"), now: time.Now}
}

// Start launches task in a goroutine detached from ctx's cancellation. It
// returns the running job with ErrJobRunning when another job is active.
func (r *Runner) Start(ctx context.Context, name string, task Task) (Job, error) {
	r.mu.Lock()
	if r.current != nil && r.current.Status == StatusRunning {
		running := *r.current
		r.mu.Unlock()
		return running, ErrJobRunning
	}

	jobCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if r.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, r.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}

	job := &Job{
		ID:        uuid.New().String()[:8],
		Name:      name,
		Status:    StatusRunning,
		StartedAt: r.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.current = job
	snapshot := *job
	r.mu.Unlock()

	go r.run(jobCtx, job, task)
	return snapshot, nil
}

func (r *Runner) run(ctx context.Context, job *Job, task Task) {
	defer close(job.done)
	defer job.cancel()

	report := func(done, total int) {
		r.mu.Lock()
		job.Progress = Progress{Done: done, Total: total}
		r.mu.Unlock()
	}

	result, err := r.safeRun(ctx, task, report)

	r.mu.Lock()
	job.EndedAt = r.now()
	job.Result = result
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
	}
	final := *job
	r.mu.Unlock()

	metrics.JobDuration.WithLabelValues(final.Name, string(final.Status)).
		Observe(final.EndedAt.Sub(final.StartedAt).Seconds())
	if err != nil {
		r.log.Error("job failed", zap.String("job_id", final.ID), zap.String("job", final.Name), zap.Error(err))
		return
	}
	r.log.Info("job completed",
		zap.String("job_id", final.ID),
		zap.String("job", final.Name),
		zap.Duration("duration", final.EndedAt.Sub(final.StartedAt)),
	)
}

func (r *Runner) safeRun(ctx context.Context, task Task, report func(done, total int)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return task(ctx, report)
}

// Get returns the job with the given id. Only the latest job is kept.
func (r *Runner) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != id {
		return Job{}, ErrJobNotFound
	}
	return *r.current, nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	if r.current == nil || r.current.ID != id {
		r.mu.Unlock()
		return Job{}, ErrJobNotFound
	}
	done := r.current.done
	r.mu.Unlock()

	select {
	case <-done:
		return r.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Cancel stops the running job, if any.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != id {
		return ErrJobNotFound
	}
	r.current.cancel()
	return nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
