// Package jobs runs the periodic maintenance work of the worker process.
// Every job runs under a Redis lock so overlapping ticks never execute the
// same job twice at once.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/flick/backend/internal/lock"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Job is one periodic unit of work.
type Job struct {
	Type     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Locker runs fn while holding the named lock.
type Locker interface {
	RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type Runner struct {
	locks Locker
	jobs  map[string]Job
	order []string
}

func NewRunner(locks Locker, jobs ...Job) *Runner {
	r := &Runner{locks: locks, jobs: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		r.jobs[job.Type] = job
		r.order = append(r.order, job.Type)
	}
	return r
}

// Register routes every job type on mux to the runner.
func (r *Runner) Register(mux *asynq.ServeMux) {
	for _, typ := range r.order {
		mux.Handle(typ, r)
	}
}

// Periodic returns the cron entries for every job.
func (r *Runner) Periodic() []scheduler.PeriodicJob {
	entries := make([]scheduler.PeriodicJob, 0, len(r.order))
	for _, typ := range r.order {
		entries = append(entries, scheduler.PeriodicJob{Type: typ, Interval: r.jobs[typ].Interval})
	}
	return entries
}

// ProcessTask implements asynq.Handler. Job failures are logged and
// swallowed; the next tick runs the job again.
func (r *Runner) ProcessTask(ctx context.Context, t *asynq.Task) error {
	job, ok := r.jobs[t.Type()]
	if !ok {
		return errors.New("unknown job type " + t.Type())
	}
	r.Run(ctx, job)
	return nil
}

// Run executes job under its lock.
func (r *Runner) Run(ctx context.Context, job Job) {
	log := logrus.WithField("job", job.Type)
	start := time.Now()

	err := r.locks.RunExclusive(ctx, job.Type, job.Interval, job.Run)
	switch {
	case errors.Is(err, lock.ErrHeld):
		log.Debug("job already running elsewhere, skipping tick")
	case err != nil:
		log.WithError(err).Error("job failed")
	default:
		log.WithField("took", time.Since(start).String()).Info("job finished")
	}
}
