// Package workflow runs named multi-step jobs with bounded concurrency.
// Steps are not retried: provisioning commands are not idempotent, so a
// failed step fails the whole run.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultConcurrency bounds simultaneously running jobs; further runs
	// queue until a slot frees up.
	DefaultConcurrency = 100
	// DefaultTimeout bounds a run's wall-clock time.
	DefaultTimeout = 10 * time.Minute
)

// Runner executes jobs with a shared concurrency limit.
type Runner struct {
	log     *logrus.Logger
	sem     chan struct{}
	timeout time.Duration
}

// NewRunner creates a Runner. Zero values select the defaults.
func NewRunner(log *logrus.Logger, concurrency int, timeout time.Duration) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		log:     log,
		sem:     make(chan struct{}, concurrency),
		timeout: timeout,
	}
}

// Run executes a job, blocking until a concurrency slot is available. The
// job's context is cancelled when the run exceeds the wall-clock timeout.
func (r *Runner) Run(ctx context.Context, name string, fn func(run *Run) error) error {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.sem }()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := r.log.WithField("job", name)
	log.Info("job started")
	start := time.Now()

	err := fn(&Run{ctx: runCtx, log: log})
	if err != nil {
		log.WithError(err).WithField("elapsed", time.Since(start).Round(time.Millisecond)).Error("job failed")
		return err
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("job finished")
	return nil
}

// Go executes a job on a new goroutine. Errors are handled inside the job or
// surfaced through its own state updates. The returned channel is closed when
// the run completes, whatever the outcome.
func (r *Runner) Go(ctx context.Context, name string, fn func(run *Run) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, name, fn)
	}()
	return done
}

// Run is the in-flight state handed to a job.
type Run struct {
	ctx context.Context
	log *logrus.Entry
}

// Context returns the run's context.
func (r *Run) Context() context.Context {
	return r.ctx
}

// Step executes one named unit of the job. The step error carries the step
// name so a failed run reports where it stopped.
func (r *Run) Step(name string, fn func(ctx context.Context) error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	r.log.WithField("step", name).Debug("step started")
	if err := fn(r.ctx); err != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}
	r.log.WithField("step", name).Debug("step finished")
	return nil
}

// Sleep pauses the run, returning early if the run is cancelled.
func (r *Run) Sleep(d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}
