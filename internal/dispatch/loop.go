// Package dispatch runs a worker's handler invocations one at a time.
//
// HTTP connections are served concurrently, but everything that touches
// module code or the state replica is submitted to a single Loop and runs to
// completion in submission order. A request submits its work only after its
// body has been read, so requests complete in the order their bodies finished
// arriving. A handler that blocks stalls the whole worker; handlers that need
// to wait should use asynchronous completion instead.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
)

// ErrStopped is returned by Do once the loop has stopped.
var ErrStopped = errors.New("dispatch loop stopped")

// Loop serializes work onto one goroutine.
type Loop struct {
	jobs    chan func()
	stopped chan struct{}
	logger  *slog.Logger
}

// NewLoop creates a loop that buffers up to queue pending jobs.
func NewLoop(queue int, logger *slog.Logger) *Loop {
	return &Loop{
		jobs:    make(chan func(), queue),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run executes jobs until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	l.logger.Debug("Dispatch loop started.")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("Dispatch loop stopped.")
			return
		case job := <-l.jobs:
			l.run(job)
		}
	}
}

func (l *Loop) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Dispatch job panicked.", "panic", r)
		}
	}()
	job()
}

// Do submits fn and waits for it to finish. If ctx ends first, Do returns
// ctx.Err() and fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case l.jobs <- job:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go submits fn without waiting for it.
func (l *Loop) Go(fn func()) {
	select {
	case l.jobs <- fn:
	case <-l.stopped:
	}
}
