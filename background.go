package identity

import (
	"context"
	"sync"
)

// Task is a unit of deferred work. The context it receives is detached from
// the request that scheduled it.
type Task func(ctx context.Context) error

// TaskSink schedules work that must complete after the response is flushed:
// cache invalidation, audit records, notification delivery. Scheduling never
// fails from the caller's point of view; task errors are logged, not
// returned, and there is no ordering guarantee between tasks.
type TaskSink interface {
	Schedule(ctx context.Context, name string, task Task)
}

// HostWaiter is the host's lifetime-extension primitive. Serverless-style
// hosts implement it to keep the process alive until done closes.
type HostWaiter interface {
	WaitUntil(done <-chan struct{})
}

// HostWaiterFunc adapts a function to the HostWaiter interface.
type HostWaiterFunc func(done <-chan struct{})

// WaitUntil implements HostWaiter.
func (f HostWaiterFunc) WaitUntil(done <-chan struct{}) {
	if f != nil {
		f(done)
	}
}

// Runner is the production TaskSink. Each task runs on its own goroutine
// with a context detached from request cancellation, recovers panics, and
// reports failures through the logger only.
type Runner struct {
	logger Logger
	waiter HostWaiter
	wg     sync.WaitGroup
}

// NewRunner builds a Runner. The waiter is optional: without one tasks still
// start, but a host that recycles the process early may cut them short.
func NewRunner() *Runner {
	return &Runner{logger: defLogger{}}
}

func (r *Runner) WithLogger(logger Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Runner) WithHostWaiter(waiter HostWaiter) *Runner {
	r.waiter = waiter
	return r
}

// Schedule implements TaskSink.
func (r *Runner) Schedule(ctx context.Context, name string, task Task) {
	if task == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	done := make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task %q panicked: %v", name, rec)
			}
		}()

		if err := task(ctx); err != nil {
			r.logger.Error("background task %q failed: %v", name, err)
		}
	}()

	if r.waiter == nil {
		r.logger.Debug("background task %q scheduled without a host waiter", name)
		return
	}

	// the waiter may legitimately block until done closes, so it runs on its
	// own goroutine; the task above is already started and will close done
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.waiter.WaitUntil(done)
	}()
}

// Wait blocks until every scheduled task has finished. Meant for graceful
// shutdown and tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}

var _ TaskSink = (*Runner)(nil)

// SyncTaskSink runs tasks inline on the scheduling goroutine. Deterministic
// by construction, it exists for tests and for hosts that cannot tolerate
// stray goroutines.
type SyncTaskSink struct {
	logger Logger
}

// NewSyncTaskSink builds an inline sink.
func NewSyncTaskSink(logger Logger) *SyncTaskSink {
	if logger == nil {
		logger = defLogger{}
	}
	return &SyncTaskSink{logger: logger}
}

// Schedule implements TaskSink. Errors and panics are contained just like in
// the asynchronous Runner.
func (s *SyncTaskSink) Schedule(ctx context.Context, name string, task Task) {
	if task == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("background task %q panicked: %v", name, rec)
		}
	}()

	if err := task(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("background task %q failed: %v", name, err)
	}
}

var _ TaskSink = (*SyncTaskSink)(nil)

type noopTaskSink struct{}

func (noopTaskSink) Schedule(context.Context, string, Task) {}

func normalizeTaskSink(s TaskSink) TaskSink {
	if s == nil {
		return noopTaskSink{}
	}
	return s
}
