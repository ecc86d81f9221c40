// Package runner serializes access to external tool execution.
//
// Device operations must never overlap: two concurrent invocations would
// fight over the same USB device and leave it in an undefined state. The
// [Runner] enforces a whole-program "one live session" rule with a try-lock.
// A second Run while a session is active is rejected synchronously with
// [ErrBusy] rather than queued, so the operator always sees exactly what the
// tool is doing — nothing runs silently later.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"turdusctl/internal/session"
)

// ErrBusy is returned by [Runner.Run] when a session is already active.
// The caller should surface this to the operator and retry after the active
// operation completes or is canceled; requests are never queued.
var ErrBusy = errors.New("an operation is already running")

// CompletionFunc receives the terminal result of a session, exactly once,
// after every output line has been delivered to the log sink.
type CompletionFunc func(res session.Result)

// LogSink receives each output line in the order the child produced it.
type LogSink func(line string)

// Tuning overrides the supervision intervals of every session the runner
// creates. Zero fields keep the session defaults.
type Tuning struct {
	StallBudget   time.Duration
	CheckInterval time.Duration
	GracePeriod   time.Duration
}

// Runner guarantees at most one live [session.Session] for the whole
// program and presents a uniform async-completion contract.
type Runner struct {
	tuning Tuning

	mu     sync.Mutex
	active atomic.Pointer[session.Session]
}

// New creates an idle Runner. Pass a zero [Tuning] to use the session
// defaults.
func New(tuning Tuning) *Runner {
	return &Runner{tuning: tuning}
}

// Running reports whether a session is currently active.
func (r *Runner) Running() bool {
	return r.active.Load() != nil
}

// Run starts a session for the given spec.
//
// Returns [ErrBusy] when another session is active: the existing session is
// left untouched and nothing is queued. Returns a *[session.SpawnError] when
// the process cannot be started. On success the sink receives every output
// line in order, then done is invoked exactly once with the terminal result.
func (r *Runner) Run(ctx context.Context, spec session.Spec, sink LogSink, done CompletionFunc) error {
	if !r.mu.TryLock() {
		return ErrBusy
	}

	sess := session.New(spec, session.Observer(sink))
	if r.tuning.StallBudget > 0 {
		sess.StallBudget = r.tuning.StallBudget
	}
	if r.tuning.CheckInterval > 0 {
		sess.CheckInterval = r.tuning.CheckInterval
	}
	if r.tuning.GracePeriod > 0 {
		sess.GracePeriod = r.tuning.GracePeriod
	}
	if err := sess.Start(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	r.active.Store(sess)

	go func() {
		<-sess.Done()
		res := sess.Result()
		r.active.Store(nil)
		r.mu.Unlock()
		if done != nil {
			done(res)
		}
	}()
	return nil
}

// RunWait is a convenience wrapper for callers that want to block until the
// session completes. It preserves the same busy and spawn-error semantics as
// [Runner.Run].
func (r *Runner) RunWait(ctx context.Context, spec session.Spec, sink LogSink) (session.Result, error) {
	ch := make(chan session.Result, 1)
	if err := r.Run(ctx, spec, sink, func(res session.Result) { ch <- res }); err != nil {
		return session.Result{}, err
	}
	return <-ch, nil
}

// Cancel forwards a termination request to the active session. Canceling
// when nothing is running is a no-op.
func (r *Runner) Cancel() {
	if sess := r.active.Load(); sess != nil {
		sess.Cancel()
	}
}
