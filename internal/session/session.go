// Package session owns a single external tool invocation: spawning the
// process, streaming its merged output line by line, enforcing an overall
// timeout, and recovering the one invocation class that is allowed to stall.
//
// The DFU-entry command frequently freezes mid-handshake when the device is
// slow to re-enumerate. For that command only, a stall monitor watches the
// output stream and performs a restart-in-place: the frozen child is stopped
// and an identical process is spawned, up to [MaxRestarts] times, while the
// caller continues to see one continuous invocation. Every other command is
// run exactly once.
//
// A session moves through a small explicit state machine:
//
//	Starting → Streaming → (StalledRestarting → Streaming)* → Completed | Failed
//
// Termination only ever targets the exact child process spawned by this
// session. Process-group signals are deliberately never used: the supervisor
// can share a process group with its children, and a group kill would take
// the supervisor down with them.
package session

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// MaxRestarts is the maximum number of automatic restart-in-place attempts
// for a stall-sensitive session. Once exhausted, the next stall becomes an
// ordinary failure.
const MaxRestarts = 3

// Default supervision intervals. Sessions created by [New] use these; tests
// override the fields directly before calling [Session.Start].
const (
	// DefaultStallBudget is how long a stall-sensitive command may go
	// without producing output before it is restarted.
	DefaultStallBudget = 5 * time.Second

	// DefaultCheckInterval is how often the stall monitor compares the
	// current time against the last-output timestamp.
	DefaultCheckInterval = 1 * time.Second

	// DefaultGracePeriod is how long a child gets to exit after a
	// termination request before it is force-killed.
	DefaultGracePeriod = 500 * time.Millisecond
)

// Spec describes one external command invocation.
type Spec struct {
	// Name is the executable to run.
	Name string

	// Args are the arguments, passed as an argv vector. Commands are never
	// routed through a shell.
	Args []string

	// Timeout bounds the whole invocation. Zero means no limit. A timed-out
	// command is force-killed and reported as failed; it is never restarted.
	Timeout time.Duration

	// CaptureOutput collects the streamed lines into the final [Result].
	CaptureOutput bool

	// StallSensitive enables the stall monitor and restart-in-place
	// recovery. Only the DFU-entry invocation sets this.
	StallSensitive bool
}

// Observer receives each output line as it is produced, before the session
// completes. Lines arrive in the exact order the child wrote them.
type Observer func(line string)

// Result is the terminal outcome of a session.
type Result struct {
	// Success is true only when the child exited with status zero (for a
	// stall-sensitive command: any generation exited zero).
	Success bool

	// Output is the captured output, empty unless [Spec.CaptureOutput].
	Output string

	// TimedOut reports whether the session was killed by its overall timeout.
	TimedOut bool

	// Canceled reports whether the session was terminated by the caller.
	Canceled bool

	// Restarts is how many restart-in-place attempts were performed.
	Restarts int
}

// State identifies where a session is in its lifecycle.
type State int32

const (
	// StateStarting means Start has been called but the first process has
	// not begun streaming yet.
	StateStarting State = iota

	// StateStreaming means a child process is live and its output is being
	// read.
	StateStreaming

	// StateStalledRestarting means a stalled child is being replaced by a
	// fresh process for the same command.
	StateStalledRestarting

	// StateCompleted means the session finished with a zero exit.
	StateCompleted

	// StateFailed means the session finished unsuccessfully (non-zero exit,
	// timeout, cancellation, or exhausted stall recovery).
	StateFailed
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStalledRestarting:
		return "stalled-restarting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session supervises one external command invocation. Create with [New],
// launch with [Session.Start], and wait on [Session.Done]. A Session is
// single-use: once it reaches a terminal state it never spawns again.
type Session struct {
	spec     Spec
	observer Observer

	// Supervision tuning, defaulted by New. Exposed so tests can shrink the
	// intervals; must not be changed after Start.
	StallBudget   time.Duration
	CheckInterval time.Duration
	GracePeriod   time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	read *os.File

	state      atomic.Int32
	terminated atomic.Bool
	stalled    atomic.Bool
	timedOut   atomic.Bool
	lastOutput atomic.Int64 // monotonic reference, nanoseconds

	restarts int
	start    time.Time

	done   chan struct{}
	result Result
}

// New creates a session for the given spec. The observer may be nil when the
// caller does not need incremental output.
func New(spec Spec, observer Observer) *Session {
	if observer == nil {
		observer = func(string) {}
	}
	return &Session{
		spec:          spec,
		observer:      observer,
		StallBudget:   DefaultStallBudget,
		CheckInterval: DefaultCheckInterval,
		GracePeriod:   DefaultGracePeriod,
		done:          make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Restarts returns how many restart-in-place attempts have been performed.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Done is closed when the session reaches a terminal state, strictly after
// the final output line has been delivered to the observer.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the terminal outcome. Valid only after Done is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Start spawns the first process generation and begins supervision in a
// background goroutine.
//
// A *[SpawnError] is returned when the executable cannot be started at all
// (missing binary, bad permissions). Spawn failures are surfaced to the
// operator immediately and are never retried, even for stall-sensitive
// commands. On success the session will eventually close [Session.Done].
func (s *Session) Start(ctx context.Context) error {
	s.start = time.Now()
	s.touch()

	if err := s.spawn(); err != nil {
		s.state.Store(int32(StateFailed))
		return &SpawnError{Command: s.spec.Name, Err: err}
	}
	s.state.Store(int32(StateStreaming))

	if s.spec.Timeout > 0 {
		// The timeout covers the whole invocation, including any
		// restart-in-place generations.
		time.AfterFunc(s.spec.Timeout, func() {
			if s.State() == StateCompleted || s.State() == StateFailed {
				return
			}
			s.timedOut.Store(true)
			s.terminateProcess()
		})
	}

	stop := context.AfterFunc(ctx, func() { s.Cancel() })

	go func() {
		defer stop()
		s.supervise()
	}()
	return nil
}

// Cancel requests cooperative termination. The terminated flag is monotonic:
// no further output is delivered, no restart-in-place will occur, and the
// live child (if any) is stopped under the termination policy. Cancel is
// idempotent and safe at any point of the lifecycle.
func (s *Session) Cancel() {
	s.terminated.Store(true)
	s.terminateProcess()
}

// supervise runs the generation loop: stream the current process, decide the
// outcome, and either restart in place or finish.
func (s *Session) supervise() {
	var captured []byte

	for {
		stallDone := s.watchForStall()
		s.streamLines(&captured)
		close(stallDone)

		exitErr := s.waitProcess()

		switch {
		case s.terminated.Load():
			s.finish(Result{Canceled: true, Restarts: s.restarts})
			return

		case s.timedOut.Load():
			s.finish(Result{TimedOut: true, Restarts: s.restarts})
			return

		case exitErr == nil:
			res := Result{Success: true, Restarts: s.restarts}
			if s.spec.CaptureOutput {
				res.Output = string(captured)
			}
			s.finish(res)
			return

		case s.spec.StallSensitive && s.stalled.Load() && s.restarts < MaxRestarts:
			// Restart-in-place: a fresh generation of the same command.
			// The prior generation's stream simply ended at the stall
			// boundary; its captured lines are kept.
			s.mu.Lock()
			s.restarts++
			s.mu.Unlock()
			s.stalled.Store(false)
			s.state.Store(int32(StateStalledRestarting))
			s.touch()

			if err := s.spawn(); err != nil {
				s.finish(Result{Restarts: s.restarts})
				return
			}
			s.state.Store(int32(StateStreaming))

		default:
			s.finish(Result{Restarts: s.restarts})
			return
		}
	}
}

// spawn starts a new child process with stdout and stderr merged into one
// pipe. The terminated flag is checked under the lock so a cancellation can
// never race a new generation into existence.
func (s *Session) spawn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated.Load() {
		return os.ErrClosed
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return err
	}

	cmd := exec.Command(s.spec.Name, s.spec.Args...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return err
	}

	// The child holds the write end; closing ours makes the read loop see
	// EOF as soon as the child exits.
	pw.Close()

	s.cmd = cmd
	s.read = pr
	return nil
}

// streamLines reads the merged output one line at a time until EOF or
// termination, notifying the observer and refreshing the stall clock.
func (s *Session) streamLines(captured *[]byte) {
	s.mu.Lock()
	pr := s.read
	s.mu.Unlock()
	defer pr.Close()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if s.terminated.Load() {
			return
		}
		line := scanner.Text()
		s.touch()
		s.observer(line)
		if s.spec.CaptureOutput {
			*captured = append(*captured, line...)
			*captured = append(*captured, '\n')
		}
	}
}

// watchForStall runs the stall monitor for the current generation when the
// spec is stall-sensitive. The returned channel must be closed when the
// generation's stream ends.
func (s *Session) watchForStall() chan struct{} {
	generationDone := make(chan struct{})
	if !s.spec.StallSensitive {
		return generationDone
	}

	go func() {
		ticker := time.NewTicker(s.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-generationDone:
				return
			case <-ticker.C:
				if s.terminated.Load() || s.timedOut.Load() {
					return
				}
				idle := time.Duration(nanotime() - s.lastOutput.Load())
				if idle > s.StallBudget {
					// Mark before killing so the supervise loop can tell a
					// stall apart from an ordinary failure.
					s.stalled.Store(true)
					s.terminateProcess()
					return
				}
			}
		}
	}()
	return generationDone
}

// waitProcess reaps the current child and returns its exit error, if any.
func (s *Session) waitProcess() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return os.ErrProcessDone
	}
	return cmd.Wait()
}

// terminateProcess applies the termination policy to the live child: request
// a graceful exit, allow the grace period, then force-kill. Only the exact
// child PID is ever signaled — never a process group, because the supervisor
// may share one with the child.
func (s *Session) terminateProcess() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	proc := cmd.Process

	if err := proc.Signal(os.Interrupt); err != nil {
		// Already gone, or the platform cannot deliver the signal; fall
		// through to the hard kill.
		proc.Kill()
		return
	}

	grace := time.NewTimer(s.GracePeriod)
	defer grace.Stop()

	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-grace.C:
			proc.Kill()
			return
		case <-poll.C:
			// Signal 0 probes for liveness without delivering anything.
			if err := proc.Signal(probeSignal); err != nil {
				return
			}
		}
	}
}

// finish records the terminal result and releases waiters. It runs exactly
// once per session.
func (s *Session) finish(res Result) {
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()

	if res.Success {
		s.state.Store(int32(StateCompleted))
	} else {
		s.state.Store(int32(StateFailed))
	}
	close(s.done)
}

// touch refreshes the last-output timestamp used by the stall monitor.
func (s *Session) touch() {
	s.lastOutput.Store(nanotime())
}

func nanotime() int64 {
	return time.Now().UnixNano()
}
