package serializer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt-interface/pkg/asyncqueue"
	"github.com/nerrad567/mqtt-interface/pkg/promise"
)

// Command is a unit of work run on the worker goroutine.
type Command func() (any, error)

// State is the lifecycle state of the worker.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

type entryKind int

const (
	entryExecute entryKind = iota
	entryStop
)

// entry is a queued item: either a command with its result cell, or the
// stop marker.
type entry struct {
	kind    entryKind
	seq     uint64
	command Command
	result  *promise.Promise[any]
}

// Logger defines the logging interface for the serializer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Serializer owns the command queue and its single worker goroutine.
type Serializer struct {
	queue *asyncqueue.Queue[entry]

	mu        sync.Mutex
	state     State
	accepting bool
	nextSeq   uint64
	runErr    error
	done      chan struct{}

	logger  Logger
	metrics *metrics.Metrics

	executed atomic.Uint64
	failed   atomic.Uint64
}

// New creates an idle serializer.
func New() *Serializer {
	return &Serializer{
		queue:     asyncqueue.New[entry](),
		state:     StateIdle,
		accepting: true,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (s *Serializer) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets the metrics sink. Call before Start.
func (s *Serializer) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Submit queues cmd and returns the promise its result will be delivered
// through. It never blocks.
//
// After Stop, or for a nil cmd, the returned promise is already failed.
func (s *Serializer) Submit(cmd Command) *promise.Promise[any] {
	if cmd == nil {
		return promise.Failed[any](ErrNilCommand)
	}

	p := promise.New[any]()

	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return promise.Failed[any](ErrStopped)
	}
	s.nextSeq++
	s.queue.Push(entry{
		kind:    entryExecute,
		seq:     s.nextSeq,
		command: cmd,
		result:  p,
	})
	s.mu.Unlock()

	s.metrics.SetQueueDepth(s.queue.Len())
	return p
}

// Do submits fn and waits for its result with Await.
func Do[T any](ctx context.Context, s *Serializer, fn func() (T, error)) (T, error) {
	p := s.Submit(func() (any, error) {
		v, err := fn()
		return v, err
	})

	v, err := p.Await(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Start launches the worker goroutine.
func (s *Serializer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.accepting:
		return ErrStopped
	case s.state != StateIdle:
		return ErrAlreadyStarted
	}
	s.state = StateRunning

	go s.run()
	return nil
}

// run is the worker loop. It is the only code that invokes commands.
func (s *Serializer) run() {
	s.logger.Debug("command worker started")

	err := s.loop()
	if err != nil {
		s.logger.Error("command worker terminated", "error", err)
	} else {
		s.logger.Debug("command worker stopped")
	}

	s.finish(err)
}

func (s *Serializer) loop() error {
	for {
		e, err := s.queue.Get(0)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEntry, err)
		}
		s.metrics.SetQueueDepth(s.queue.Len())

		switch e.kind {
		case entryStop:
			return nil
		case entryExecute:
			if e.command == nil || e.result == nil {
				if e.result != nil {
					e.result.Fail(ErrMalformedEntry)
				}
				return fmt.Errorf("%w: entry %d has no command or result", ErrMalformedEntry, e.seq)
			}
			s.execute(e)
		default:
			return fmt.Errorf("%w: unknown kind %d", ErrMalformedEntry, e.kind)
		}
	}
}

func (s *Serializer) execute(e entry) {
	start := time.Now()
	value, err := invoke(e.command)
	elapsed := time.Since(start)

	s.executed.Add(1)
	if err != nil {
		s.failed.Add(1)
		s.metrics.ObserveCommand(metrics.OutcomeFailed, elapsed)
		s.logger.Warn("command failed", "seq", e.seq, "error", err)
		e.result.Fail(&CommandError{Seq: e.seq, Err: err})
		return
	}

	s.metrics.ObserveCommand(metrics.OutcomeOK, elapsed)
	e.result.Fulfill(value)
}

// invoke runs cmd, converting a panic into an error.
func invoke(cmd Command) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrCommandPanicked, r)
		}
	}()
	return cmd()
}

// finish records the loop outcome and fails anything left in the queue.
func (s *Serializer) finish(err error) {
	s.mu.Lock()
	s.state = StateStopped
	s.accepting = false
	s.runErr = err
	s.mu.Unlock()

	s.drain()
	close(s.done)
}

func (s *Serializer) drain() {
	for {
		e, ok := s.queue.TryGet()
		if !ok {
			break
		}
		if e.kind == entryExecute && e.result != nil {
			e.result.Fail(ErrStopped)
		}
	}
	s.queue.Close()
	s.metrics.SetQueueDepth(0)
}

// Stop stops accepting commands, lets the worker finish everything already
// queued, and waits up to timeout for it to exit. A timeout of zero or less
// waits without limit.
//
// Returns:
//   - error: ErrStopTimeout if the worker did not exit in time, or the
//     error that terminated the worker loop early
func (s *Serializer) Stop(timeout time.Duration) error {
	s.mu.Lock()
	wasAccepting := s.accepting
	s.accepting = false

	if s.state == StateIdle {
		// The worker never ran: nothing will drain the queue.
		s.state = StateStopped
		s.mu.Unlock()
		s.drain()
		close(s.done)
		return nil
	}

	if wasAccepting && s.state == StateRunning {
		s.queue.Push(entry{kind: entryStop})
	}
	s.mu.Unlock()

	if timeout <= 0 {
		<-s.done
		return s.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return s.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v (%d commands pending)", ErrStopTimeout, timeout, s.Pending())
	}
}

// Done returns a channel closed once the worker has exited (or Stop was
// called before Start).
func (s *Serializer) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that terminated the worker loop, if any.
func (s *Serializer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// State returns the current lifecycle state.
func (s *Serializer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of queued entries.
func (s *Serializer) Pending() int {
	return s.queue.Len()
}

// Executed returns the number of commands run so far.
func (s *Serializer) Executed() uint64 {
	return s.executed.Load()
}

// Failed returns the number of commands that returned an error or panicked.
func (s *Serializer) Failed() uint64 {
	return s.failed.Load()
}
