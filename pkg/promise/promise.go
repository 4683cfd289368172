package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Promise is a single-assignment container for a value or an error.
//
// The zero value is not usable; create promises with New.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Exactly one Fulfill/Fail/Resolve call may succeed; any further call panics.
type Promise[T any] struct {
	mu        sync.Mutex
	completed bool
	done      chan struct{}

	// value and err are written once under mu before done is closed, and
	// only read after done is closed.
	value T
	err   error
}

// New returns an empty promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Fulfilled returns a promise already completed with v.
func Fulfilled[T any](v T) *Promise[T] {
	p := New[T]()
	p.Fulfill(v)
	return p
}

// Failed returns a promise already completed with err.
func Failed[T any](err error) *Promise[T] {
	p := New[T]()
	p.Fail(err)
	return p
}

// Fulfill completes the promise with a value and wakes every waiter.
//
// Panics with an error wrapping ErrAlreadyFulfilled if the promise has
// already been completed.
func (p *Promise[T]) Fulfill(v T) {
	p.complete(v, nil)
}

// Fail completes the promise with an error and wakes every waiter.
//
// Panics if err is nil or if the promise has already been completed.
func (p *Promise[T]) Fail(err error) {
	if err == nil {
		panic(ErrNilError)
	}
	var zero T
	p.complete(zero, err)
}

// Resolve completes the promise from a (value, error) pair: a non-nil err
// fails the promise, otherwise v fulfils it.
func (p *Promise[T]) Resolve(v T, err error) {
	if err != nil {
		p.Fail(err)
		return
	}
	p.Fulfill(v)
}

func (p *Promise[T]) complete(v T, err error) {
	p.mu.Lock()
	if p.completed {
		prev := p.err
		p.mu.Unlock()
		if prev != nil {
			panic(fmt.Errorf("%w (previous error: %v)", ErrAlreadyFulfilled, prev))
		}
		panic(ErrAlreadyFulfilled)
	}
	p.completed = true
	p.value = v
	p.err = err
	p.mu.Unlock()

	close(p.done)
}

// Done returns a channel that is closed once the promise completes.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// IsDone reports whether the promise has completed.
func (p *Promise[T]) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Peek returns the outcome without waiting. ok is false while the promise
// is still empty.
func (p *Promise[T]) Peek() (v T, ok bool, err error) {
	if !p.IsDone() {
		return v, false, nil
	}
	return p.value, true, p.err
}

// Result blocks until the promise completes or timeout elapses.
//
// A timeout of zero or less waits without limit.
//
// Returns:
//   - T: the fulfilled value (zero value on failure or timeout)
//   - error: the stored error, or an error wrapping ErrTimeout
func (p *Promise[T]) Result(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-p.done
		return p.value, p.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.value, p.err
	case <-timer.C:
		// Completion and expiry can race; a completed promise wins.
		if p.IsDone() {
			return p.value, p.err
		}
		var zero T
		return zero, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

// Await waits for the promise to complete or for ctx to be done.
//
// The waiting goroutine holds no lock and no pool slot; cancelling ctx
// releases it immediately and leaves the promise untouched for other readers.
// A ctx deadline is reported as an error wrapping both ErrTimeout and
// context.DeadlineExceeded.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		if p.IsDone() {
			return p.value, p.err
		}
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}
