package asyncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/mqtt-interface/pkg/promise"
)

// Executor runs delegated waits. Go may block until capacity is available
// and must return an error instead of running fn when ctx is done first.
type Executor interface {
	Go(ctx context.Context, fn func()) error
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	executor Executor
}

// WithExecutor sets the executor used by GetAsync and AwaitGet.
// Without one, each delegated wait gets its own goroutine.
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// Queue is an unbounded FIFO queue.
//
// Thread Safety:
//   - Push may be called from any goroutine, including broker delivery
//     goroutines; it never blocks.
//   - Any number of consumers may wait concurrently.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds at most one pending wake-up. A consumer that pops an item
	// and leaves others behind passes the wake-up on.
	ready    chan struct{}
	closedCh chan struct{}

	executor Executor
}

// New creates an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		ready:    make(chan struct{}, 1),
		closedCh: make(chan struct{}),
		executor: o.executor,
	}
}

// Push appends item to the tail of the queue.
// It returns false, dropping the item, if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
	return true
}

// pushFront returns an item taken by an abandoned waiter to the head.
func (q *Queue[T]) pushFront(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	copy(q.items[1:], q.items)
	q.items[0] = item
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// tryPop removes the head item if there is one. closed reports whether the
// queue is closed and empty.
func (q *Queue[T]) tryPop() (item T, ok bool, closed bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		closed = q.closed
		q.mu.Unlock()
		return item, false, closed
	}

	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	more := len(q.items) > 0
	if !more {
		q.items = nil
	}
	q.mu.Unlock()

	if more {
		q.wake()
	}
	return item, true, false
}

// TryGet removes and returns the head item without waiting.
func (q *Queue[T]) TryGet() (T, bool) {
	item, ok, _ := q.tryPop()
	return item, ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting items and wakes all waiters. Items already
// queued can still be consumed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closedCh)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Get removes and returns the head item, waiting up to timeout for one to
// arrive. A timeout of zero or less waits without limit.
//
// Returns:
//   - error: wraps ErrTimeout when nothing arrived in time (never before
//     timeout has elapsed), or ErrClosed when the queue is closed and empty
func (q *Queue[T]) Get(timeout time.Duration) (T, error) {
	return q.GetContext(context.Background(), timeout)
}

// GetContext is Get with cancellation. When ctx is done first it returns
// ctx.Err() and leaves the queue untouched.
func (q *Queue[T]) GetContext(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		item, ok, closed := q.tryPop()
		if ok {
			return item, nil
		}
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.ready:
		case <-q.closedCh:
		case <-expired:
			// An item pushed right at the deadline is still delivered.
			if item, ok, _ := q.tryPop(); ok {
				return item, nil
			}
			return zero, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// GetAsync delegates a GetContext call to the queue's executor and returns a
// promise for its outcome. The call itself does not wait for an item; it
// may wait for executor capacity.
//
// The caller owns the item the promise resolves with. Callers that may stop
// listening before the promise resolves should use AwaitGet instead.
func (q *Queue[T]) GetAsync(ctx context.Context, timeout time.Duration) *promise.Promise[T] {
	p := promise.New[T]()
	wait := func() {
		p.Resolve(q.GetContext(ctx, timeout))
	}

	if q.executor == nil {
		go wait()
		return p
	}
	if err := q.executor.Go(ctx, wait); err != nil {
		p.Fail(err)
	}
	return p
}

// AwaitGet waits for the next item through GetAsync and Await.
//
// If ctx is done before an item is handed over, the delegated wait is left to
// finish on its own; an item it takes after the caller has gone is put back
// at the head of the queue.
func (q *Queue[T]) AwaitGet(ctx context.Context, timeout time.Duration) (T, error) {
	p := q.GetAsync(ctx, timeout)
	item, err := p.Await(ctx)
	if err != nil {
		go q.reclaim(p)
	}
	return item, err
}

func (q *Queue[T]) reclaim(p *promise.Promise[T]) {
	if item, err := p.Result(0); err == nil {
		q.pushFront(item)
	}
}
