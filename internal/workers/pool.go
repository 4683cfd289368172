package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolClosed is returned by Go after Shutdown has been called.
	ErrPoolClosed = errors.New("workers: pool is shut down")

	// ErrShutdownTimeout is returned when running work outlives the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("workers: timed out waiting for running work")
)

// Pool runs functions on at most Size goroutines at a time.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	running atomic.Int64
}

// NewPool creates a pool with the given number of slots (minimum 1).
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Go runs fn on its own goroutine once a slot is free.
//
// It blocks while the pool is saturated. If ctx is done before a slot frees
// up, fn is not run and the context error is returned.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return fmt.Errorf("workers: acquiring slot: %w", err)
	}

	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.running.Add(-1)
		fn()
	}()
	return nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Running returns the number of functions currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Shutdown rejects new work and waits up to timeout for running work to
// finish. A timeout of zero or less waits without limit.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %d still running after %v", ErrShutdownTimeout, p.Running(), timeout)
	}
}
