// Package promise provides a single-assignment result cell shared between
// one producer and any number of readers.
//
// A Promise starts empty and is completed exactly once, either with a value
// (Fulfill) or with an error (Fail). Completing it a second time is a
// programming error and panics with ErrAlreadyFulfilled.
//
// # Readers
//
// Two families of readers observe the same cell:
//
//   - Result(timeout) parks the calling goroutine until the cell completes or
//     the timeout elapses.
//   - Await(ctx) waits until the cell completes or ctx is done, so the waiter
//     can be cancelled by its owner.
//
// Done() exposes the wake handle itself: a channel closed exactly once when
// the cell completes. Schedulers and select loops use it directly.
//
// Every reader receives the identical value or error.
//
// # Usage
//
//	p := promise.New[bool]()
//	go func() { p.Fulfill(true) }()
//	ok, err := p.Result(5 * time.Second)
package promise
