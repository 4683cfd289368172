// Package asyncqueue provides an unbounded, thread-safe FIFO queue that can be
// consumed either by blocking or by awaiting a promise.
//
// Producers call Push, which never blocks. Consumers choose one of:
//
//   - Get(timeout): park the goroutine until an item arrives or timeout
//     elapses.
//   - GetContext(ctx, timeout): as Get, and give up when ctx is done.
//   - GetAsync(ctx, timeout): hand the wait to an Executor and receive a
//     promise.Promise that resolves with the item or the error.
//   - AwaitGet(ctx, timeout): GetAsync plus Await, with no message loss when
//     the caller is cancelled mid-wait.
//
// Close drops all future pushes and wakes every waiter once the remaining
// items are drained.
package asyncqueue
