// Package serializer runs commands against a shared, non-thread-safe client
// from exactly one goroutine.
//
// Callers Submit a Command and receive a promise.Promise for its result. A
// single worker goroutine drains the queue in submission order, runs each
// command, and completes the paired promise with the returned value or with
// a *CommandError. A failing or panicking command never stops the worker.
//
// # Lifecycle
//
//	idle ──Start──▶ running ──Stop (stop entry)──▶ stopped
//
// Commands submitted while idle are queued and run once the worker starts.
// After Stop is called every Submit returns a promise already failed with
// ErrStopped. The worker exits when it reaches the stop entry, which is
// always the last entry in the queue.
//
// # Ordering
//
// Commands run strictly FIFO with no batching: a command submitted after
// another command's Submit returned always runs after it, whatever
// goroutines the two callers are on.
package serializer
