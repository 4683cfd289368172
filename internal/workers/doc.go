// Package workers provides the bounded goroutine pool used for delegated
// waits.
//
// The pool caps how many waits run at once with a weighted semaphore, the
// same way the paho client bounds in-flight resumed publishes. Submitting
// work blocks until a slot frees up or the caller's context is done.
package workers
