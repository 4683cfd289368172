// Package router dispatches inbound broker messages by topic.
//
// Each registered topic (or wildcard filter) owns exactly one target: a
// callback, invoked on the delivering goroutine, or a queue that consumers
// drain at their own pace. Registration is mutually exclusive per topic.
//
// Route is called from the broker client's delivery goroutine while
// Register and Unregister are called from application goroutines; one
// read-write mutex guards both registries and no lock is held while a
// callback runs.
//
// A callback that blocks stalls delivery for every topic, and a callback
// that panics is not recovered here. Both are the callback owner's concern.
package router
