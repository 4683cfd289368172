package router

import "errors"

var (
	// ErrTopicInUse is returned when a topic already has a target of a
	// different kind, or already has a queue.
	ErrTopicInUse = errors.New("router: topic already registered")

	// ErrNilTarget is returned for a nil callback or queue.
	ErrNilTarget = errors.New("router: nil callback or queue")

	// ErrClosed is returned by registration after Close.
	ErrClosed = errors.New("router: closed")
)
