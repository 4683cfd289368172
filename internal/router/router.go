package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-interface/pkg/asyncqueue"
)

// Callback receives messages for a topic.
type Callback func(mqtt.Message)

// MessageQueue is the queue type messages are pushed to.
type MessageQueue = asyncqueue.Queue[mqtt.Message]

// Router maps topics and topic filters to a callback or a queue.
type Router struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
	queues    map[string]*MessageQueue
	closed    bool

	metrics *metrics.Metrics
}

// New creates an empty router.
func New() *Router {
	return &Router{
		callbacks: make(map[string]Callback),
		queues:    make(map[string]*MessageQueue),
	}
}

// SetMetrics sets the metrics sink.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	r.metrics = m
	r.mu.Unlock()
}

// Register routes messages on topic to cb. topic may be a wildcard filter.
// An existing callback for topic is replaced; an existing queue is not.
func (r *Router) Register(topic string, cb Callback) error {
	if cb == nil {
		return ErrNilTarget
	}
	if err := mqtt.ValidateFilter(topic); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.queues[topic]; ok {
		return fmt.Errorf("%w: %s has a queue", ErrTopicInUse, topic)
	}
	r.callbacks[topic] = cb
	r.metrics.SetSubscriptions(r.lenLocked())
	return nil
}

// RegisterQueue routes messages on topic to q. topic may be a wildcard
// filter. It fails if topic already has any target.
func (r *Router) RegisterQueue(topic string, q *MessageQueue) error {
	if q == nil {
		return ErrNilTarget
	}
	if err := mqtt.ValidateFilter(topic); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.callbacks[topic]; ok {
		return fmt.Errorf("%w: %s has a callback", ErrTopicInUse, topic)
	}
	if _, ok := r.queues[topic]; ok {
		return fmt.Errorf("%w: %s has a queue", ErrTopicInUse, topic)
	}
	r.queues[topic] = q
	r.metrics.SetSubscriptions(r.lenLocked())
	return nil
}

// Unregister removes the target for topic and reports whether there was
// one. A removed queue is closed: later pushes are dropped, and items
// already queued can still be consumed.
func (r *Router) Unregister(topic string) bool {
	r.mu.Lock()
	_, hadCallback := r.callbacks[topic]
	q, hadQueue := r.queues[topic]
	delete(r.callbacks, topic)
	delete(r.queues, topic)
	r.metrics.SetSubscriptions(r.lenLocked())
	r.mu.Unlock()

	if hadQueue {
		q.Close()
	}
	return hadCallback || hadQueue
}

// Queue returns the queue registered for topic.
func (r *Router) Queue(topic string) (*MessageQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[topic]
	return q, ok
}

// Has reports whether topic has a target.
func (r *Router) Has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, cb := r.callbacks[topic]
	_, q := r.queues[topic]
	return cb || q
}

// Topics returns the registered topics in sorted order.
func (r *Router) Topics() []string {
	r.mu.RLock()
	topics := make([]string, 0, r.lenLocked())
	for t := range r.callbacks {
		topics = append(topics, t)
	}
	for t := range r.queues {
		topics = append(topics, t)
	}
	r.mu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Len returns the number of registered topics.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Router) lenLocked() int {
	return len(r.callbacks) + len(r.queues)
}

// Route delivers msg to the target registered for its topic and to every
// wildcard filter matching it. It returns the number of targets reached.
//
// Callbacks run on the calling goroutine, in no particular order between
// filters, with no lock held.
func (r *Router) Route(msg mqtt.Message) int {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0
	}
	var (
		callbacks []Callback
		queues    []*MessageQueue
	)
	for filter, cb := range r.callbacks {
		if matches(filter, msg.Topic) {
			callbacks = append(callbacks, cb)
		}
	}
	for filter, q := range r.queues {
		if matches(filter, msg.Topic) {
			queues = append(queues, q)
		}
	}
	m := r.metrics
	r.mu.RUnlock()

	delivered := 0
	for _, q := range queues {
		if q.Push(msg) {
			delivered++
			m.MessageRouted(metrics.TargetQueue)
		}
	}
	for _, cb := range callbacks {
		cb(msg)
		delivered++
		m.MessageRouted(metrics.TargetCallback)
	}

	if delivered == 0 {
		m.MessageDropped()
	}
	return delivered
}

func matches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	return mqtt.IsWildcard(filter) && mqtt.Match(filter, topic)
}

// Close unregisters everything and closes all queues. Route is a no-op
// afterwards and registration fails with ErrClosed.
func (r *Router) Close() {
	r.mu.Lock()
	queues := r.queues
	r.callbacks = make(map[string]Callback)
	r.queues = make(map[string]*MessageQueue)
	r.closed = true
	r.metrics.SetSubscriptions(0)
	r.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
