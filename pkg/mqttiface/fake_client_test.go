package mqttiface

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/mqtt"
)

var errBrokerDown = errors.New("broker down")

// fakeClient is an in-memory broker loopback: published messages are
// delivered to matching subscriptions on a single delivery goroutine.
type fakeClient struct {
	mu          sync.Mutex
	onConnect   func()
	onMessage   func(Message)
	onLost      func(error)
	connected   bool
	subscribed  map[string]bool
	calls       []string
	deliveries  chan Message
	stopDeliver chan struct{}
	delivered   sync.WaitGroup

	connectErr    error
	skipHandshake bool
	failTopics    map[string]error
	rejectTopics  map[string]bool
	block         chan struct{} // when set, Subscribe waits on it

	active     atomic.Int32
	overlapped atomic.Bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subscribed:   make(map[string]bool),
		failTopics:   make(map[string]error),
		rejectTopics: make(map[string]bool),
	}
}

func (f *fakeClient) SetOnConnect(cb func())             { f.mu.Lock(); f.onConnect = cb; f.mu.Unlock() }
func (f *fakeClient) SetOnMessage(cb func(Message))      { f.mu.Lock(); f.onMessage = cb; f.mu.Unlock() }
func (f *fakeClient) SetOnConnectionLost(cb func(error)) { f.mu.Lock(); f.onLost = cb; f.mu.Unlock() }

func (f *fakeClient) Connect(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.deliveries = make(chan Message, 64)
	f.stopDeliver = make(chan struct{})

	f.delivered.Add(1)
	go f.deliverLoop(f.deliveries, f.stopDeliver)

	if !f.skipHandshake {
		go f.onConnect()
	}
	return nil
}

func (f *fakeClient) deliverLoop(in <-chan Message, stop <-chan struct{}) {
	defer f.delivered.Done()
	for {
		select {
		case <-stop:
			return
		case m := <-in:
			f.mu.Lock()
			cb := f.onMessage
			f.mu.Unlock()
			if cb != nil {
				cb(m)
			}
		}
	}
}

// reconnect simulates a dropped and re-established connection.
func (f *fakeClient) reconnect() {
	f.mu.Lock()
	lost, connect := f.onLost, f.onConnect
	f.subscribed = make(map[string]bool)
	f.mu.Unlock()

	if lost != nil {
		lost(errors.New("connection reset"))
	}
	connect()
}

// inject delivers a message as if the broker had sent it.
func (f *fakeClient) inject(topic, payload string) {
	f.mu.Lock()
	ch := f.deliveries
	f.mu.Unlock()
	ch <- Message{Topic: topic, Payload: []byte(payload)}
}

func (f *fakeClient) enter(call string) func() {
	if f.active.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return func() { f.active.Add(-1) }
}

func (f *fakeClient) Subscribe(topic string, _ byte) (bool, error) {
	defer f.enter("subscribe " + topic)()

	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false, mqtt.ErrNotConnected
	}
	if err := f.failTopics[topic]; err != nil {
		return false, err
	}
	if f.rejectTopics[topic] {
		return false, nil
	}
	f.subscribed[topic] = true
	return true, nil
}

func (f *fakeClient) Unsubscribe(topic string) (bool, error) {
	defer f.enter("unsubscribe " + topic)()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false, mqtt.ErrNotConnected
	}
	delete(f.subscribed, topic)
	return true, nil
}

func (f *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) (bool, error) {
	defer f.enter("publish " + topic)()

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return false, mqtt.ErrNotConnected
	}
	if err := f.failTopics[topic]; err != nil {
		f.mu.Unlock()
		return false, err
	}
	if f.rejectTopics[topic] {
		f.mu.Unlock()
		return false, nil
	}
	matches := 0
	for filter := range f.subscribed {
		if mqtt.Match(filter, topic) {
			matches++
		}
	}
	ch := f.deliveries
	f.mu.Unlock()

	for n := 0; n < matches; n++ {
		ch <- Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	}
	return true, nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	stop := f.stopDeliver
	f.connected = false
	f.stopDeliver = nil
	f.mu.Unlock()

	if stop != nil {
		close(stop)
		f.delivered.Wait()
	}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
