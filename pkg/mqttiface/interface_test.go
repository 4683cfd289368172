package mqttiface

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-interface/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-interface/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt-interface/internal/router"
	"github.com/nerrad567/mqtt-interface/internal/serializer"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Interface.Workers = 4
	cfg.Interface.CommandTimeout = 2
	cfg.Interface.ConnectTimeout = 2
	cfg.Interface.ShutdownTimeout = 2
	cfg.Interface.MessageTimeout = 1
	return cfg
}

func startInterface(t *testing.T, client *fakeClient) *Interface {
	t.Helper()
	iface := New(testConfig(), client)
	iface.SetMetrics(metrics.New())
	if err := iface.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = iface.Stop()
	})
	return iface
}

// must fails the test immediately on an unexpected error.
func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// wantErr reports an error unless err matches target.
func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("error = %v, want %v", err, target)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStart_ConnectFailure(t *testing.T) {
	client := newFakeClient()
	client.connectErr = errBrokerDown

	iface := New(testConfig(), client)
	err := iface.Start(context.Background())

	wantErr(t, err, ErrConnectionFailed)
	wantErr(t, err, errBrokerDown)
	if err := iface.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStart_HandshakeTimeout(t *testing.T) {
	client := newFakeClient()
	client.skipHandshake = true

	iface := New(testConfig(), client)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	wantErr(t, iface.Start(ctx), ErrConnectionFailed)
	if client.IsConnected() {
		t.Error("client still connected after a failed handshake")
	}
	if err := iface.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// TestStart_RetryAfterHandshakeTimeout verifies that a handshake arriving
// after a failed Start does not stop a later Start from completing.
func TestStart_RetryAfterHandshakeTimeout(t *testing.T) {
	client := newFakeClient()
	client.skipHandshake = true

	iface := New(testConfig(), client)
	t.Cleanup(func() { _ = iface.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	wantErr(t, iface.Start(ctx), ErrConnectionFailed)

	// The first attempt's handshake lands late.
	client.mu.Lock()
	late := client.onConnect
	client.skipHandshake = false
	client.mu.Unlock()
	late()

	if err := iface.Start(context.Background()); err != nil {
		t.Fatalf("retried Start() error = %v", err)
	}
	if st := iface.Stats(); st.State != "running" || st.Reconnects != 0 {
		t.Errorf("Stats() state/reconnects = %s/%d, want running/0", st.State, st.Reconnects)
	}
	must(t, iface.Send("after/retry", nil))
}

func TestStart_Twice(t *testing.T) {
	iface := startInterface(t, newFakeClient())
	wantErr(t, iface.Start(context.Background()), ErrAlreadyStarted)
}

func TestStop_Idempotent(t *testing.T) {
	iface := New(testConfig(), newFakeClient())
	must(t, iface.Start(context.Background()))

	must(t, iface.Stop())
	must(t, iface.Stop())
	wantErr(t, iface.Start(context.Background()), ErrStopped)
}

func TestStop_OperationsFailWithStopped(t *testing.T) {
	iface := New(testConfig(), newFakeClient())
	must(t, iface.Start(context.Background()))
	_, err := iface.Subscribe("t")
	must(t, err)
	must(t, iface.Stop())

	ctx := context.Background()
	noop := func(Message) {}

	tests := []struct {
		name string
		call func() error
	}{
		{"Send", func() error { return iface.Send("t", []byte("x")) }},
		{"SendContext", func() error { return iface.SendContext(ctx, "t", []byte("x")) }},
		{"Subscribe", func() error { _, err := iface.Subscribe("u"); return err }},
		{"SubscribeContext", func() error { _, err := iface.SubscribeContext(ctx, "u"); return err }},
		{"SubscribeWithCallback", func() error { return iface.SubscribeWithCallback("u", noop) }},
		{"Unsubscribe", func() error { return iface.Unsubscribe("t") }},
		{"WaitForMessage", func() error { _, err := iface.WaitForMessage("t", time.Second); return err }},
		{"WaitForMessageContext", func() error { _, err := iface.WaitForMessageContext(ctx, "t", time.Second); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantErr(t, tt.call(), ErrStopped)
		})
	}
}

func TestStop_WakesBlockedWaiter(t *testing.T) {
	iface := New(testConfig(), newFakeClient())
	must(t, iface.Start(context.Background()))
	_, err := iface.Subscribe("t")
	must(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := iface.WaitForMessage("t", 10*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	must(t, iface.Stop())

	select {
	case err := <-errCh:
		wantErr(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by Stop")
	}
}

func TestStop_RunsQueuedCommandsBeforeDisconnect(t *testing.T) {
	client := newFakeClient()
	iface := New(testConfig(), client)

	// Submitted before Start: queued until the worker runs.
	errCh := make(chan error, 1)
	go func() { errCh <- iface.Send("early", []byte("x")) }()
	time.Sleep(20 * time.Millisecond)

	must(t, iface.Start(context.Background()))
	must(t, <-errCh)
	must(t, iface.Stop())

	if !slices.Contains(client.callLog(), "publish early") {
		t.Errorf("call log %v missing publish early", client.callLog())
	}
}

// =============================================================================
// End-to-end
// =============================================================================

func TestSendAndWaitForMessage(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	_, err := iface.Subscribe("t")
	must(t, err)

	sent := make(chan error, 1)
	go func() { sent <- iface.Send("t", []byte("hello")) }()

	start := time.Now()
	msg, err := iface.WaitForMessage("t", 5*time.Second)
	must(t, err)
	must(t, <-sent)

	if msg.Topic != "t" || msg.String() != "hello" {
		t.Errorf("WaitForMessage() = %s %q, want t hello", msg.Topic, msg.String())
	}
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("WaitForMessage() took %v", elapsed)
	}
}

func TestSendContextAndWaitForMessageContext(t *testing.T) {
	iface := startInterface(t, newFakeClient())
	ctx := context.Background()

	q, err := iface.SubscribeContext(ctx, "t")
	must(t, err)
	if q == nil {
		t.Fatal("SubscribeContext() returned a nil queue")
	}

	must(t, iface.SendContext(ctx, "t", []byte("one")))
	must(t, iface.SendContext(ctx, "t", []byte("two")))

	for _, want := range []string{"one", "two"} {
		msg, err := iface.WaitForMessageContext(ctx, "t", 5*time.Second)
		must(t, err)
		if msg.String() != want {
			t.Errorf("WaitForMessageContext() = %q, want %q", msg.String(), want)
		}
	}

	must(t, iface.UnsubscribeContext(ctx, "t"))
	_, err = iface.WaitForMessageContext(ctx, "t", time.Second)
	wantErr(t, err, ErrNotSubscribed)
}

func TestSubscribe_ReturnsQueue(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	q, err := iface.Subscribe("t")
	must(t, err)
	must(t, iface.Send("t", []byte("direct")))

	msg, err := q.Get(5 * time.Second)
	must(t, err)
	if msg.String() != "direct" {
		t.Errorf("Get() = %q, want direct", msg.String())
	}
}

func TestSubscribe_Wildcard(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	_, err := iface.Subscribe("sensors/+/temp")
	must(t, err)
	must(t, iface.Send("sensors/kitchen/temp", []byte("21")))

	msg, err := iface.WaitForMessage("sensors/+/temp", 5*time.Second)
	must(t, err)
	if msg.Topic != "sensors/kitchen/temp" {
		t.Errorf("Topic = %q, want sensors/kitchen/temp", msg.Topic)
	}
}

func TestSubscribe_AlreadySubscribed(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	_, err := iface.Subscribe("t")
	must(t, err)
	_, err = iface.Subscribe("t")
	wantErr(t, err, router.ErrTopicInUse)
	wantErr(t, iface.SubscribeWithCallback("t", func(Message) {}), router.ErrTopicInUse)
}

func TestSubscribeWithCallback(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	got := make(chan Message, 1)
	must(t, iface.SubscribeWithCallback("cb", func(m Message) {
		got <- m
	}))
	must(t, iface.Send("cb", []byte("ping")))

	select {
	case m := <-got:
		if m.String() != "ping" {
			t.Errorf("callback received %q, want ping", m.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}

	// Callback topics have no queue.
	_, err := iface.WaitForMessage("cb", 10*time.Millisecond)
	wantErr(t, err, ErrNotSubscribed)
}

// =============================================================================
// Failures
// =============================================================================

func TestSend_CommandFailureDoesNotStopWorker(t *testing.T) {
	client := newFakeClient()
	client.failTopics["no/broker"] = errBrokerDown
	iface := startInterface(t, client)

	err := iface.Send("no/broker", []byte("x"))
	wantErr(t, err, serializer.ErrCommandFailed)
	wantErr(t, err, errBrokerDown)
	if errors.Is(err, ErrOperationRejected) {
		t.Errorf("error = %v, a command failure is not a rejection", err)
	}

	must(t, iface.Send("fine", []byte("x")))
	if n := iface.Stats().FailedCommands; n != 1 {
		t.Errorf("FailedCommands = %d, want 1", n)
	}
}

func TestSend_Rejected(t *testing.T) {
	client := newFakeClient()
	client.rejectTopics["denied"] = true
	iface := startInterface(t, client)

	err := iface.Send("denied", []byte("x"))
	wantErr(t, err, ErrOperationRejected)
	if errors.Is(err, serializer.ErrCommandFailed) {
		t.Errorf("error = %v, a rejection is not a command failure", err)
	}

	wantErr(t, iface.SendContext(context.Background(), "denied", []byte("x")), ErrOperationRejected)
}

func TestSubscribe_RejectedRollsBack(t *testing.T) {
	client := newFakeClient()
	client.rejectTopics["denied"] = true
	iface := startInterface(t, client)

	_, err := iface.Subscribe("denied")
	wantErr(t, err, ErrOperationRejected)
	if subs := iface.Stats().Subscriptions; slices.Contains(subs, "denied") {
		t.Errorf("Subscriptions = %v after rejected Subscribe", subs)
	}

	wantErr(t, iface.SubscribeWithCallback("denied", func(Message) {}), ErrOperationRejected)
	if subs := iface.Stats().Subscriptions; len(subs) != 0 {
		t.Errorf("Subscriptions = %v, want none", subs)
	}
}

func TestSubscribe_FailureRollsBack(t *testing.T) {
	client := newFakeClient()
	client.failTopics["broken"] = errBrokerDown
	iface := startInterface(t, client)

	_, err := iface.SubscribeContext(context.Background(), "broken")
	wantErr(t, err, serializer.ErrCommandFailed)

	_, err = iface.WaitForMessage("broken", 10*time.Millisecond)
	wantErr(t, err, ErrNotSubscribed)
}

func TestSubscribeContext_Timeout(t *testing.T) {
	client := newFakeClient()
	client.block = make(chan struct{})
	iface := startInterface(t, client)
	defer close(client.block)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := iface.SubscribeContext(ctx, "slow")
	wantErr(t, err, ErrTimeout)
	wantErr(t, err, context.DeadlineExceeded)
}

// TestSubscribeContext_TimeoutWithdrawsSubscription verifies that a
// subscribe the caller gave up on while it was in flight does not leave
// the broker subscribed to a topic with no route.
func TestSubscribeContext_TimeoutWithdrawsSubscription(t *testing.T) {
	client := newFakeClient()
	client.block = make(chan struct{})
	iface := startInterface(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := iface.SubscribeContext(ctx, "t")
	wantErr(t, err, ErrTimeout)

	client.mu.Lock()
	close(client.block)
	client.block = nil
	client.mu.Unlock()

	// Queued behind the abandoned subscribe, so it has finished once this returns.
	must(t, iface.Send("sync", nil))

	client.mu.Lock()
	subscribed := client.subscribed["t"]
	client.mu.Unlock()
	if subscribed {
		t.Error("broker still subscribed to t after the caller gave up")
	}
	calls := client.callLog()
	if i := slices.Index(calls, "subscribe t"); i < 0 || i+1 >= len(calls) || calls[i+1] != "unsubscribe t" {
		t.Errorf("call log = %v, want subscribe t followed by unsubscribe t", calls)
	}
	if subs := iface.Stats().Subscriptions; len(subs) != 0 {
		t.Errorf("Subscriptions = %v, want none", subs)
	}

	// The topic is free to subscribe again and receives messages.
	_, err = iface.Subscribe("t")
	must(t, err)
	must(t, iface.Send("t", []byte("again")))
	msg, err := iface.WaitForMessage("t", 5*time.Second)
	must(t, err)
	if msg.String() != "again" {
		t.Errorf("WaitForMessage() = %q, want again", msg.String())
	}
}

// TestSubscribe_BeforeStartTimeoutIsSkipped verifies that a subscribe
// queued before Start and abandoned by its caller never reaches the client.
func TestSubscribe_BeforeStartTimeoutIsSkipped(t *testing.T) {
	client := newFakeClient()
	iface := New(testConfig(), client)
	t.Cleanup(func() { _ = iface.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := iface.SubscribeContext(ctx, "early")
	wantErr(t, err, ErrTimeout)

	must(t, iface.Start(context.Background()))
	must(t, iface.Send("sync", nil))

	if calls := client.callLog(); slices.Contains(calls, "subscribe early") {
		t.Errorf("call log = %v, abandoned subscribe reached the client", calls)
	}
	if subs := iface.Stats().Subscriptions; len(subs) != 0 {
		t.Errorf("Subscriptions = %v, want none", subs)
	}
}

func TestWaitForMessage_Timeout(t *testing.T) {
	iface := startInterface(t, newFakeClient())
	_, err := iface.Subscribe("quiet")
	must(t, err)

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err = iface.WaitForMessage("quiet", timeout)

	wantErr(t, err, ErrTimeout)
	if elapsed := time.Since(start); elapsed < timeout {
		t.Errorf("WaitForMessage() returned after %v, before the %v timeout", elapsed, timeout)
	}
}

func TestWaitForMessage_DefaultTimeout(t *testing.T) {
	iface := startInterface(t, newFakeClient())
	_, err := iface.Subscribe("quiet")
	must(t, err)

	start := time.Now()
	_, err = iface.WaitForMessage("quiet", 0)

	wantErr(t, err, ErrTimeout)
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("WaitForMessage(0) returned after %v, want the 1s message timeout", elapsed)
	}
}

func TestWaitForMessage_NotSubscribed(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	_, err := iface.WaitForMessage("nothing", time.Second)
	wantErr(t, err, ErrNotSubscribed)
	_, err = iface.WaitForMessageContext(context.Background(), "nothing", time.Second)
	wantErr(t, err, ErrNotSubscribed)
}

func TestWaitForMessageContext_CancelLosesNothing(t *testing.T) {
	client := newFakeClient()
	iface := startInterface(t, client)
	_, err := iface.Subscribe("t")
	must(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = iface.WaitForMessageContext(ctx, "t", 5*time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitForMessageContext() error = %v, want ErrTimeout", err)
	}

	client.inject("t", "late")

	msg, err := iface.WaitForMessage("t", 5*time.Second)
	must(t, err)
	if msg.String() != "late" {
		t.Errorf("WaitForMessage() = %q, want late", msg.String())
	}
}

func TestUnsubscribe_StopsRouting(t *testing.T) {
	client := newFakeClient()
	iface := startInterface(t, client)

	q, err := iface.Subscribe("t")
	must(t, err)
	must(t, iface.Unsubscribe("t"))

	client.inject("t", "after")
	time.Sleep(20 * time.Millisecond)

	if q.Len() != 0 || !q.Closed() {
		t.Errorf("queue Len() = %d, Closed() = %v; want 0, true", q.Len(), q.Closed())
	}
	_, err = iface.WaitForMessage("t", 10*time.Millisecond)
	wantErr(t, err, ErrNotSubscribed)
	wantErr(t, iface.Unsubscribe("t"), ErrNotSubscribed)
}

func TestUnsubscribe_WakesWaiter(t *testing.T) {
	iface := startInterface(t, newFakeClient())
	_, err := iface.Subscribe("t")
	must(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := iface.WaitForMessage("t", 10*time.Second)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	must(t, iface.Unsubscribe("t"))

	select {
	case err := <-errCh:
		wantErr(t, err, ErrNotSubscribed)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by Unsubscribe")
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestClientCallsAreSerialized(t *testing.T) {
	client := newFakeClient()
	iface := startInterface(t, client)

	errs := make(chan error, 200)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ctx := context.Background()
			for n := 0; n < 25; n++ {
				topic := fmt.Sprintf("g%d/%d", g, n)
				if n%2 == 0 {
					errs <- iface.Send(topic, []byte("x"))
				} else {
					errs <- iface.SendContext(ctx, topic, []byte("x"))
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("send error = %v", err)
		}
	}
	if client.overlapped.Load() {
		t.Error("client called from two goroutines at once")
	}
	if n := len(client.callLog()); n != 200 {
		t.Errorf("client saw %d calls, want 200", n)
	}
}

func TestClientCallsKeepPerCallerOrder(t *testing.T) {
	client := newFakeClient()
	iface := startInterface(t, client)

	errs := make(chan error, 80)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				errs <- iface.Send(fmt.Sprintf("g%d/%02d", g, n), nil)
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		must(t, err)
	}

	last := map[int]int{}
	for _, call := range client.callLog() {
		var g, n int
		if _, err := fmt.Sscanf(call, "publish g%d/%d", &g, &n); err != nil {
			t.Fatalf("unexpected call %q: %v", call, err)
		}
		if prev, ok := last[g]; ok && n <= prev {
			t.Errorf("caller %d: call %d ran after %d", g, n, prev)
		}
		last[g] = n
	}
}

func TestReconnect_RestoresSubscriptions(t *testing.T) {
	client := newFakeClient()
	iface := startInterface(t, client)

	_, err := iface.Subscribe("a")
	must(t, err)
	must(t, iface.SubscribeWithCallback("b", func(Message) {}))

	client.reconnect()

	// A command queued behind the resubscribes proves they have run.
	must(t, iface.Send("sync", nil))

	calls := client.callLog()
	if got, want := calls[len(calls)-3:len(calls)-1], []string{"subscribe a", "subscribe b"}; !slices.Equal(got, want) {
		t.Errorf("calls before sync = %v, want %v", got, want)
	}
	if n := iface.Stats().Reconnects; n != 1 {
		t.Errorf("Reconnects = %d, want 1", n)
	}

	must(t, iface.Send("a", []byte("again")))
	msg, err := iface.WaitForMessage("a", 5*time.Second)
	must(t, err)
	if msg.String() != "again" {
		t.Errorf("WaitForMessage() = %q, want again", msg.String())
	}
}

// =============================================================================
// Introspection
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := newFakeClient()
	iface := New(testConfig(), client)
	ctx := context.Background()

	wantErr(t, iface.HealthCheck(ctx), ErrNotStarted)

	must(t, iface.Start(ctx))
	if err := iface.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.mu.Lock()
	client.connected = false
	client.mu.Unlock()
	wantErr(t, iface.HealthCheck(ctx), ErrNotConnected)

	must(t, iface.Stop())
	wantErr(t, iface.HealthCheck(ctx), ErrStopped)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	wantErr(t, iface.HealthCheck(cancelled), context.Canceled)
}

func TestStats(t *testing.T) {
	iface := startInterface(t, newFakeClient())

	_, err := iface.Subscribe("b")
	must(t, err)
	_, err = iface.Subscribe("a")
	must(t, err)

	st := iface.Stats()
	if st.State != "running" || !st.Connected {
		t.Errorf("State/Connected = %s/%v, want running/true", st.State, st.Connected)
	}
	if want := []string{"a", "b"}; !slices.Equal(st.Subscriptions, want) {
		t.Errorf("Subscriptions = %v, want %v", st.Subscriptions, want)
	}
	if st.ExecutedCommands != 2 || st.FailedCommands != 0 || st.Reconnects != 0 {
		t.Errorf("Executed/Failed/Reconnects = %d/%d/%d, want 2/0/0",
			st.ExecutedCommands, st.FailedCommands, st.Reconnects)
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{ErrConnectionFailed, ErrOperationRejected, ErrNotSubscribed, ErrTimeout, ErrAlreadyStarted, ErrNotStarted, ErrNotConnected}
	for a := range all {
		for b := range all {
			if a != b && errors.Is(all[a], all[b]) {
				t.Errorf("%v matches %v", all[a], all[b])
			}
		}
	}
}
