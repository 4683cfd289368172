package mqttiface

import (
	"context"
	"fmt"
)

// Stats is a point-in-time snapshot of the interface.
type Stats struct {
	State            string   `json:"state"`
	Connected        bool     `json:"connected"`
	Subscriptions    []string `json:"subscriptions"`
	PendingCommands  int      `json:"pending_commands"`
	ExecutedCommands uint64   `json:"executed_commands"`
	FailedCommands   uint64   `json:"failed_commands"`
	RunningWaits     int      `json:"running_waits"`
	Reconnects       int64    `json:"reconnects"`
}

// Stats returns a snapshot of the interface state.
func (i *Interface) Stats() Stats {
	i.mu.Lock()
	st := i.state
	i.mu.Unlock()

	reconnects := i.handshakes.Load() - 1
	if reconnects < 0 {
		reconnects = 0
	}

	return Stats{
		State:            st.String(),
		Connected:        st == stateRunning && i.client.IsConnected(),
		Subscriptions:    i.routes.Topics(),
		PendingCommands:  i.commands.Pending(),
		ExecutedCommands: i.commands.Executed(),
		FailedCommands:   i.commands.Failed(),
		RunningWaits:     i.pool.Running(),
		Reconnects:       reconnects,
	}
}

// HealthCheck reports whether the interface is started and connected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (i *Interface) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqttiface health check: %w", ctx.Err())
	default:
	}

	i.mu.Lock()
	st := i.state
	i.mu.Unlock()

	switch st {
	case stateIdle:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}

	if !i.client.IsConnected() {
		return ErrNotConnected
	}
	if err := i.commands.Err(); err != nil {
		return fmt.Errorf("command worker: %w", err)
	}
	return nil
}
