package hydraclient

import (
	"context"
	"sync"
)

// ConnectionState is the lifecycle state of the client's connection.
type ConnectionState int

const (
	// StateDisconnected means no connection attempt is in flight.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateOpen means the connection is established and the client is usable.
	StateOpen
	// StateFailed means the last dial attempt failed; a retry is pending.
	StateFailed
	// StateClosed is terminal: Close was called and the client will not
	// reconnect.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateVar is a watchable state cell. Every Set wakes all waiters so they
// can re-check their predicate.
type stateVar struct {
	mu      sync.Mutex
	value   ConnectionState
	changed chan struct{}
}

func newStateVar(initial ConnectionState) *stateVar {
	return &stateVar{value: initial, changed: make(chan struct{})}
}

func (v *stateVar) Get() ConnectionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

func (v *stateVar) Set(s ConnectionState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.value == s {
		return
	}
	v.value = s
	close(v.changed)
	v.changed = make(chan struct{})
}

// Wait blocks until pred holds for the current state and returns that
// state, or returns early with the context error.
func (v *stateVar) Wait(ctx context.Context, pred func(ConnectionState) bool) (ConnectionState, error) {
	for {
		v.mu.Lock()
		current := v.value
		changed := v.changed
		v.mu.Unlock()

		if pred(current) {
			return current, nil
		}

		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-changed:
		}
	}
}
