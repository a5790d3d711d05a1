package realtime

import "time"

// State is the connection manager's lifecycle state.
type State int

const (
	StateDisconnected State = iota // idle until Connect; also after Disconnect
	StateConnecting                // first dial in progress
	StateConnected                 // socket open, frames flowing
	StateReconnecting              // dropped unexpectedly, retrying with backoff
	StateFailed                    // retries exhausted; waits for Connect or Reconnect
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// active reports whether a run goroutine owns the connection
func (s State) active() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}

// EventKind tags a lifecycle event.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventOpened
	EventClosed
	EventError
	EventReconnecting
	EventGaveUp
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	case EventReconnecting:
		return "reconnecting"
	case EventGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Event reports a connection lifecycle change to observers.
type Event struct {
	Kind    EventKind
	State   State         // state after the event
	Prev    State         // previous state, for EventStateChanged
	Attempt int           // reconnection attempt number, for EventReconnecting and EventGaveUp
	Delay   time.Duration // wait before the attempt, for EventReconnecting
	Code    int           // websocket close code, for EventClosed
	Err     error
}

// Observer is called synchronously for every lifecycle event.
type Observer func(Event)
