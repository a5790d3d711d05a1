package dashboard

import (
	"sync"

	"gitlab-insight/pkg/realtime"
)

// Notice levels
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const (
	MsgConnected    = "Real-time connection established"
	MsgReconnecting = "Real-time connection lost. Reconnecting..."
	MsgUnavailable  = "Real-time updates unavailable"
	MsgPaused       = "Real-time updates paused"
	MsgError        = "Error in real-time connection"
)

// Notice is what the banner currently shows. Persistent notices stay until
// the user acts (reconnect), transient ones are replaced by the next event.
type Notice struct {
	Level      string
	Message    string
	Persistent bool
	Attempt    int
}

// Observable is a source of connection lifecycle events, such as a realtime.Channel.
type Observable interface {
	Observe(fn realtime.Observer) (cancel func())
}

// ConnectionBanner turns lifecycle events into a user-facing notice.
type ConnectionBanner struct {
	// OnNotice, when set before Attach, is called whenever the notice changes.
	OnNotice func(Notice)

	mu     sync.RWMutex
	notice Notice
	state  realtime.State
	cancel func()
}

func NewConnectionBanner() *ConnectionBanner {
	return &ConnectionBanner{state: realtime.StateDisconnected}
}

// Attach starts following src; a previous source is detached first.
func (b *ConnectionBanner) Attach(src Observable) {
	b.Detach()
	cancel := src.Observe(b.Handle)

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

func (b *ConnectionBanner) Detach() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (b *ConnectionBanner) Notice() Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notice
}

// State returns the last connection state seen.
func (b *ConnectionBanner) State() realtime.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Handle folds one lifecycle event into the notice.
func (b *ConnectionBanner) Handle(ev realtime.Event) {
	var next *Notice
	switch ev.Kind {
	case realtime.EventOpened:
		next = &Notice{Level: LevelSuccess, Message: MsgConnected}
	case realtime.EventReconnecting:
		next = &Notice{Level: LevelWarning, Message: MsgReconnecting, Attempt: ev.Attempt}
	case realtime.EventError:
		next = &Notice{Level: LevelError, Message: MsgError}
	case realtime.EventGaveUp:
		next = &Notice{Level: LevelError, Message: MsgUnavailable, Persistent: true, Attempt: ev.Attempt}
	case realtime.EventStateChanged:
		if ev.State == realtime.StateDisconnected && ev.Prev != realtime.StateDisconnected {
			next = &Notice{Level: LevelInfo, Message: MsgPaused}
		}
	}

	b.mu.Lock()
	b.state = ev.State
	// errors while given up do not hide the persistent notice
	if next != nil && ev.Kind == realtime.EventError && b.notice.Persistent {
		next = nil
	}
	if next == nil || b.notice == *next {
		b.mu.Unlock()
		return
	}
	b.notice = *next
	b.mu.Unlock()

	if b.OnNotice != nil {
		b.OnNotice(*next)
	}
}
