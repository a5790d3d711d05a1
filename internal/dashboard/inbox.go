package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

const DefaultInboxSize = 50

// Inbox collects NOTIFICATION frames, newest first.
type Inbox struct {
	// OnNotification, when set before Mount, is called for every new notification.
	OnNotification func(shared.Notification)

	mount
	size  int
	mu    sync.RWMutex
	items []shared.Notification
	now   func() time.Time
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size, now: time.Now}
}

func (in *Inbox) Mount(src realtime.Subscriber) {
	in.attach(src, func(s realtime.Subscriber) []*realtime.Subscription {
		return []*realtime.Subscription{
			realtime.OnJSON(s, realtime.TypeNotification, in.add),
		}
	})
}

func (in *Inbox) Unmount() { in.detach() }

// Load seeds the inbox with notifications fetched over HTTP, e.g. on startup.
func (in *Inbox) Load(items []shared.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range items {
		if in.indexOf(n.ID) >= 0 {
			continue
		}
		in.items = append(in.items, n)
	}
	if len(in.items) > in.size {
		in.items = in.items[:in.size]
	}
}

func (in *Inbox) Snapshot() []shared.Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]shared.Notification, len(in.items))
	copy(out, in.items)
	return out
}

func (in *Inbox) UnreadCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	n := 0
	for _, item := range in.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read and reports whether it was found.
func (in *Inbox) MarkRead(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	idx := in.indexOf(id)
	if idx < 0 {
		return false
	}
	in.items[idx].Read = true
	return true
}

func (in *Inbox) MarkAllRead() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		in.items[i].Read = true
	}
}

func (in *Inbox) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = nil
}

func (in *Inbox) add(n shared.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = in.now()
	}
	if n.Priority == "" {
		n.Priority = shared.PriorityMedium
	}

	in.mu.Lock()
	if in.indexOf(n.ID) >= 0 {
		in.mu.Unlock()
		return
	}
	in.items = append([]shared.Notification{n}, in.items...)
	if len(in.items) > in.size {
		in.items = in.items[:in.size]
	}
	in.mu.Unlock()

	if in.OnNotification != nil {
		in.OnNotification(n)
	}
}

// indexOf must be called with in.mu held
func (in *Inbox) indexOf(id string) int {
	for i, item := range in.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
