// Package dashboard holds the consumers of the live-update channel. Each
// widget folds the frames it cares about into its own view state and keeps
// the last known data while the channel is down.
package dashboard

import (
	"sync"

	"gitlab-insight/pkg/realtime"
)

// Widget is anything that can be mounted on a session.
type Widget interface {
	Mount(src realtime.Subscriber)
	Unmount()
}

// mount tracks the registrations a widget made on its source
type mount struct {
	mu   sync.Mutex
	src  realtime.Subscriber
	subs []*realtime.Subscription
}

// attach replaces any previous registrations with the ones made by register
func (m *mount) attach(src realtime.Subscriber, register func(realtime.Subscriber) []*realtime.Subscription) {
	m.detach()
	if src == nil {
		return
	}
	subs := register(src)

	m.mu.Lock()
	m.src = src
	m.subs = subs
	m.mu.Unlock()
}

func (m *mount) detach() {
	m.mu.Lock()
	src, subs := m.src, m.subs
	m.src, m.subs = nil, nil
	m.mu.Unlock()

	for _, sub := range subs {
		src.Off(sub)
	}
}

func (m *mount) mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src != nil
}

// Dashboard groups the widgets shown on the home page.
type Dashboard struct {
	Feed   *LiveFeed
	Board  *PipelineBoard
	Inbox  *Inbox
	Banner *ConnectionBanner
}

// New creates a dashboard with default widget sizes.
func New() *Dashboard {
	return &Dashboard{
		Feed:   NewLiveFeed(DefaultFeedSize),
		Board:  NewPipelineBoard(),
		Inbox:  NewInbox(DefaultInboxSize),
		Banner: NewConnectionBanner(),
	}
}

// Mount attaches every frame widget to src and the banner to the lifecycle source.
func (d *Dashboard) Mount(src realtime.Subscriber, lifecycle Observable) {
	d.Feed.Mount(src)
	d.Board.Mount(src)
	d.Inbox.Mount(src)
	if lifecycle != nil {
		d.Banner.Attach(lifecycle)
	}
}

// Unmount detaches every widget.
func (d *Dashboard) Unmount() {
	d.Feed.Unmount()
	d.Board.Unmount()
	d.Inbox.Unmount()
	d.Banner.Detach()
}
