package realtime

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
)

var ErrSessionReleased = errors.New("realtime: session already released")

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	Options
	// ReleaseWhenIdle disconnects once the last session is released.
	ReleaseWhenIdle bool
}

// Channel is the live-update path of one process: one Manager, one Router.
// The application root constructs and owns it; consumers only get Sessions.
type Channel struct {
	router          *Router
	manager         *Manager
	releaseWhenIdle bool
	logger          *slog.Logger

	mu       sync.Mutex // serializes Acquire and release with their connect and disconnect
	sessions int
}

// NewChannel builds a disconnected channel.
func NewChannel(opts ChannelOptions) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := NewRouter(logger)
	return &Channel{
		router:          router,
		manager:         NewManager(router, opts.Options),
		releaseWhenIdle: opts.ReleaseWhenIdle,
		logger:          logger,
	}
}

// Acquire connects (idempotently) and returns a Session for one consumer.
func (c *Channel) Acquire(endpoint, token string) (*Session, error) {
	c.mu.Lock()
	err := c.manager.connect(endpoint, token)
	if err == nil {
		c.sessions++
	}
	c.mu.Unlock()

	// observers run without c.mu so they may acquire or release sessions
	c.manager.flush()
	if err != nil {
		return nil, err
	}
	return &Session{ch: c}, nil
}

// Sessions returns the number of sessions not yet released.
func (c *Channel) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

// State returns the connection state.
func (c *Channel) State() State { return c.manager.State() }

// Observe registers a lifecycle observer.
func (c *Channel) Observe(fn Observer) (cancel func()) { return c.manager.Observe(fn) }

// Reconnect retries immediately with a fresh retry budget.
func (c *Channel) Reconnect() error { return c.manager.Reconnect() }

// Disconnect tears the connection down, e.g. on logout.
func (c *Channel) Disconnect() { c.manager.Disconnect() }

// SetPolicy changes the reconnection policy used from the next connect on.
func (c *Channel) SetPolicy(p Policy) { c.manager.SetPolicy(p) }

// Close disconnects and waits for the connection goroutine to exit.
func (c *Channel) Close() { c.manager.Close() }

func (c *Channel) release() {
	c.mu.Lock()
	c.sessions--
	idle := c.sessions == 0 && c.releaseWhenIdle
	if idle {
		c.logger.Info("Last real-time session released, disconnecting")
		c.manager.disconnect()
	}
	c.mu.Unlock()

	c.manager.flush()
}

// Session is one consumer's view of the channel. It can register handlers
// and send frames, never touch the socket itself.
type Session struct {
	ch *Channel

	mu       sync.Mutex
	subs     []*Subscription
	released bool
}

// On registers h for msgType; the registration ends with Off or Release.
func (s *Session) On(msgType string, h Handler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		s.ch.logger.Warn("Ignoring handler registration on released session", "type", msgType)
		return nil
	}
	sub := s.ch.router.On(msgType, h)
	if sub != nil {
		s.subs = append(s.subs, sub)
	}
	return sub
}

// Off removes one of this session's registrations; anything else is ignored.
func (s *Session) Off(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.subs, sub)
	if idx < 0 {
		return
	}
	s.subs = slices.Delete(s.subs, idx, idx+1)
	s.ch.router.Off(sub)
}

func (s *Session) log() *slog.Logger { return s.ch.logger }

// Send transmits a frame over the shared connection.
func (s *Session) Send(msgType string, data any) error {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()

	if released {
		return ErrSessionReleased
	}
	return s.ch.manager.Send(msgType, data)
}

// Release drops every registration of the session. Releasing twice is a no-op.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.ch.router.Off(sub)
	}
	s.ch.release()
}
