package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second // max time to write one frame
	closeGracePeriod = time.Second      // max time to send the close frame on Disconnect
	defaultReadLimit = 1 << 20          // max inbound frame size
)

var (
	ErrNotConnected = errors.New("realtime: connection is not open")
	ErrNoEndpoint   = errors.New("realtime: no endpoint configured")
)

// Options configures a Manager. Zero values fall back to sane defaults.
type Options struct {
	Policy    Policy
	Codec     Codec             // frame wrapper, PlainCodec when nil
	Header    http.Header       // extra handshake headers
	Dialer    *websocket.Dialer // HandshakeTimeout is overridden by Policy.Timeout
	ReadLimit int64
	Logger    *slog.Logger
}

// Manager owns the single duplex connection of a process and keeps it alive.
// Inbound frames are handed to the router on the connection's read goroutine.
type Manager struct {
	router    *Router
	policy    Policy
	codec     Codec
	header    http.Header
	dialer    websocket.Dialer
	readLimit int64
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	endpoint string // full URL, token included
	gen      uint64 // bumped whenever the current run goroutine is superseded
	cancel   context.CancelFunc
	conn     *websocket.Conn
	kick     chan struct{} // asks the run goroutine to reconnect now with a fresh budget
	writeMu  sync.Mutex    // gorilla allows one concurrent writer

	pending  []Event // lifecycle events in state order, delivered by flush
	flushing bool

	obsMu     sync.Mutex
	observers []observerEntry
	nextObs   uint64

	wg sync.WaitGroup
}

type observerEntry struct {
	id uint64
	fn Observer
}

// NewManager creates a disconnected manager dispatching into router.
func NewManager(router *Router, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if router == nil {
		router = NewRouter(logger)
	}
	codec := opts.Codec
	if codec == nil {
		codec = PlainCodec{}
	}
	policy := opts.Policy.normalize()

	dialer := *websocket.DefaultDialer
	if opts.Dialer != nil {
		dialer = *opts.Dialer
	}
	dialer.HandshakeTimeout = policy.Timeout

	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}

	return &Manager{
		router:    router,
		policy:    policy,
		codec:     codec,
		header:    opts.Header,
		dialer:    dialer,
		readLimit: readLimit,
		logger:    logger,
		state:     StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe registers fn for lifecycle events and returns a func that removes it.
func (m *Manager) Observe(fn Observer) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.obsMu.Lock()
	m.nextObs++
	id := m.nextObs
	m.observers = append(m.observers, observerEntry{id: id, fn: fn})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// Connect opens the connection in the background. It is a no-op while a
// connection is being established, is open, or is being retried.
// Success is reported through an EventOpened.
func (m *Manager) Connect(endpoint, token string) error {
	err := m.connect(endpoint, token)
	m.flush()
	return err
}

// connect is Connect without delivering the queued events
func (m *Manager) connect(endpoint, token string) error {
	target, err := endpointURL(endpoint, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.active() {
		return nil
	}
	m.endpoint = target
	m.queueLocked(m.startLocked())
	m.logger.Info("Connecting to real-time endpoint", "endpoint", redact(target))
	return nil
}

// Disconnect closes the connection and stops automatic reconnection until
// the next Connect or Reconnect. Safe to call from a handler.
func (m *Manager) Disconnect() {
	m.disconnect()
	m.flush()
}

// disconnect is Disconnect without delivering the queued events
func (m *Manager) disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.queueLocked(Event{Kind: EventClosed, State: StateDisconnected, Code: websocket.CloseNormalClosure})
	}
	m.queueLocked(m.transitionLocked(StateDisconnected))
	m.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		_ = conn.Close()
	}
	m.logger.Info("Real-time connection closed by client")
}

// Reconnect resets the retry budget and reconnects immediately, dropping a
// live connection first. It revives a FAILED or DISCONNECTED manager.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.endpoint == "" {
		m.mu.Unlock()
		return ErrNoEndpoint
	}
	if !m.state.active() {
		target := m.endpoint
		m.queueLocked(m.startLocked())
		m.mu.Unlock()
		m.logger.Info("Manual reconnect requested", "endpoint", redact(target))
		m.flush()
		return nil
	}
	select {
	case m.kick <- struct{}{}:
	default:
	}
	conn := m.conn
	m.mu.Unlock()

	m.logger.Info("Manual reconnect requested while active")
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// SetPolicy replaces the reconnection policy. A connection already running
// keeps its policy; the next Connect or Reconnect uses the new one.
func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p.normalize()
}

// Close disconnects and waits for the background goroutine to finish.
// Must not be called from a handler.
func (m *Manager) Close() {
	m.Disconnect()
	m.wg.Wait()
}

// Send transmits one frame if and only if the connection is open.
// Nothing is buffered: a frame refused here is never sent later.
func (m *Manager) Send(msgType string, data any) error {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	payload, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", msgType, err)
	}
	wire, err := m.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", msgType, err)
	}

	m.mu.Lock()
	conn, state := m.conn, m.state
	if conn == nil || state != StateConnected {
		m.queueLocked(Event{Kind: EventError, State: state, Err: ErrNotConnected})
		m.mu.Unlock()
		m.logger.Warn("Dropping outbound frame, connection not open", "type", msgType, "state", state)
		m.flush()
		return ErrNotConnected
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, wire)
	m.writeMu.Unlock()

	if err != nil {
		err = fmt.Errorf("realtime: send %s: %w", msgType, err)
		m.logger.Warn("Failed to send frame", "type", msgType, "error", err)
		m.mu.Lock()
		m.queueLocked(Event{Kind: EventError, State: m.state, Err: err})
		m.mu.Unlock()
		m.flush()
		return err
	}
	return nil
}

// startLocked launches a new run goroutine; m.mu must be held
func (m *Manager) startLocked() Event {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.kick = make(chan struct{}, 1)
	ev := m.transitionLocked(StateConnecting)

	m.wg.Add(1)
	go m.run(ctx, m.gen, m.kick, m.policy)
	return ev
}

func (m *Manager) transitionLocked(next State) Event {
	prev := m.state
	m.state = next
	return Event{Kind: EventStateChanged, State: next, Prev: prev}
}

// run dials, reads and retries until cancelled or out of retries
func (m *Manager) run(ctx context.Context, gen uint64, kick <-chan struct{}, policy Policy) {
	defer m.wg.Done()

	bo := policy.NewBackOff()
	attempt := 0

	for {
		conn, err := m.dial(ctx, policy.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("Real-time dial failed", "error", err, "attempt", attempt)
			m.emitFor(gen, Event{Kind: EventError, State: m.State(), Err: err})
		} else {
			opened := time.Now()
			if !m.attach(gen, conn) {
				_ = conn.Close()
				return
			}
			code, readErr := m.readLoop(conn)
			if !m.detach(gen, code, readErr) {
				return
			}
			if time.Since(opened) >= policy.MinUptime {
				bo.Reset()
				attempt = 0
			}
		}

		select {
		case <-kick:
			bo.Reset()
			attempt = 0
			continue
		default:
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			m.giveUp(gen, attempt)
			return
		}
		attempt++
		if !m.scheduleRetry(gen, attempt, delay) {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-kick:
			timer.Stop()
			bo.Reset()
			attempt = 0
		case <-timer.C:
		}
	}
}

func (m *Manager) dial(ctx context.Context, timeout time.Duration) (*websocket.Conn, error) {
	m.mu.Lock()
	target := m.endpoint
	m.mu.Unlock()

	dialer := m.dialer
	dialer.HandshakeTimeout = timeout
	conn, resp, err := dialer.DialContext(ctx, target, m.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", redact(target), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", redact(target), err)
	}
	conn.SetReadLimit(m.readLimit)
	return conn, nil
}

// attach publishes a freshly dialed connection unless this run is stale
func (m *Manager) attach(gen uint64, conn *websocket.Conn) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	// a Reconnect issued while dialing is satisfied by this connection
	select {
	case <-m.kick:
	default:
	}
	m.queueLocked(m.transitionLocked(StateConnected), Event{Kind: EventOpened, State: StateConnected})
	m.mu.Unlock()

	m.logger.Info("Real-time connection established")
	m.flush()
	return true
}

// detach records an unexpected close; false means the close was ours
func (m *Manager) detach(gen uint64, code int, err error) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.conn = nil
	m.queueLocked(Event{Kind: EventClosed, State: StateReconnecting, Code: code, Err: err})
	m.queueLocked(m.transitionLocked(StateReconnecting))
	m.mu.Unlock()

	m.logger.Warn("Real-time connection lost", "code", code, "error", err)
	m.flush()
	return true
}

func (m *Manager) scheduleRetry(gen uint64, attempt int, delay time.Duration) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	if m.state != StateReconnecting {
		m.queueLocked(m.transitionLocked(StateReconnecting))
	}
	m.queueLocked(Event{Kind: EventReconnecting, State: StateReconnecting, Attempt: attempt, Delay: delay})
	m.mu.Unlock()

	m.logger.Info("Scheduling real-time reconnect", "attempt", attempt, "delay", delay)
	m.flush()
	return true
}

func (m *Manager) giveUp(gen uint64, attempts int) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.queueLocked(m.transitionLocked(StateFailed), Event{Kind: EventGaveUp, State: StateFailed, Attempt: attempts})
	m.mu.Unlock()

	m.logger.Error("Real-time reconnect attempts exhausted", "attempts", attempts)
	m.flush()
}

// readLoop feeds inbound frames to the router until the socket fails
func (m *Manager) readLoop(conn *websocket.Conn) (int, error) {
	for {
		_, wire, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			return code, err
		}

		frame, err := m.codec.Decode(wire)
		if err != nil {
			m.logger.Warn("Dropping undecodable frame", "error", err, "size", len(wire))
			continue
		}
		_ = m.router.HandleFrame(frame)
	}
}

func (m *Manager) emitFor(gen uint64, ev Event) {
	m.mu.Lock()
	if m.gen == gen {
		m.queueLocked(ev)
	}
	m.mu.Unlock()
	m.flush()
}

// queueLocked appends events in the order the state changed; m.mu must be held
func (m *Manager) queueLocked(evs ...Event) {
	m.pending = append(m.pending, evs...)
}

// flush delivers queued events. One goroutine delivers at a time, so
// observers see events in state order; events queued meanwhile are picked
// up by the goroutine already flushing.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()
		for _, ev := range batch {
			m.emit(ev)
		}
		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}

func (m *Manager) emit(ev Event) {
	m.obsMu.Lock()
	observers := make([]observerEntry, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.Unlock()

	for _, o := range observers {
		m.notify(o, ev)
	}
}

func (m *Manager) notify(o observerEntry, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("Lifecycle observer panicked", "event", ev.Kind.String(), "panic", rec)
		}
	}()
	o.fn(ev)
}

// endpointURL validates the endpoint and appends the auth token as a query parameter
func endpointURL(endpoint, token string) (string, error) {
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("realtime: unsupported endpoint scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// redact strips the query string so tokens never reach the logs
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	return u.String()
}
