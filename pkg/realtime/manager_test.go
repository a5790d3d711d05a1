package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// pushServer is a minimal push endpoint: it answers PING with PONG,
// records what it receives and can drop connections right after the handshake.
type pushServer struct {
	*httptest.Server
	upgrader websocket.Upgrader
	drop     atomic.Bool
	onConn   func(conn *websocket.Conn)
	delay    time.Duration // held before each handshake

	mu       sync.Mutex
	conns    int
	tokens   []string
	received []string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	s := &pushServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *pushServer) serve(w http.ResponseWriter, r *http.Request) {
	time.Sleep(s.delay)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conns++
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.mu.Unlock()

	if s.drop.Load() {
		return
	}
	if s.onConn != nil {
		s.onConn(conn)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, string(msg))
		s.mu.Unlock()

		env, err := EnvelopeFromJSON(msg)
		if err == nil && env.Type == TypePing {
			pong, _ := (&Envelope{Type: TypePong, Data: env.Data}).ToJSON()
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return
			}
		}
	}
}

func (s *pushServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *pushServer) receivedFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// eventLog records lifecycle events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, ev := range l.events {
		if ev.Kind == EventStateChanged {
			out = append(out, ev.State)
		}
	}
	return out
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func fastPolicy(maxRetries int) Policy {
	return Policy{
		Interval:   10 * time.Millisecond,
		Decay:      1.5,
		MaxRetries: maxRetries,
		Timeout:    time.Second,
	}
}

func newTestManager(t *testing.T, policy Policy) (*Manager, *Router, *eventLog) {
	t.Helper()
	router := NewRouter(nil)
	m := NewManager(router, Options{Policy: policy})
	log := &eventLog{}
	m.Observe(log.observe)
	t.Cleanup(m.Close)
	return m, router, log
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, waitFor, tick,
		"state never became %s (last %s)", want, m.State())
}

func TestManager_PingPong(t *testing.T) {
	srv := newPushServer(t)
	m, router, log := newTestManager(t, fastPolicy(3))

	var pongs atomic.Int32
	router.On(TypePong, func(json.RawMessage) { pongs.Add(1) })

	require.NoError(t, m.Connect(srv.URL, "secret"))
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Send(TypePing, nil))
	require.Eventually(t, func() bool { return pongs.Load() == 1 }, waitFor, tick)

	assert.Equal(t, []State{StateConnecting, StateConnected}, log.states())
	assert.Equal(t, 1, log.count(EventOpened))
}

func TestManager_HandlersRunInOrderForPushedFrames(t *testing.T) {
	srv := newPushServer(t)
	srv.onConn = func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PROJECT_UPDATE","data":{"id":1}}`))
	}
	m, router, _ := newTestManager(t, fastPolicy(3))

	var mu sync.Mutex
	var calls []string
	router.On(TypeProjectUpdate, func(json.RawMessage) {
		mu.Lock()
		calls = append(calls, "a")
		mu.Unlock()
	})
	router.On(TypeProjectUpdate, func(json.RawMessage) {
		mu.Lock()
		calls = append(calls, "b")
		mu.Unlock()
	})

	require.NoError(t, m.Connect(srv.URL, ""))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestManager_MalformedFrameDoesNotDropConnection(t *testing.T) {
	srv := newPushServer(t)
	srv.onConn = func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOTIFICATION","data":{"message":"hi"}}`))
	}
	m, router, log := newTestManager(t, fastPolicy(3))

	var got atomic.Int32
	router.On(TypeNotification, func(json.RawMessage) { got.Add(1) })

	require.NoError(t, m.Connect(srv.URL, ""))
	require.Eventually(t, func() bool { return got.Load() == 1 }, waitFor, tick)

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 0, log.count(EventClosed))
	assert.Equal(t, 1, srv.connCount())
}

func TestManager_GivesUpAfterMaxRetries(t *testing.T) {
	srv := newPushServer(t)
	srv.drop.Store(true)
	m, _, log := newTestManager(t, fastPolicy(2))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateFailed)

	// initial connection plus two retries
	assert.Equal(t, 3, srv.connCount())

	attempts := log.ofKind(EventReconnecting)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Equal(t, 10*time.Millisecond, attempts[0].Delay)
	assert.Equal(t, 15*time.Millisecond, attempts[1].Delay)

	assert.Equal(t, 1, log.count(EventGaveUp))
	for _, ev := range log.ofKind(EventClosed) {
		assert.Equal(t, websocket.CloseAbnormalClosure, ev.Code)
	}

	// no further attempts once failed
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, srv.connCount())
}

func TestManager_ReconnectRevivesFailedManager(t *testing.T) {
	srv := newPushServer(t)
	srv.drop.Store(true)
	m, _, _ := newTestManager(t, fastPolicy(1))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateFailed)
	require.Equal(t, 2, srv.connCount())

	srv.drop.Store(false)
	require.NoError(t, m.Reconnect())
	waitForState(t, m, StateConnected)
	assert.Equal(t, 3, srv.connCount())
}

func TestManager_ConnectAfterFailedStartsOver(t *testing.T) {
	srv := newPushServer(t)
	srv.drop.Store(true)
	m, _, _ := newTestManager(t, fastPolicy(1))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateFailed)

	srv.drop.Store(false)
	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)
}

func TestManager_ReconnectWhileConnectedRedials(t *testing.T) {
	srv := newPushServer(t)
	m, _, log := newTestManager(t, fastPolicy(3))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Reconnect())
	require.Eventually(t, func() bool {
		return srv.connCount() == 2 && m.State() == StateConnected
	}, waitFor, tick)

	assert.Equal(t, 2, log.count(EventOpened))
	assert.Equal(t, 0, log.count(EventReconnecting))
}

func TestManager_ReconnectWithoutEndpoint(t *testing.T) {
	m, _, _ := newTestManager(t, fastPolicy(3))

	assert.ErrorIs(t, m.Reconnect(), ErrNoEndpoint)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_SendWhileDisconnectedIsNotReplayed(t *testing.T) {
	srv := newPushServer(t)
	m, _, log := newTestManager(t, fastPolicy(3))

	err := m.Send(TypeNotification, map[string]string{"message": "lost"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, log.count(EventError))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)
	require.NoError(t, m.Send(TypePing, nil))

	require.Eventually(t, func() bool { return len(srv.receivedFrames()) == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{`{"type":"PING"}`}, srv.receivedFrames())
}

func TestManager_DisconnectStopsReconnection(t *testing.T) {
	srv := newPushServer(t)
	m, _, log := newTestManager(t, fastPolicy(5))

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
	assert.Equal(t, 0, log.count(EventReconnecting))

	closed := log.ofKind(EventClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, websocket.CloseNormalClosure, closed[0].Code)

	assert.ErrorIs(t, m.Send(TypePing, nil), ErrNotConnected)
}

func TestManager_DisconnectFromHandler(t *testing.T) {
	srv := newPushServer(t)
	srv.onConn = func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOTIFICATION","data":{"message":"logout"}}`))
	}
	m, router, _ := newTestManager(t, fastPolicy(5))
	router.On(TypeNotification, func(json.RawMessage) { m.Disconnect() })

	require.NoError(t, m.Connect(srv.URL, ""))
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, waitFor, tick)
	waitForState(t, m, StateDisconnected)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
}

func TestManager_ConnectIsIdempotentWhileActive(t *testing.T) {
	srv := newPushServer(t)
	m, _, _ := newTestManager(t, fastPolicy(3))

	require.NoError(t, m.Connect(srv.URL, ""))
	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)
	require.NoError(t, m.Connect(srv.URL, ""))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
}

func TestManager_TokenIsSentAsQueryParameter(t *testing.T) {
	srv := newPushServer(t)
	m, _, _ := newTestManager(t, fastPolicy(3))

	require.NoError(t, m.Connect(srv.URL+"/ws", "jwt-token"))
	waitForState(t, m, StateConnected)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"jwt-token"}, srv.tokens)
}

func TestManager_DialFailuresExhaustRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	m, _, log := newTestManager(t, fastPolicy(2))

	require.NoError(t, m.Connect(endpoint, ""))
	waitForState(t, m, StateFailed)

	assert.Equal(t, 3, log.count(EventError))
	assert.Equal(t, 2, log.count(EventReconnecting))
	assert.Equal(t, 0, log.count(EventOpened))
}

func TestManager_ReconnectWhileDialingIsSatisfiedByThatDial(t *testing.T) {
	srv := newPushServer(t)
	srv.delay = 100 * time.Millisecond
	conns := make(chan *websocket.Conn, 1)
	srv.onConn = func(conn *websocket.Conn) {
		select {
		case conns <- conn:
		default:
		}
	}
	m, _, log := newTestManager(t, fastPolicy(3))

	require.NoError(t, m.Connect(srv.URL, ""))
	require.Equal(t, StateConnecting, m.State())
	require.NoError(t, m.Reconnect())
	waitForState(t, m, StateConnected)

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(waitFor):
		t.Fatal("server never saw the connection")
	}
	conn.Close()

	// the later drop goes through the normal backoff instead of an immediate redial
	require.Eventually(t, func() bool { return log.count(EventReconnecting) == 1 }, waitFor, tick)
	assert.Equal(t, 1, log.ofKind(EventReconnecting)[0].Attempt)
	waitForState(t, m, StateConnected)
}

func TestManager_StateEventsArriveInOrder(t *testing.T) {
	srv := newPushServer(t)
	m, _, log := newTestManager(t, fastPolicy(3))

	for i := 0; i < 30; i++ {
		require.NoError(t, m.Connect(srv.URL, ""))
		if i%3 == 0 {
			waitForState(t, m, StateConnected)
		}
		m.Disconnect()
	}

	require.Eventually(t, func() bool {
		states := log.states()
		return len(states) > 0 && states[len(states)-1] == StateDisconnected
	}, waitFor, tick)

	log.mu.Lock()
	defer log.mu.Unlock()
	prev := StateDisconnected
	for i, ev := range log.events {
		if ev.Kind != EventStateChanged {
			continue
		}
		require.Equal(t, prev, ev.Prev, "event %d: %s -> %s", i, ev.Prev, ev.State)
		prev = ev.State
	}
	assert.Equal(t, StateDisconnected, prev)
}

func TestManager_SetPolicyAppliesToNextConnect(t *testing.T) {
	srv := newPushServer(t)
	srv.drop.Store(true)
	m, _, log := newTestManager(t, fastPolicy(3))

	m.SetPolicy(fastPolicy(1))
	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateFailed)

	assert.Equal(t, 2, srv.connCount())
	assert.Equal(t, 1, log.count(EventReconnecting))
}

func TestManager_ObserverPanicIsContained(t *testing.T) {
	srv := newPushServer(t)
	m, _, log := newTestManager(t, fastPolicy(3))
	m.Observe(func(Event) { panic("observer") })

	require.NoError(t, m.Connect(srv.URL, ""))
	waitForState(t, m, StateConnected)
	assert.Equal(t, 1, log.count(EventOpened))
}

func TestManager_ObserveCancel(t *testing.T) {
	m := NewManager(nil, Options{})
	calls := 0
	cancel := m.Observe(func(Event) { calls++ })

	cancel()
	_ = m.Send(TypePing, nil)

	assert.Equal(t, 0, calls)
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		token    string
		want     string
		wantErr  bool
	}{
		{"ws passthrough", "ws://localhost:8080/ws", "", "ws://localhost:8080/ws", false},
		{"http upgraded", "http://localhost:8080/ws", "abc", "ws://localhost:8080/ws?token=abc", false},
		{"https upgraded", "https://insight.example.com/ws", "abc", "wss://insight.example.com/ws?token=abc", false},
		{"existing query kept", "wss://h/ws?v=2", "t", "wss://h/ws?token=t&v=2", false},
		{"empty", "", "t", "", true},
		{"bad scheme", "ftp://h/ws", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := endpointURL(tt.endpoint, tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "wss://h/ws", redact("wss://h/ws?token=secret"))
}
