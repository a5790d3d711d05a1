package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"gitlab-insight/pkg/realtime"
)

// Individual client connection handler

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send pings before pong wait expires, 10% slack for network jitter
	MaxMessageSize = 4096                // maximum message size allowed from peer
	SendBufferSize = 256                 // queued outbound frames before the client counts as slow

	inboundRate  = rate.Limit(10) // inbound frames per second
	inboundBurst = 20
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type Client struct {
	ID          string          // unique client ID (uuid per connection)
	UserID      string          // user ID get from auth token(JWT.claims)
	UserName    string          // user name get from auth token(JWT.claims)
	Conn        *websocket.Conn // WebSocket connection
	SendChannel chan []byte     // channel for outbound(chan <-) frames
	Hub         *Hub            // reference to the central Hub

	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// constructor new client
func NewClient(id, userID, userName string, conn *websocket.Conn, hub *Hub) *Client {
	logger := slog.Default()
	if hub != nil {
		logger = hub.logger
	}
	return &Client{
		ID:          id,
		UserID:      userID,
		UserName:    userName,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBufferSize),
		Hub:         hub,
		limiter:     rate.NewLimiter(inboundRate, inboundBurst),
		logger:      logger.With("client_id", id, "user_id", userID),
	}
}

// ReadPump: reads frames from the peer until the connection fails.
// Only PING is answered; the push channel is otherwise one-way.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Unexpected websocket close", "error", err)
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))

		if !c.limiter.Allow() {
			c.Hub.metrics.RateLimited.Inc()
			c.logger.Warn("Inbound frame rate limited")
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := realtime.EnvelopeFromJSON(data)
	if err != nil {
		c.logger.Debug("Ignoring malformed frame", "error", err)
		return
	}

	switch env.Type {
	case realtime.TypePing:
		pong, err := (&realtime.Envelope{Type: realtime.TypePong, Data: env.Data}).ToJSON()
		if err != nil {
			return
		}
		if err := c.SendMessage(pong); err != nil {
			c.logger.Debug("Failed to queue PONG", "error", err)
		}
	default:
		c.logger.Debug("Ignoring inbound frame", "type", env.Type)
	}
}

// WritePump: drains SendChannel to the peer and keeps the heartbeat going
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChannel:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage: queues a frame without blocking
func (c *Client) SendMessage(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.SendChannel <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close: stops the write pump; safe to call more than once
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.SendChannel)
	return nil
}
