package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Central hub managing all connections.
// Each WebSocket connection runs in its own goroutines
// but they all communicate with the hub through channels to avoid race conditions.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	deliveries chan *Delivery
	done       chan struct{}

	// owned by Run
	clients map[*Client]bool
	byUser  map[string]map[*Client]bool

	count   atomic.Int64
	metrics *Metrics
	logger  *slog.Logger
}

func NewHub(metrics *Metrics, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		deliveries: make(chan *Delivery, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run serves register, unregister and delivery requests until ctx is done,
// then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			h.logger.Info("Hub stopped")
			return

		case c := <-h.Register:
			h.add(c)

		case c := <-h.Unregister:
			if h.clients[c] {
				h.remove(c)
			}

		case d := <-h.deliveries:
			h.fanOut(d)
		}
	}
}

// Deliver queues a delivery for fan-out. It returns false once the hub has stopped.
func (h *Hub) Deliver(d *Delivery) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.deliveries <- d:
		return true
	case <-h.done:
		return false
	}
}

// register hands c to Run; false means the hub has stopped
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) add(c *Client) {
	h.clients[c] = true
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]bool)
	}
	h.byUser[c.UserID][c] = true

	h.count.Add(1)
	h.metrics.ConnectedClients.Inc()
	h.logger.Info("Client connected", "client_id", c.ID, "user_id", c.UserID, "clients", h.count.Load())
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	if set := h.byUser[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	_ = c.Close()

	h.count.Add(-1)
	h.metrics.ConnectedClients.Dec()
	h.logger.Info("Client disconnected", "client_id", c.ID, "user_id", c.UserID, "clients", h.count.Load())
}

func (h *Hub) fanOut(d *Delivery) {
	var targets []*Client
	if d.Targeted() {
		seen := make(map[string]bool, len(d.UserIDs))
		for _, userID := range d.UserIDs {
			if seen[userID] {
				continue
			}
			seen[userID] = true
			for c := range h.byUser[userID] {
				targets = append(targets, c)
			}
		}
	} else {
		targets = make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	}

	delivered := 0
	for _, c := range targets {
		if err := c.SendMessage(d.Frame); err != nil {
			// slow or dead client: drop it rather than block everyone else
			h.logger.Warn("Dropping client", "client_id", c.ID, "user_id", c.UserID, "error", err)
			h.metrics.DroppedClients.Inc()
			h.remove(c)
			continue
		}
		delivered++
	}

	h.metrics.FramesDelivered.WithLabelValues(d.Type).Add(float64(delivered))
	h.logger.Debug("Frame delivered", "type", d.Type, "recipients", delivered, "targeted", d.Targeted())
}
