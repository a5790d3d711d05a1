package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

var ErrHubStopped = errors.New("hub stopped")

// Publisher hands a delivery to every api-server replica
type Publisher interface {
	Publish(ctx context.Context, d *Delivery) error
}

// DirectPublisher delivers straight to the local hub (single replica, no Redis)
type DirectPublisher struct {
	Hub *Hub
}

func (p *DirectPublisher) Publish(_ context.Context, d *Delivery) error {
	if !p.Hub.Deliver(d) {
		return ErrHubStopped
	}
	return nil
}

// RedisPublisher publishes deliveries on the shared updates channel
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, d *Delivery) error {
	payload, err := d.ToJSON()
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// NotificationRecorder stores notifications for their recipients
type NotificationRecorder interface {
	Record(ctx context.Context, userIDs []string, n shared.Notification) error
}

// RecordingPublisher persists targeted NOTIFICATION deliveries before publishing
// them, so users who are offline find them in their inbox later.
type RecordingPublisher struct {
	Next     Publisher
	Recorder NotificationRecorder
	Logger   *slog.Logger
}

func (p *RecordingPublisher) Publish(ctx context.Context, d *Delivery) error {
	if d.Type == realtime.TypeNotification && d.Targeted() {
		if err := p.record(ctx, d); err != nil {
			p.logger().Error("Failed to store notification", "error", err, "recipients", len(d.UserIDs))
		}
	}
	return p.Next.Publish(ctx, d)
}

func (p *RecordingPublisher) record(ctx context.Context, d *Delivery) error {
	env, err := realtime.EnvelopeFromJSON(d.Frame)
	if err != nil {
		return err
	}
	var n shared.Notification
	if err := env.Decode(&n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	return p.Recorder.Record(ctx, d.UserIDs, n)
}

func (p *RecordingPublisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Relay feeds deliveries published on the Redis updates channel into the local hub
type Relay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRelay(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

// Run subscribes and relays until ctx is done
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed before reporting ready
	subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("Relaying live updates from Redis", "channel", r.channel)

	r.consume(ctx, pubsub.Channel())
	return nil
}

func (r *Relay) consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				r.logger.Warn("Redis subscription closed", "channel", r.channel)
				return
			}
			r.forward([]byte(msg.Payload))
		}
	}
}

func (r *Relay) forward(payload []byte) {
	d, err := DeliveryFromJSON(payload)
	if err != nil {
		r.hub.metrics.RelayErrors.Inc()
		r.logger.Warn("Dropping undecodable update", "error", err, "size", len(payload))
		return
	}
	r.hub.Deliver(d)
}
