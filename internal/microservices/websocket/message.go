package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gitlab-insight/pkg/realtime"
)

// Delivery protocol definitions

var ErrEmptyFrame = errors.New("delivery has no frame")

// Delivery is one frame to push plus its audience.
// It is also the payload published on the Redis updates channel.
type Delivery struct {
	Type    string          `json:"type"`               // frame type, kept for metrics and filtering
	Frame   json.RawMessage `json:"frame"`              // complete envelope as sent to clients
	UserIDs []string        `json:"user_ids,omitempty"` // empty = every connected client
}

// constructor new delivery
func NewDelivery(env *realtime.Envelope, userIDs ...string) (*Delivery, error) {
	frame, err := env.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", env.Type, err)
	}
	return &Delivery{Type: env.Type, Frame: frame, UserIDs: userIDs}, nil
}

// Targeted reports whether the delivery is limited to specific users
func (d *Delivery) Targeted() bool {
	return len(d.UserIDs) > 0
}

// ToJSON: marshal Delivery struct to JSON
func (d *Delivery) ToJSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		slog.Error("Failed to marshal delivery to JSON", "error", err)
		return nil, err
	}
	return data, nil
}

// DeliveryFromJSON: unmarshal JSON data to Delivery struct
func DeliveryFromJSON(data []byte) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Error("Failed to unmarshal delivery from JSON", "error", err)
		return nil, err
	}
	if len(d.Frame) == 0 {
		return nil, ErrEmptyFrame
	}
	env, err := realtime.EnvelopeFromJSON(d.Frame)
	if err != nil {
		return nil, err
	}
	d.Type = env.Type
	return &d, nil
}
