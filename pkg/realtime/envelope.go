package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame protocol definitions

// Well-known frame types pushed by the insight backend
const (
	TypeProjectUpdate      = "PROJECT_UPDATE"
	TypePipelineUpdate     = "PIPELINE_UPDATE"
	TypeMergeRequestUpdate = "MERGE_REQUEST_UPDATE"
	TypeNotification       = "NOTIFICATION"

	// heartbeat pair answered by the push endpoint
	TypePing = "PING"
	TypePong = "PONG"
)

var (
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	ErrMissingType    = errors.New("realtime: frame type is required")
)

// Envelope is one frame on the wire: {"type": ..., "data": ...}.
// Data stays raw until a handler decodes it.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope, marshaling data unless it is already raw JSON.
func NewEnvelope(msgType string, data any) (*Envelope, error) {
	if msgType == "" {
		return nil, ErrMissingType
	}

	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: data for %s is not valid JSON", ErrMalformedFrame, msgType)
		}
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("realtime: marshal %s data: %w", msgType, err)
		}
		raw = b
	}

	return &Envelope{Type: msgType, Data: raw}, nil
}

// ToJSON: marshal the envelope into a single wire frame
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v; an absent payload decodes as null.
func (e *Envelope) Decode(v any) error {
	return decodeData(e.Data, v)
}

// EnvelopeFromJSON parses one wire frame. Frames that are not JSON objects
// or carry no type are malformed.
func EnvelopeFromJSON(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &env, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Unmarshal(data, v)
}
