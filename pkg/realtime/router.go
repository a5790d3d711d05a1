package realtime

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
)

// Handler receives the data of every frame whose type it was registered for.
type Handler func(data json.RawMessage)

// Subscription is the handle returned by On; pass it to Off to unregister.
type Subscription struct {
	id      uint64
	msgType string
	handler Handler
}

// Type returns the frame type the subscription listens to.
func (s *Subscription) Type() string {
	return s.msgType
}

// Subscriber is anything handlers can be registered on (a Router or a Session).
type Subscriber interface {
	On(msgType string, h Handler) *Subscription
	Off(sub *Subscription)
}

// Router maps frame types to handlers.
// Handlers for one type run in registration order, synchronously with frame arrival.
type Router struct {
	mu     sync.RWMutex
	routes map[string][]*Subscription // frame type -> handlers in registration order
	nextID uint64
	logger *slog.Logger
}

// NewRouter creates an empty router; a nil logger means slog.Default().
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		routes: make(map[string][]*Subscription),
		logger: logger,
	}
}

// On registers h for frames of msgType. A nil handler registers nothing.
func (r *Router) On(msgType string, h Handler) *Subscription {
	if h == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{id: r.nextID, msgType: msgType, handler: h}
	r.routes[msgType] = append(r.routes[msgType], sub)
	return sub
}

// Off removes a registration. Unknown or already removed subscriptions are ignored.
func (r *Router) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.routes[sub.msgType]
	idx := slices.Index(subs, sub)
	if idx < 0 {
		return
	}

	// build a fresh slice: dispatches in flight hold the old one
	remaining := make([]*Subscription, 0, len(subs)-1)
	remaining = append(remaining, subs[:idx]...)
	remaining = append(remaining, subs[idx+1:]...)
	if len(remaining) == 0 {
		delete(r.routes, sub.msgType)
		return
	}
	r.routes[sub.msgType] = remaining
}

// Count returns how many handlers are registered for msgType.
func (r *Router) Count(msgType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes[msgType])
}

// Dispatch runs every handler registered for env.Type and returns how many ran.
// The handler list is snapshotted first, so On/Off calls made by a handler
// apply from the next frame on.
func (r *Router) Dispatch(env *Envelope) int {
	r.mu.RLock()
	subs := r.routes[env.Type]
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.logger.Debug("Unhandled message type", "type", env.Type)
		return 0
	}

	for _, sub := range subs {
		r.invoke(sub, env)
	}
	return len(subs)
}

// HandleFrame parses one wire frame and dispatches it.
// Malformed frames are logged and dropped.
func (r *Router) HandleFrame(frame []byte) error {
	env, err := EnvelopeFromJSON(frame)
	if err != nil {
		r.logger.Warn("Dropping malformed frame", "error", err, "size", len(frame))
		return err
	}
	r.Dispatch(env)
	return nil
}

// invoke isolates each handler so a panic cannot stop the others
func (r *Router) invoke(sub *Subscription, env *Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Message handler panicked",
				"type", env.Type,
				"subscription", sub.id,
				"panic", rec,
			)
		}
	}()
	sub.handler(env.Data)
}

// OnJSON registers a typed handler: data is decoded into T before fn runs.
// Frames whose data does not decode are logged and skipped for this handler only.
func OnJSON[T any](s Subscriber, msgType string, fn func(T)) *Subscription {
	logger := loggerOf(s)
	return s.On(msgType, func(data json.RawMessage) {
		var v T
		if err := decodeData(data, &v); err != nil {
			logger.Warn("Failed to decode frame data", "type", msgType, "error", err)
			return
		}
		fn(v)
	})
}

// loggerOf returns the logger of a Router or Session, slog.Default() otherwise
func loggerOf(s Subscriber) *slog.Logger {
	if l, ok := s.(interface{ log() *slog.Logger }); ok {
		return l.log()
	}
	return slog.Default()
}

func (r *Router) log() *slog.Logger { return r.logger }
