package dashboard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gitlab-insight/internal/shared"
	"gitlab-insight/pkg/realtime"
)

const DefaultFeedSize = 10

// FeedEvent is one entry of the live feed.
type FeedEvent struct {
	Type       string          `json:"type"`
	Summary    string          `json:"summary"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// LiveFeed keeps the most recent update events of every well-known type, newest first.
type LiveFeed struct {
	// OnEvent, when set before Mount, is called for every new entry.
	OnEvent func(FeedEvent)

	mount
	size   int
	mu     sync.RWMutex
	events []FeedEvent
	now    func() time.Time
}

func NewLiveFeed(size int) *LiveFeed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &LiveFeed{size: size, now: time.Now}
}

var feedTypes = []string{
	realtime.TypeProjectUpdate,
	realtime.TypePipelineUpdate,
	realtime.TypeMergeRequestUpdate,
	realtime.TypeNotification,
}

func (f *LiveFeed) Mount(src realtime.Subscriber) {
	f.attach(src, func(s realtime.Subscriber) []*realtime.Subscription {
		subs := make([]*realtime.Subscription, 0, len(feedTypes))
		for _, msgType := range feedTypes {
			subs = append(subs, s.On(msgType, func(data json.RawMessage) {
				f.add(msgType, data)
			}))
		}
		return subs
	})
}

func (f *LiveFeed) Unmount() { f.detach() }

// Snapshot returns the current entries, newest first.
func (f *LiveFeed) Snapshot() []FeedEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]FeedEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *LiveFeed) add(msgType string, data json.RawMessage) {
	ev := FeedEvent{
		Type:       msgType,
		Summary:    Summarize(msgType, data),
		Data:       append(json.RawMessage(nil), data...),
		ReceivedAt: f.now(),
	}

	f.mu.Lock()
	f.events = append([]FeedEvent{ev}, f.events...)
	if len(f.events) > f.size {
		f.events = f.events[:f.size]
	}
	f.mu.Unlock()

	if f.OnEvent != nil {
		f.OnEvent(ev)
	}
}

// Summarize renders a one-line description of a frame's data.
func Summarize(msgType string, data json.RawMessage) string {
	switch msgType {
	case realtime.TypeProjectUpdate:
		var p shared.ProjectUpdate
		if json.Unmarshal(data, &p) == nil {
			if p.Message != "" {
				return fmt.Sprintf("project %s: %s", projectLabel(p.ProjectID, p.Name), p.Message)
			}
			return fmt.Sprintf("project %s is %s", projectLabel(p.ProjectID, p.Name), p.Status)
		}
	case realtime.TypePipelineUpdate:
		var p shared.PipelineUpdate
		if json.Unmarshal(data, &p) == nil {
			if p.Ref != "" {
				return fmt.Sprintf("pipeline #%d of project %d on %s: %s", p.PipelineID, p.ProjectID, p.Ref, p.Status)
			}
			return fmt.Sprintf("pipeline #%d of project %d: %s", p.PipelineID, p.ProjectID, p.Status)
		}
	case realtime.TypeMergeRequestUpdate:
		var mr shared.MergeRequestUpdate
		if json.Unmarshal(data, &mr) == nil {
			return fmt.Sprintf("merge request !%d %s: %s", mr.IID, mr.State, mr.Title)
		}
	case realtime.TypeNotification:
		var n shared.Notification
		if json.Unmarshal(data, &n) == nil {
			return n.Message
		}
	}
	return string(data)
}

func projectLabel(id int64, name string) string {
	if name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}
