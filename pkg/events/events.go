// Package events carries timeline changes from the chat runner to the
// surfaces (terminal UI, websocket clients) over Watermill.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/go-go-golems/socratic/pkg/timeline"
)

type Type string

const (
	TypeUpsert   Type = "timeline.upsert"
	TypeSnapshot Type = "timeline.snapshot"
	TypeStatus   Type = "chat.status"
)

// Event is the JSON envelope published for every timeline change.
type Event struct {
	Type     Type               `json:"type"`
	ConvID   string             `json:"conv_id"`
	Version  uint64             `json:"version"`
	Message  *timeline.Message  `json:"message,omitempty"`
	Messages []timeline.Message `json:"messages,omitempty"`
	Loading  bool               `json:"loading"`
}

func NewUpsert(u timeline.Upsert, loading bool) Event {
	m := u.Message
	return Event{Type: TypeUpsert, ConvID: u.ConvID, Version: u.Version, Message: &m, Loading: loading}
}

func NewSnapshot(s timeline.Snapshot, loading bool) Event {
	return Event{Type: TypeSnapshot, ConvID: s.ConvID, Version: s.Version, Messages: s.Messages, Loading: loading}
}

func NewStatus(convID string, version uint64, loading bool) Event {
	return Event{Type: TypeStatus, ConvID: convID, Version: version, Loading: loading}
}

// Upsert returns the timeline upsert carried by an upsert event.
func (e Event) Upsert() (timeline.Upsert, bool) {
	if e.Type != TypeUpsert || e.Message == nil {
		return timeline.Upsert{}, false
	}
	return timeline.Upsert{ConvID: e.ConvID, Version: e.Version, Message: *e.Message}, true
}

// Snapshot returns the timeline snapshot carried by a snapshot event.
func (e Event) Snapshot() (timeline.Snapshot, bool) {
	if e.Type != TypeSnapshot {
		return timeline.Snapshot{}, false
	}
	return timeline.Snapshot{ConvID: e.ConvID, Version: e.Version, Messages: e.Messages}, true
}

// Sink receives events in publication order.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// TopicForConv computes the Watermill topic for a conversation.
func TopicForConv(convID string) string { return "chat:" + convID }

// WatermillSink publishes events as JSON messages on the conversation topic.
type WatermillSink struct {
	pub message.Publisher
}

var _ Sink = &WatermillSink{}

func NewWatermillSink(pub message.Publisher) *WatermillSink {
	return &WatermillSink{pub: pub}
}

func (s *WatermillSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(e.Type))
	if err := s.pub.Publish(TopicForConv(e.ConvID), msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// Decode parses a Watermill message published by WatermillSink.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event json")
	}
	return e, nil
}
