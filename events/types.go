package events

import (
	"fmt"
	"iter"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// EventType is the category shared by every message in an Event.
type EventType uint8

const (
	Unknown EventType = iota
	SessionStatus
	ServiceStatus
	TokenStatus
	Admin
	RequestStatus
	PartialResponse
	Response
	SubscriptionStatus
	SubscriptionData
	TopicStatus
)

var eventTypeNames = [...]string{
	Unknown:            "unknown",
	SessionStatus:      "session_status",
	ServiceStatus:      "service_status",
	TokenStatus:        "token_status",
	Admin:              "admin",
	RequestStatus:      "request_status",
	PartialResponse:    "partial_response",
	Response:           "response",
	SubscriptionStatus: "subscription_status",
	SubscriptionData:   "subscription_data",
	TopicStatus:        "topic_status",
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("event_type(%d)", uint8(t))
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, error) {
	for i, name := range eventTypeNames {
		if strings.EqualFold(name, s) {
			return EventType(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown event type %q", s)
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(data []byte) error {
	v, err := ParseEventType(string(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Event is an ordered batch of messages sharing one EventType.
type Event struct {
	Type      EventType
	RequestID string
	Messages  []Message
}

// New creates an event of the given type from the messages.
func New(typ EventType, msgs ...Message) Event {
	return Event{Type: typ, Messages: msgs}
}

func (e Event) IsZero() bool {
	return e.Type == Unknown && len(e.Messages) == 0
}

func (e Event) Len() int {
	return len(e.Messages)
}

// All iterates the messages in wire order.
func (e Event) All() iter.Seq2[int, Message] {
	return func(yield func(int, Message) bool) {
		for i, m := range e.Messages {
			if !yield(i, m) {
				return
			}
		}
	}
}

// Correlates reports whether any message in the event carries cid.
func (e Event) Correlates(cid CorrelationID) bool {
	for _, m := range e.Messages {
		if m.CorrelationID == cid {
			return true
		}
	}
	return false
}

// Has reports whether any message in the event has the given name.
func (e Event) Has(name Name) bool {
	for _, m := range e.Messages {
		if m.Type == name {
			return true
		}
	}
	return false
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteByte('[')
	for i, m := range e.Messages {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(m.Type))
	}
	b.WriteByte(']')
	return b.String()
}

// Message is a single typed entry in an Event. The payload is an opaque
// keyed-element document.
type Message struct {
	Type          Name
	CorrelationID CorrelationID
	Topic         string
	Service       string
	Timestamp     strfmt.DateTime
	Payload       gjson.Result
}

// NewMessage creates a message. payload must be a JSON object or empty.
func NewMessage(name Name, cid CorrelationID, payload string) Message {
	m := Message{Type: name, CorrelationID: cid}
	if payload != "" {
		m.Payload = gjson.Parse(payload)
	}
	return m
}

// WithTopic returns a copy of m addressed at topic.
func (m Message) WithTopic(topic string) Message {
	m.Topic = topic
	return m
}

// WithService returns a copy of m attributed to service.
func (m Message) WithService(service string) Message {
	m.Service = service
	return m
}

// Get returns the element at path (gjson syntax).
func (m Message) Get(path string) gjson.Result {
	if !m.Payload.Exists() {
		return gjson.Result{}
	}
	return m.Payload.Get(path)
}

func (m Message) HasElement(path string) bool {
	return m.Get(path).Exists()
}

// Raw returns the payload as JSON, "{}" when empty.
func (m Message) Raw() string {
	if m.Payload.Raw == "" {
		return "{}"
	}
	return m.Payload.Raw
}
