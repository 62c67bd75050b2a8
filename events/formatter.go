package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrNoMessage = errors.New("formatter: no message appended")

var timeNow = func() time.Time { return time.Now().UTC() }

// Formatter builds an outbound event one message at a time. Errors are
// sticky: after the first failure every call is a no-op and Event reports it.
type Formatter struct {
	typ     EventType
	service string
	msgs    []Message
	docs    [][]byte
	err     error
}

// NewFormatter starts an event of the given type attributed to service.
func NewFormatter(typ EventType, service string) *Formatter {
	return &Formatter{typ: typ, service: service}
}

// AppendMessage starts a new message addressed at topic.
func (f *Formatter) AppendMessage(name Name, topic string) *Formatter {
	if f.err != nil {
		return f
	}
	f.msgs = append(f.msgs, Message{
		Type:      name,
		Topic:     topic,
		Service:   f.service,
		Timestamp: strfmt.DateTime(timeNow()),
	})
	f.docs = append(f.docs, []byte(`{}`))
	return f
}

// SetElement sets path in the current message.
func (f *Formatter) SetElement(path string, value any) *Formatter {
	if f.err != nil {
		return f
	}
	if len(f.docs) == 0 {
		f.err = ErrNoMessage
		return f
	}
	last := len(f.docs) - 1
	doc, err := sjson.SetBytes(f.docs[last], path, value)
	if err != nil {
		f.err = fmt.Errorf("formatter: set %s: %w", path, err)
		return f
	}
	f.docs[last] = doc
	return f
}

// SetElements sets every field of values on the current message, in order.
func (f *Formatter) SetElements(values *orderedmap.OrderedMap[string, any]) *Formatter {
	if values == nil {
		return f
	}
	for pair := values.Oldest(); pair != nil; pair = pair.Next() {
		f.SetElement(pair.Key, pair.Value)
	}
	return f
}

func (f *Formatter) Len() int {
	return len(f.msgs)
}

func (f *Formatter) Err() error {
	return f.err
}

// Event returns the built event.
func (f *Formatter) Event() (Event, error) {
	if f.err != nil {
		return Event{}, f.err
	}
	msgs := make([]Message, len(f.msgs))
	for i, m := range f.msgs {
		m.Payload = gjson.ParseBytes(f.docs[i])
		msgs[i] = m
	}
	return Event{Type: f.typ, Messages: msgs}, nil
}
