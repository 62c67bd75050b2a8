package events

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MarshalJSON implements custom JSON marshaling for Message
func (m Message) MarshalJSON() ([]byte, error) {
	result := []byte(`{}`)

	var err error
	result, err = sjson.SetBytes(result, "type", string(m.Type))
	if err != nil {
		return nil, err
	}

	if m.CorrelationID.IsSet() {
		result, err = sjson.SetBytes(result, "cid", m.CorrelationID.String())
		if err != nil {
			return nil, err
		}
	}

	if m.Topic != "" {
		result, err = sjson.SetBytes(result, "topic", m.Topic)
		if err != nil {
			return nil, err
		}
	}

	if m.Service != "" {
		result, err = sjson.SetBytes(result, "service", m.Service)
		if err != nil {
			return nil, err
		}
	}

	if !time.Time(m.Timestamp).IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", m.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	if m.Payload.Exists() {
		result, err = sjson.SetRawBytes(result, "payload", []byte(m.Payload.Raw))
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	return m.fromResult(gjson.ParseBytes(data))
}

func (m *Message) fromResult(r gjson.Result) error {
	typ := r.Get("type")
	if !typ.Exists() || typ.String() == "" {
		return fmt.Errorf("missing required field 'type'")
	}
	m.Type = Name(typ.String())

	m.CorrelationID = CorrelationID{}
	if cid := r.Get("cid"); cid.Exists() {
		if err := m.CorrelationID.UnmarshalText([]byte(cid.String())); err != nil {
			return fmt.Errorf("invalid cid: %w", err)
		}
	}

	m.Topic = r.Get("topic").String()
	m.Service = r.Get("service").String()

	m.Timestamp = strfmt.DateTime{}
	if ts := r.Get("timestamp"); ts.Exists() {
		dt, err := strfmt.ParseDateTime(ts.String())
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		m.Timestamp = dt
	}

	m.Payload = r.Get("payload")
	return nil
}

// MarshalJSON implements custom JSON marshaling for Event
func (e Event) MarshalJSON() ([]byte, error) {
	result := []byte(`{}`)

	var err error
	result, err = sjson.SetBytes(result, "type", e.Type.String())
	if err != nil {
		return nil, err
	}

	if e.RequestID != "" {
		result, err = sjson.SetBytes(result, "request_id", e.RequestID)
		if err != nil {
			return nil, err
		}
	}

	result, err = sjson.SetRawBytes(result, "messages", []byte(`[]`))
	if err != nil {
		return nil, err
	}
	for _, msg := range e.Messages {
		raw, err := msg.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message %s: %w", msg.Type, err)
		}
		result, err = sjson.SetRawBytes(result, "messages.-1", raw)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return fmt.Errorf("missing required field 'type'")
	}
	if err := e.Type.UnmarshalText([]byte(typ.String())); err != nil {
		return err
	}

	e.RequestID = gjson.GetBytes(data, "request_id").String()

	msgs := gjson.GetBytes(data, "messages")
	if !msgs.Exists() {
		return fmt.Errorf("missing required field 'messages'")
	}

	e.Messages = make([]Message, 0, len(msgs.Array()))
	var merr error
	msgs.ForEach(func(_, value gjson.Result) bool {
		var m Message
		if err := m.fromResult(value); err != nil {
			merr = err
			return false
		}
		e.Messages = append(e.Messages, m)
		return true
	})
	return merr
}

// ToJSON encodes an event for the wire.
func ToJSON(e Event) ([]byte, error) {
	return e.MarshalJSON()
}

// FromJSON decodes an event produced by ToJSON.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := e.UnmarshalJSON(data); err != nil {
		return Event{}, err
	}
	return e, nil
}
