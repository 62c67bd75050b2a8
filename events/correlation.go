package events

import (
	"fmt"
	"strconv"
	"strings"
)

// CorrelationKind tells how a CorrelationID value was chosen.
type CorrelationKind uint8

const (
	KindUnset CorrelationKind = iota
	KindInt
	KindAuto
	KindHandle
)

var kindNames = [...]string{"unset", "int", "auto", "handle"}

func (k CorrelationKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// CorrelationID links an outbound request to the messages answering it.
// It is a comparable value and can be used as a map key.
type CorrelationID struct {
	kind  CorrelationKind
	value uint64
}

// IntID is a caller chosen integer correlation id.
func IntID(v uint64) CorrelationID {
	return CorrelationID{kind: KindInt, value: v}
}

// AutoID is a correlation id assigned by a session.
func AutoID(v uint64) CorrelationID {
	return CorrelationID{kind: KindAuto, value: v}
}

// HandleID carries an opaque handle (for example an arena handle) instead of
// an application pointer.
func HandleID(h uint64) CorrelationID {
	return CorrelationID{kind: KindHandle, value: h}
}

func (c CorrelationID) Kind() CorrelationKind { return c.kind }
func (c CorrelationID) Value() uint64         { return c.value }
func (c CorrelationID) IsSet() bool           { return c.kind != KindUnset }

func (c CorrelationID) String() string {
	switch c.kind {
	case KindUnset:
		return "unset"
	case KindHandle:
		return "handle:0x" + strconv.FormatUint(c.value, 16)
	default:
		return c.kind.String() + ":" + strconv.FormatUint(c.value, 10)
	}
}

// Key is the string form used to index concurrent maps.
func (c CorrelationID) Key() string { return c.String() }

// ParseCorrelationID parses the output of CorrelationID.String.
func ParseCorrelationID(s string) (CorrelationID, error) {
	if s == "" || s == "unset" {
		return CorrelationID{}, nil
	}
	kind, val, ok := strings.Cut(s, ":")
	if !ok {
		return CorrelationID{}, fmt.Errorf("invalid correlation id %q", s)
	}
	switch kind {
	case "int", "auto":
		v, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return CorrelationID{}, fmt.Errorf("invalid correlation id %q: %w", s, err)
		}
		if kind == "int" {
			return IntID(v), nil
		}
		return AutoID(v), nil
	case "handle":
		v, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 64)
		if err != nil {
			return CorrelationID{}, fmt.Errorf("invalid correlation id %q: %w", s, err)
		}
		return HandleID(v), nil
	default:
		return CorrelationID{}, fmt.Errorf("invalid correlation id kind %q", kind)
	}
}

func (c CorrelationID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CorrelationID) UnmarshalText(data []byte) error {
	v, err := ParseCorrelationID(string(data))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
