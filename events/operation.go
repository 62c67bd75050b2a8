package events

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// OperationKind names an outbound operation a session sends to a server.
type OperationKind string

const (
	OpConnect       OperationKind = "connect"
	OpDisconnect    OperationKind = "disconnect"
	OpOpenService   OperationKind = "open_service"
	OpRegister      OperationKind = "register_service"
	OpGenerateToken OperationKind = "generate_token"
	OpAuthorize     OperationKind = "authorize"
	OpCreateTopics  OperationKind = "create_topics"
	OpDeleteTopics  OperationKind = "delete_topics"
	OpSubscribe     OperationKind = "subscribe"
	OpUnsubscribe   OperationKind = "unsubscribe"
	OpPublish       OperationKind = "publish"
	OpRequest       OperationKind = "request"
)

// Operation is the envelope for everything a session sends.
type Operation struct {
	Kind          OperationKind       `json:"kind"`
	RequestID     string              `json:"request_id,omitempty"`
	CorrelationID CorrelationID       `json:"cid"`
	Session       string              `json:"session,omitempty"`
	Client        string              `json:"client,omitempty"`
	Service       string              `json:"service,omitempty"`
	Operation     Name                `json:"operation,omitempty"`
	Identity      string              `json:"identity,omitempty"`
	AuthOptions   string              `json:"auth_options,omitempty"`
	Manual        *ManualCredentials  `json:"manual,omitempty"`
	Topics        []TopicEntry        `json:"topics,omitempty"`
	Subscriptions []SubscriptionEntry `json:"subscriptions,omitempty"`
	Event         *Event              `json:"event,omitempty"`
	Payload       json.RawMessage     `json:"payload,omitempty"`
}

// ManualCredentials identify the user when a token is generated in manual mode.
type ManualCredentials struct {
	User    string `json:"user"`
	Address string `json:"address"`
}

// TopicEntry is a single topic in a create or delete operation.
type TopicEntry struct {
	Topic         string        `json:"topic"`
	CorrelationID CorrelationID `json:"cid"`
	Ref           string        `json:"ref,omitempty"`
}

// SubscriptionEntry is a single subscription in a subscribe or unsubscribe operation.
type SubscriptionEntry struct {
	Topic         string        `json:"topic"`
	Fields        []string      `json:"fields,omitempty"`
	Options       []string      `json:"options,omitempty"`
	CorrelationID CorrelationID `json:"cid"`
}

// EncodeOperation serializes an operation for the wire.
func EncodeOperation(op Operation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s operation: %w", op.Kind, err)
	}
	return data, nil
}

// DecodeOperation is the inverse of EncodeOperation.
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("failed to decode operation: %w", err)
	}
	if op.Kind == "" {
		return Operation{}, fmt.Errorf("missing required field 'kind'")
	}
	return op, nil
}
