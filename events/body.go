package events

import "github.com/tidwall/gjson"

// Body is the decoded form of a message. The concrete type is one of
// SessionStatusBody, ServiceStatusBody, TokenBody, AuthorizationBody,
// SubscriptionStatusBody, TopicStatusBody, RequestFailureBody or GenericBody.
type Body interface {
	messageBody()
	Name() Name
}

type SessionStatusBody struct {
	Kind   Name
	Reason ErrorInfo
}

func (SessionStatusBody) messageBody()  {}
func (b SessionStatusBody) Name() Name { return b.Kind }

// Terminal reports whether the message ends the session.
func (b SessionStatusBody) Terminal() bool {
	return b.Kind == SessionTerminated || b.Kind == SessionStartupFailure
}

type ServiceStatusBody struct {
	Kind        Name
	ServiceName string
	Reason      ErrorInfo
}

func (ServiceStatusBody) messageBody()  {}
func (b ServiceStatusBody) Name() Name { return b.Kind }

func (b ServiceStatusBody) Failed() bool {
	return b.Kind == ServiceOpenFailure || b.Kind == ServiceRegisterFailure
}

type TokenBody struct {
	Kind   Name
	Token  string
	Reason ErrorInfo
}

func (TokenBody) messageBody()  {}
func (b TokenBody) Name() Name { return b.Kind }

// Success is true only for a TokenGenerationSuccess carrying a non-empty token.
func (b TokenBody) Success() bool {
	return b.Kind == TokenGenerationSuccess && b.Token != ""
}

type AuthorizationBody struct {
	Kind   Name
	Reason ErrorInfo
}

func (AuthorizationBody) messageBody()  {}
func (b AuthorizationBody) Name() Name { return b.Kind }

func (b AuthorizationBody) Success() bool { return b.Kind == AuthorizationSuccess }

type SubscriptionStatusBody struct {
	Kind       Name
	Reason     ErrorInfo
	Exceptions []FieldException
}

func (SubscriptionStatusBody) messageBody()  {}
func (b SubscriptionStatusBody) Name() Name { return b.Kind }

type TopicStatusBody struct {
	Kind   Name
	Topic  string
	Reason ErrorInfo
}

func (TopicStatusBody) messageBody()  {}
func (b TopicStatusBody) Name() Name { return b.Kind }

// Active reports whether publishing on the topic is useful after this status.
func (b TopicStatusBody) Active() bool {
	switch b.Kind {
	case TopicActivated, TopicSubscribed, TopicResubscribed, TopicRecap:
		return true
	}
	return false
}

// Removed reports whether the topic is gone or no longer wanted.
func (b TopicStatusBody) Removed() bool {
	switch b.Kind {
	case TopicDeleted, TopicDeactivated, TopicUnsubscribed, TopicCreateFailure:
		return true
	}
	return false
}

type RequestFailureBody struct {
	Reason ErrorInfo
}

func (RequestFailureBody) messageBody() {}
func (RequestFailureBody) Name() Name   { return RequestFailure }

// GenericBody is the fallback for any message without a dedicated variant.
type GenericBody struct {
	Kind     Name
	Elements gjson.Result
}

func (GenericBody) messageBody()  {}
func (b GenericBody) Name() Name { return b.Kind }

// Body decodes the message into its tagged variant.
func (m Message) Body() Body {
	switch m.Type {
	case SessionStarted, SessionStartupFailure, SessionTerminated,
		SessionConnectionUp, SessionConnectionDown,
		SlowConsumerWarning, SlowConsumerWarningClear, DataLoss:
		return SessionStatusBody{Kind: m.Type, Reason: m.Reason()}

	case ServiceOpened, ServiceOpenFailure, ServiceRegistered, ServiceRegisterFailure,
		ServiceDeregistered, ServiceDown, ServiceUp:
		name := m.Service
		if name == "" {
			name = m.Get("serviceName").String()
		}
		return ServiceStatusBody{Kind: m.Type, ServiceName: name, Reason: m.Reason()}

	case TokenGenerationSuccess, TokenGenerationFailure:
		return TokenBody{Kind: m.Type, Token: m.Get(ElementToken).String(), Reason: m.Reason()}

	case AuthorizationSuccess, AuthorizationFailure, AuthorizationRevoked:
		return AuthorizationBody{Kind: m.Type, Reason: m.Reason()}

	case SubscriptionStarted, SubscriptionFailure, SubscriptionStreamsActivated,
		SubscriptionStreamsDeactivated, SubscriptionTerminated:
		body := SubscriptionStatusBody{Kind: m.Type, Reason: m.Reason()}
		for _, ex := range m.Get("exceptions").Array() {
			body.Exceptions = append(body.Exceptions, FieldException{
				FieldID: ex.Get(ElementFieldID).String(),
				Info:    ErrorInfoFrom(ex.Get(ElementReason)),
			})
		}
		return body

	case TopicCreated, TopicCreateFailure, TopicDeleted, TopicSubscribed, TopicResubscribed,
		TopicUnsubscribed, TopicActivated, TopicDeactivated, TopicRecap:
		topic := m.Get(ElementTopic).String()
		if topic == "" {
			topic = m.Topic
		}
		return TopicStatusBody{Kind: m.Type, Topic: topic, Reason: m.Reason()}

	case RequestFailure:
		return RequestFailureBody{Reason: m.Reason()}

	default:
		return GenericBody{Kind: m.Type, Elements: m.Payload}
	}
}
