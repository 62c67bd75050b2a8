package events

import (
	"context"
	"log/slog"
	"slices"

	"github.com/casualjim/blip/pkg/slogx"
)

// Hook receives every classified message of the event stream.
// This interface is deliberately designed without a base "no-op" implementation so
// consumers make an explicit decision for each event category.
//
// Implementation guidelines:
//   - Implement all methods explicitly, even if some categories don't require handling
//   - Methods are called from a single goroutine, in stream order
//   - Be prepared for new methods to be added as the system evolves
type Hook interface {
	OnSessionStatus(context.Context, Message)

	OnServiceStatus(context.Context, Message)

	OnTokenStatus(context.Context, Message)

	OnAdmin(context.Context, Message)

	OnSubscriptionStatus(context.Context, Message)

	OnSubscriptionData(context.Context, Message)

	OnTopicStatus(context.Context, Message)

	OnPartialResponse(context.Context, Message)

	OnResponse(context.Context, Message)

	OnRequestStatus(context.Context, Message)
}

// Route sends every message of ev to the hook method for its category.
// It reports false for events of an unknown type.
func Route(ctx context.Context, hook Hook, ev Event) bool {
	var fn func(context.Context, Message)
	switch ev.Type {
	case SessionStatus:
		fn = hook.OnSessionStatus
	case ServiceStatus:
		fn = hook.OnServiceStatus
	case TokenStatus:
		fn = hook.OnTokenStatus
	case Admin:
		fn = hook.OnAdmin
	case SubscriptionStatus:
		fn = hook.OnSubscriptionStatus
	case SubscriptionData:
		fn = hook.OnSubscriptionData
	case TopicStatus:
		fn = hook.OnTopicStatus
	case PartialResponse:
		fn = hook.OnPartialResponse
	case Response:
		fn = hook.OnResponse
	case RequestStatus:
		fn = hook.OnRequestStatus
	default:
		return false
	}
	for _, msg := range ev.Messages {
		fn(ctx, msg)
	}
	return true
}

// LoggingHook logs every message through the default slog logger.
func LoggingHook() Hook {
	return &loggingHook{}
}

type loggingHook struct{}

func logMessage(ctx context.Context, level slog.Level, category string, msg Message) {
	attrs := []slog.Attr{
		slog.String("category", category),
		slogx.Stringer("cid", msg.CorrelationID),
	}
	if msg.Topic != "" {
		attrs = append(attrs, slog.String("topic", msg.Topic))
	}
	if msg.Service != "" {
		attrs = append(attrs, slog.String("service", msg.Service))
	}
	if msg.Payload.Exists() {
		attrs = append(attrs, slog.String("payload", msg.Payload.Raw))
	}
	slog.LogAttrs(ctx, level, string(msg.Type), attrs...)
}

func (loggingHook) OnSessionStatus(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	if b, ok := msg.Body().(SessionStatusBody); ok && b.Terminal() {
		level = slog.LevelWarn
	}
	logMessage(ctx, level, "session", msg)
}

func (loggingHook) OnServiceStatus(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	if b, ok := msg.Body().(ServiceStatusBody); ok && b.Failed() {
		level = slog.LevelWarn
	}
	logMessage(ctx, level, "service", msg)
}

func (loggingHook) OnTokenStatus(ctx context.Context, msg Message) {
	// tokens are credentials; never log the payload
	msg.Payload = msg.Payload.Get(ElementReason)
	logMessage(ctx, slog.LevelInfo, "token", msg)
}

func (loggingHook) OnAdmin(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelInfo, "admin", msg)
}

func (loggingHook) OnSubscriptionStatus(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelInfo, "subscription", msg)
}

func (loggingHook) OnSubscriptionData(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelDebug, "data", msg)
}

func (loggingHook) OnTopicStatus(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelInfo, "topic", msg)
}

func (loggingHook) OnPartialResponse(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelDebug, "partial_response", msg)
}

func (loggingHook) OnResponse(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelInfo, "response", msg)
}

func (loggingHook) OnRequestStatus(ctx context.Context, msg Message) {
	logMessage(ctx, slog.LevelWarn, "request_status", msg)
}

func NewCompositeHook(hooks ...Hook) Hook {
	return CompositeHook(hooks)
}

// CompositeHook allows combining multiple hooks into a single hook implementation.
type CompositeHook []Hook

func (c CompositeHook) OnSessionStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnSessionStatus(ctx, msg)
	}
}

func (c CompositeHook) OnServiceStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnServiceStatus(ctx, msg)
	}
}

func (c CompositeHook) OnTokenStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnTokenStatus(ctx, msg)
	}
}

func (c CompositeHook) OnAdmin(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnAdmin(ctx, msg)
	}
}

func (c CompositeHook) OnSubscriptionStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnSubscriptionStatus(ctx, msg)
	}
}

func (c CompositeHook) OnSubscriptionData(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnSubscriptionData(ctx, msg)
	}
}

func (c CompositeHook) OnTopicStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnTopicStatus(ctx, msg)
	}
}

func (c CompositeHook) OnPartialResponse(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnPartialResponse(ctx, msg)
	}
}

func (c CompositeHook) OnResponse(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnResponse(ctx, msg)
	}
}

func (c CompositeHook) OnRequestStatus(ctx context.Context, msg Message) {
	for h := range slices.Values(c) {
		h.OnRequestStatus(ctx, msg)
	}
}
