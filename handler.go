package blip

import (
	"context"

	"github.com/casualjim/blip/events"
)

// Handler receives every event of a push-mode session. Calls are made from a
// single goroutine in the order events were produced.
type Handler interface {
	HandleEvent(ctx context.Context, ev events.Event, s *Session)
}

type HandlerFunc func(ctx context.Context, ev events.Event, s *Session)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev events.Event, s *Session) {
	f(ctx, ev, s)
}
