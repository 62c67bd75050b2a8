package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/blip/events"
)

// RequestFailedError is returned by AwaitResponse when a request ended with
// a request status instead of a response.
type RequestFailedError struct {
	CorrelationID events.CorrelationID
	Reason        events.ErrorInfo
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request %s failed: %s", e.CorrelationID, e.Reason)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Reason
}

// AwaitResponse pulls events from src until the request identified by cid
// is answered. Partial responses for cid are passed to onMessage, as is the
// final response; events that do not correlate go to other. Both callbacks
// may be nil. A terminal session status ends the wait with ErrTerminated.
func AwaitResponse(ctx context.Context, src Source, cid events.CorrelationID, onMessage func(events.Message), other func(events.Event)) error {
	for {
		ev, err := src.NextEvent(ctx)
		if err != nil {
			return err
		}

		switch ev.Type {
		case events.PartialResponse, events.Response, events.RequestStatus:
			if !ev.Correlates(cid) {
				break
			}
			for _, msg := range ev.Messages {
				if msg.CorrelationID != cid {
					continue
				}
				if ev.Type == events.RequestStatus {
					return &RequestFailedError{CorrelationID: cid, Reason: msg.Reason()}
				}
				if onMessage != nil {
					onMessage(msg)
				}
			}
			if ev.Type == events.Response {
				return nil
			}
			continue
		case events.SessionStatus:
			for _, msg := range ev.Messages {
				if body, ok := msg.Body().(events.SessionStatusBody); ok && body.Terminal() {
					if other != nil {
						other(ev)
					}
					return fmt.Errorf("%w: %s", ErrTerminated, msg.Type)
				}
			}
		}
		if other != nil {
			other(ev)
		}
	}
}

// IsRequestFailure reports whether err is a failed request.
func IsRequestFailure(err error) bool {
	var rf *RequestFailedError
	return errors.As(err, &rf)
}
