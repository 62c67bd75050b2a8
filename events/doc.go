// Package events defines the event model exchanged with the market-data
// distribution service: typed events carrying ordered batches of messages,
// correlation identifiers linking requests to their answers, and the
// outbound operations a session sends.
//
// Design decisions:
//   - Events are values: an Event is an immutable batch of Messages sharing
//     one EventType and is consumed exactly once
//   - Payloads stay opaque: message elements are kept as a gjson.Result so the
//     session never needs the full field schema
//   - Tagged bodies: Message.Body decodes the well-known status messages into
//     typed variants and falls back to GenericBody for anything else
//   - Correlation ids are comparable values, never pointers; application
//     objects are referenced through arena handles
//   - Efficient JSON: custom marshaling with a "type" discriminator built with
//     sjson and read back with gjson
//
// Event hierarchy:
//   - Event: batch of messages with a category
//     ├── SessionStatus: SessionStarted, SessionTerminated, connection up/down
//     ├── TokenStatus: TokenGenerationSuccess / TokenGenerationFailure
//     ├── Response / PartialResponse / RequestStatus: request answers
//     ├── SubscriptionStatus / SubscriptionData: subscription lifecycle and ticks
//     └── TopicStatus: provider-side topic lifecycle
//
// Example usage:
//
//	switch body := msg.Body().(type) {
//	case events.TokenBody:
//	    if body.Success() {
//	        token = body.Token
//	    }
//	case events.SessionStatusBody:
//	    if body.Kind == events.SessionTerminated {
//	        return
//	    }
//	case events.GenericBody:
//	    fmt.Println(body.Elements.Get("BID").Float())
//	}
package events
