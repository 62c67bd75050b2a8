package blip

import (
	"context"
	"errors"
	"slices"

	"github.com/casualjim/blip/events"
)

// SubscriptionList is a batch of subscriptions. Entries added with an unset
// correlation id get one assigned by Subscribe.
type SubscriptionList struct {
	entries []events.SubscriptionEntry
}

func NewSubscriptionList() *SubscriptionList {
	return &SubscriptionList{}
}

// Add appends a subscription to topic. Fields and options are passed to the
// server unchanged, for example "LAST_PRICE" and "interval=2.0".
func (l *SubscriptionList) Add(topic string, fields, options []string, cid events.CorrelationID) *SubscriptionList {
	l.entries = append(l.entries, events.SubscriptionEntry{
		Topic:         topic,
		Fields:        slices.Clone(fields),
		Options:       slices.Clone(options),
		CorrelationID: cid,
	})
	return l
}

func (l *SubscriptionList) Len() int {
	return len(l.entries)
}

func (l *SubscriptionList) TopicAt(i int) string {
	return l.entries[i].Topic
}

func (l *SubscriptionList) CorrelationIDAt(i int) events.CorrelationID {
	return l.entries[i].CorrelationID
}

// Subscribe starts every subscription of list. Data arrives as
// SubscriptionData events carrying the entry's correlation id. Subscriptions
// are restored after an automatic restart.
func (s *Session) Subscribe(ctx context.Context, list *SubscriptionList, identity *Identity) error {
	if list.Len() == 0 {
		return errors.New("subscription list is empty")
	}
	if err := s.owns(identity); err != nil {
		return err
	}
	for i := range list.entries {
		e := &list.entries[i]
		if e.Topic == "" {
			return errors.New("subscription topic is required")
		}
		e.CorrelationID = s.correlationID(e.CorrelationID)
	}

	entries := slices.Clone(list.entries)
	if err := s.send(ctx, events.Operation{Kind: events.OpSubscribe, Identity: identityID(identity), Subscriptions: entries}); err != nil {
		return err
	}
	for _, e := range entries {
		s.subscriptions.Add(e.CorrelationID.Key(), e)
	}
	return nil
}

// Unsubscribe cancels the subscriptions of list.
func (s *Session) Unsubscribe(ctx context.Context, list *SubscriptionList) error {
	var entries []events.SubscriptionEntry
	for _, e := range list.entries {
		if !e.CorrelationID.IsSet() {
			continue
		}
		s.subscriptions.Del(e.CorrelationID.Key())
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil
	}
	return s.send(ctx, events.Operation{Kind: events.OpUnsubscribe, Subscriptions: entries})
}

// SendRequest sends req on behalf of identity, which may be nil. Answers
// arrive as PartialResponse events followed by one Response, or a
// RequestStatus on failure, all carrying the returned correlation id.
func (s *Session) SendRequest(ctx context.Context, req *Request, identity *Identity, cid events.CorrelationID) (events.CorrelationID, error) {
	if err := s.owns(identity); err != nil {
		return events.CorrelationID{}, err
	}
	if err := req.Err(); err != nil {
		return events.CorrelationID{}, err
	}
	if _, ok := s.services.Get(req.Service()); !ok {
		return events.CorrelationID{}, ErrUnknownService
	}
	cid = s.correlationID(cid)
	err := s.send(ctx, events.Operation{
		Kind:          events.OpRequest,
		Service:       req.Service(),
		Operation:     req.Operation(),
		Identity:      identityID(identity),
		CorrelationID: cid,
		Payload:       []byte(req.String()),
	})
	if err != nil {
		return events.CorrelationID{}, err
	}
	return cid, nil
}
