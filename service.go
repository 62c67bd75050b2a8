package blip

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/casualjim/blip/events"
)

// Service is an opened service of a session.
type Service struct {
	name       string
	session    *Session
	registered atomic.Bool
}

func (s *Service) Name() string {
	return s.name
}

// CreateRequest starts a request for the named operation, for example
// events.ReferenceDataRequest on the reference data service.
func (s *Service) CreateRequest(operation events.Name) (*Request, error) {
	if operation == "" {
		return nil, errors.New("request operation is required")
	}
	return newRequest(s.name, operation), nil
}

func (s *Service) CreateAuthorizationRequest() *Request {
	return newRequest(s.name, events.AuthorizationRequest)
}

// CreatePublishEvent starts an event to be sent with Session.Publish.
func (s *Service) CreatePublishEvent() *events.Formatter {
	return events.NewFormatter(events.SubscriptionData, s.name)
}

// OpenService opens name and waits for the answer. Opening an already
// opened service is a no-op.
func (s *Session) OpenService(ctx context.Context, name string) error {
	return s.openService(ctx, events.OpOpenService, name, nil)
}

// RegisterService registers the session as a publisher of name.
func (s *Session) RegisterService(ctx context.Context, name string, identity *Identity) error {
	return s.openService(ctx, events.OpRegister, name, identity)
}

func (s *Session) openService(ctx context.Context, kind events.OperationKind, name string, identity *Identity) error {
	if name == "" {
		return fmt.Errorf("%w: empty service name", ErrUnknownService)
	}
	if err := s.owns(identity); err != nil {
		return err
	}
	if svc, ok := s.services.Get(name); ok && (kind == events.OpOpenService || svc.registered.Load()) {
		return nil
	}

	ev, err := s.call(ctx, events.Operation{
		Kind:          kind,
		Service:       name,
		Identity:      identityID(identity),
		CorrelationID: s.correlationID(events.CorrelationID{}),
	})
	if err != nil {
		return err
	}

	for _, msg := range ev.Messages {
		body, ok := msg.Body().(events.ServiceStatusBody)
		if !ok {
			continue
		}
		switch {
		case body.Failed():
			return fmt.Errorf("%w: %s %s: %w", ErrServiceFailure, kind, name, body.Reason)
		case body.Kind == events.ServiceOpened || body.Kind == events.ServiceRegistered:
			svc, _ := s.services.GetOrAdd(name, func() *Service { return &Service{name: name, session: s} })
			if body.Kind == events.ServiceRegistered {
				svc.registered.Store(true)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected answer to %s %s: %s", ErrServiceFailure, kind, name, ev)
}

// Service returns an opened service.
func (s *Session) Service(name string) (*Service, error) {
	svc, ok := s.services.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return svc, nil
}
