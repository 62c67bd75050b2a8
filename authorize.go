package blip

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/events"
)

var _ auth.Session = (*Session)(nil)

// GenerateToken asks the server for an authorization token. When queue is
// not nil the token status event is delivered to it instead of NextEvent.
// An unset cid is replaced by a session-assigned one.
func (s *Session) GenerateToken(ctx context.Context, cid events.CorrelationID, queue *events.Queue) error {
	return s.generateToken(ctx, cid, nil, queue)
}

// GenerateManualToken generates a token for an explicit user and address.
func (s *Session) GenerateManualToken(ctx context.Context, cid events.CorrelationID, user, address string, queue *events.Queue) error {
	if user == "" || address == "" {
		return errors.New("manual token needs a user and an address")
	}
	return s.generateToken(ctx, cid, &events.ManualCredentials{User: user, Address: address}, queue)
}

func (s *Session) generateToken(ctx context.Context, cid events.CorrelationID, manual *events.ManualCredentials, queue *events.Queue) error {
	cid = s.correlationID(cid)
	if queue != nil {
		s.queues.Add(cid.Key(), queue)
	}
	err := s.send(ctx, events.Operation{
		Kind:          events.OpGenerateToken,
		Service:       events.ServiceAuth,
		CorrelationID: cid,
		AuthOptions:   s.authOptions.String(),
		Manual:        manual,
	})
	if err != nil && queue != nil {
		s.queues.Del(cid.Key())
	}
	return err
}

// SendAuthorizationRequest sends req for identity. The answer carries cid
// and, on success, marks the identity authorized.
func (s *Session) SendAuthorizationRequest(ctx context.Context, req *Request, identity *Identity, cid events.CorrelationID) (events.CorrelationID, error) {
	if identity == nil {
		return events.CorrelationID{}, errors.New("identity is required")
	}
	if err := s.owns(identity); err != nil {
		return events.CorrelationID{}, err
	}
	if err := req.Err(); err != nil {
		return events.CorrelationID{}, err
	}
	cid = s.correlationID(cid)
	s.identities.Add(cid.Key(), identity)

	err := s.send(ctx, events.Operation{
		Kind:          events.OpAuthorize,
		Service:       req.Service(),
		Operation:     req.Operation(),
		Identity:      identity.id,
		CorrelationID: cid,
		Payload:       []byte(req.String()),
	})
	if err != nil {
		s.identities.Del(cid.Key())
		return events.CorrelationID{}, err
	}
	return cid, nil
}

// RequestAuthorization opens the authorization service when needed and sends
// an authorization request carrying token.
func (s *Session) RequestAuthorization(ctx context.Context, token string, identity auth.Identity, cid events.CorrelationID) error {
	id, ok := identity.(*Identity)
	if !ok {
		return ErrForeignIdentity
	}
	if !cid.IsSet() {
		return errors.New("authorization needs a correlation id")
	}
	if err := s.OpenService(ctx, events.ServiceAuth); err != nil {
		return err
	}
	svc, err := s.Service(events.ServiceAuth)
	if err != nil {
		return err
	}
	req := svc.CreateAuthorizationRequest().Set(events.ElementToken, token)
	if _, err := s.SendAuthorizationRequest(ctx, req, id, cid); err != nil {
		return fmt.Errorf("authorize %s: %w", id.id, err)
	}
	return nil
}
