package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/metrics"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/fogfish/opts"
)

// DefaultTimeout bounds the whole handshake, token included.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTokenFailure is returned when the token could not be obtained.
	ErrTokenFailure = errors.New("token generation failed")
	// ErrAuthorizationFailure is returned when the authorization was refused.
	ErrAuthorizationFailure = errors.New("authorization failed")
	// ErrTimedOut is returned when no answer arrived before the deadline.
	ErrTimedOut = errors.New("authorization timed out")
	// ErrTerminated is returned when the session ended during the handshake.
	ErrTerminated = errors.New("session terminated during authorization")
)

// Outcome is the result of an authorization handshake.
type Outcome uint8

const (
	OutcomeFailed Outcome = iota
	OutcomeAuthorized
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Authorized collapses the outcome to a boolean.
func (o Outcome) Authorized() bool {
	return o == OutcomeAuthorized
}

// Identity is the session-scoped identity being authorized.
type Identity interface {
	ID() string
}

// Session is the part of a session the authorizer drives.
type Session interface {
	GenerateToken(ctx context.Context, cid events.CorrelationID, queue *events.Queue) error
	GenerateManualToken(ctx context.Context, cid events.CorrelationID, user, address string, queue *events.Queue) error
	RequestAuthorization(ctx context.Context, token string, identity Identity, cid events.CorrelationID) error
	NextEvent(ctx context.Context) (events.Event, error)
}

// Authorizer runs the token exchange: obtain a token on a dedicated queue,
// send an authorization request carrying it, and wait for the answer.
//
// Without a registry the authorizer pulls events from the session itself and
// hands the ones it does not consume to the pass-through callback. With a
// registry the session's event handler is expected to feed Registry.Observe
// and the authorizer only waits.
type Authorizer struct {
	session     Session
	registry    *Registry
	timeout     time.Duration
	manual      *events.ManualCredentials
	passThrough func(context.Context, events.Event)
	logger      *slog.Logger
}

// Option configures an Authorizer.
type Option = opts.Option[Authorizer]

var (
	// WithTimeout sets the deadline of the whole handshake.
	WithTimeout = opts.ForName[Authorizer, time.Duration]("timeout")
	// WithRegistry selects the push shape: wait on the registry instead of pulling events.
	WithRegistry = opts.ForName[Authorizer, *Registry]("registry")
	WithLogger   = opts.ForName[Authorizer, *slog.Logger]("logger")
)

// WithManual generates the token for an explicit user and address.
func WithManual(user, address string) opts.Option[Authorizer] {
	return opts.Type[Authorizer](func(a *Authorizer) error {
		if user == "" || address == "" {
			return fmt.Errorf("%w: manual authorization needs a user and an address", ErrInvalidOptions)
		}
		a.manual = &events.ManualCredentials{User: user, Address: address}
		return nil
	})
}

// WithOptions configures manual credentials from parsed options.
func WithOptions(o Options) opts.Option[Authorizer] {
	return opts.Type[Authorizer](func(a *Authorizer) error {
		if o.Mode != ModeManual {
			return nil
		}
		if o.User == "" || o.Address == "" {
			return fmt.Errorf("%w: manual authorization needs a user and an address", ErrInvalidOptions)
		}
		a.manual = &events.ManualCredentials{User: o.User, Address: o.Address}
		return nil
	})
}

// WithPassThrough receives the events pulled while waiting that do not answer the handshake.
func WithPassThrough(fn func(context.Context, events.Event)) opts.Option[Authorizer] {
	return opts.Type[Authorizer](func(a *Authorizer) error {
		a.passThrough = fn
		return nil
	})
}

func NewAuthorizer(session Session, options ...opts.Option[Authorizer]) (*Authorizer, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	a := &Authorizer{
		session: session,
		timeout: DefaultTimeout,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	if a.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", a.timeout)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Authorize runs the handshake for identity under cid. Failures are folded
// into the outcome; the error explains a non-authorized outcome.
func (a *Authorizer) Authorize(ctx context.Context, identity Identity, cid events.CorrelationID) (result Outcome, err error) {
	defer func() { metrics.RecordAuthorization(result.String()) }()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log := a.logger.With(slogx.Stringer("cid", cid))

	if a.registry != nil {
		if err := a.registry.Register(cid); err != nil {
			return OutcomeFailed, err
		}
	}

	token, err := a.token(ctx)
	if err != nil {
		a.settleFailed(cid)
		log.WarnContext(ctx, "failed to get token", slogx.Error(err))
		return outcome(err), err
	}

	if err := a.session.RequestAuthorization(ctx, token, identity, cid); err != nil {
		a.settleFailed(cid)
		log.WarnContext(ctx, "failed to send authorization request", slogx.Error(err))
		return outcome(err), err
	}

	if a.registry != nil {
		result, err = a.waitRegistry(ctx, cid)
	} else {
		result, err = a.pull(ctx, cid)
	}
	if err != nil {
		log.WarnContext(ctx, "authorization did not succeed", slog.String("outcome", result.String()), slogx.Error(err))
		return result, err
	}
	log.InfoContext(ctx, "authorized", slog.String("identity", identity.ID()))
	return result, nil
}

func (a *Authorizer) token(ctx context.Context) (string, error) {
	queue := events.NewQueue()
	defer queue.Close()

	var err error
	if a.manual != nil {
		err = a.session.GenerateManualToken(ctx, events.CorrelationID{}, a.manual.User, a.manual.Address, queue)
	} else {
		err = a.session.GenerateToken(ctx, events.CorrelationID{}, queue)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenFailure, err)
	}

	ev, err := queue.NextEvent(ctx)
	if err != nil {
		if errors.Is(err, events.ErrQueueClosed) {
			return "", ErrTerminated
		}
		return "", err
	}
	if ev.Type != events.TokenStatus && ev.Type != events.RequestStatus {
		return "", fmt.Errorf("%w: unexpected %s event", ErrTokenFailure, ev.Type)
	}

	for _, msg := range ev.Messages {
		body, ok := msg.Body().(events.TokenBody)
		if !ok {
			continue
		}
		if body.Kind == events.TokenGenerationFailure {
			return "", fmt.Errorf("%w: %w", ErrTokenFailure, body.Reason)
		}
		if body.Success() {
			return body.Token, nil
		}
	}
	return "", fmt.Errorf("%w: no token in %s", ErrTokenFailure, ev)
}

func (a *Authorizer) waitRegistry(ctx context.Context, cid events.CorrelationID) (Outcome, error) {
	status, err := a.registry.Wait(ctx, cid)
	if err != nil {
		return outcome(err), err
	}
	if status == Authorized {
		return OutcomeAuthorized, nil
	}
	return OutcomeFailed, ErrAuthorizationFailure
}

func (a *Authorizer) pull(ctx context.Context, cid events.CorrelationID) (Outcome, error) {
	for {
		ev, err := a.session.NextEvent(ctx)
		if err != nil {
			return outcome(err), err
		}

		switch ev.Type {
		case events.Response, events.PartialResponse, events.RequestStatus:
			for _, msg := range ev.Messages {
				if msg.CorrelationID != cid {
					continue
				}
				if msg.Type == events.AuthorizationSuccess {
					return OutcomeAuthorized, nil
				}
				return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrAuthorizationFailure, msg.Type, msg.Reason())
			}
		case events.SessionStatus:
			if ev.Has(events.SessionTerminated) {
				a.forward(ctx, ev)
				return OutcomeFailed, ErrTerminated
			}
		}
		a.forward(ctx, ev)
	}
}

func (a *Authorizer) forward(ctx context.Context, ev events.Event) {
	if a.passThrough != nil {
		a.passThrough(ctx, ev)
	}
}

func (a *Authorizer) settleFailed(cid events.CorrelationID) {
	if a.registry != nil {
		a.registry.Set(cid, Failed)
	}
}

func outcome(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimedOut) {
		return OutcomeTimedOut
	}
	return OutcomeFailed
}
