package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/pkg/uuidx"
	"github.com/casualjim/blip/transport"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultServices are the services every simulator knows.
var DefaultServices = []string{
	events.ServiceAuth,
	events.ServiceMktData,
	events.ServiceRefData,
	events.ServiceMpfbAPI,
	events.ServiceViper,
}

type Simulator struct {
	services      []string
	failTokens    bool
	failAuth      bool
	referenceData ReferenceData
	logger        *slog.Logger

	peers  *haxmap.Map[string, transport.Peer]
	tokens *haxmap.Map[string, string]

	mu     sync.Mutex
	topics map[string]*topic
	byName map[string]*topic
	subs   map[string]map[subscriberKey]subscriber
	ticks  int
}

type topic struct {
	ref   string
	name  string
	cid   events.CorrelationID
	owner transport.Peer
}

type subscriberKey struct {
	peer string
	cid  events.CorrelationID
}

type subscriber struct {
	peer   transport.Peer
	cid    events.CorrelationID
	fields []string
}

type Option = opts.Option[Simulator]

var (
	// WithTokenFailure makes every token request fail.
	WithTokenFailure = opts.ForName[Simulator, bool]("failTokens")
	// WithAuthorizationFailure refuses every authorization request.
	WithAuthorizationFailure = opts.ForName[Simulator, bool]("failAuth")
	WithLogger               = opts.ForName[Simulator, *slog.Logger]("logger")
)

// WithServices adds services to DefaultServices.
func WithServices(names ...string) opts.Option[Simulator] {
	return opts.Type[Simulator](func(s *Simulator) error {
		s.services = append(s.services, names...)
		return nil
	})
}

// WithReferenceData replaces the reference data table.
func WithReferenceData(rd ReferenceData) opts.Option[Simulator] {
	return opts.Type[Simulator](func(s *Simulator) error {
		if rd == nil {
			return fmt.Errorf("reference data is required")
		}
		s.referenceData = rd
		return nil
	})
}

func New(options ...opts.Option[Simulator]) (*Simulator, error) {
	s := &Simulator{
		services:      slices.Clone(DefaultServices),
		referenceData: DefaultReferenceData,
		peers:         haxmap.New[string, transport.Peer](),
		tokens:        haxmap.New[string, string](),
		topics:        make(map[string]*topic),
		byName:        make(map[string]*topic),
		subs:          make(map[string]map[subscriberKey]subscriber),
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Serve starts answering sessions dialing addr through broker.
func (s *Simulator) Serve(ctx context.Context, broker transport.Broker, addr string) (transport.Listener, error) {
	return broker.Serve(ctx, addr, s)
}

// Peers is the number of connected sessions.
func (s *Simulator) Peers() int {
	return int(s.peers.Len())
}

// Disconnect drops every connected session, as a server restart would.
func (s *Simulator) Disconnect() {
	var peers []transport.Peer
	s.peers.ForEach(func(_ string, p transport.Peer) bool {
		peers = append(peers, p)
		return true
	})
	for _, p := range peers {
		_ = p.Close()
	}
}

func (s *Simulator) ServeOperation(ctx context.Context, peer transport.Peer, op events.Operation) {
	log := s.logger.With(slogx.Session(peer.ID()), slog.String("op", string(op.Kind)))
	log.DebugContext(ctx, "operation", slogx.Stringer("cid", op.CorrelationID))

	var err error
	switch op.Kind {
	case events.OpConnect:
		s.peers.Set(peer.ID(), peer)
	case events.OpDisconnect:
		s.Disconnected(peer)
	case events.OpOpenService, events.OpRegister:
		err = s.openService(ctx, peer, op)
	case events.OpGenerateToken:
		err = s.generateToken(ctx, peer, op)
	case events.OpAuthorize:
		err = s.authorize(ctx, peer, op)
	case events.OpCreateTopics:
		err = s.createTopics(ctx, peer, op)
	case events.OpDeleteTopics:
		err = s.deleteTopics(ctx, peer, op)
	case events.OpSubscribe:
		err = s.subscribe(ctx, peer, op)
	case events.OpUnsubscribe:
		err = s.unsubscribe(ctx, peer, op)
	case events.OpPublish:
		err = s.publish(ctx, peer, op)
	case events.OpRequest:
		err = s.request(ctx, peer, op)
	default:
		log.WarnContext(ctx, "unsupported operation")
	}
	if err != nil {
		log.WarnContext(ctx, "failed to answer operation", slogx.Error(err))
	}
}

// Disconnected forgets everything the peer owned.
func (s *Simulator) Disconnected(peer transport.Peer) {
	s.peers.Del(peer.ID())

	s.mu.Lock()
	for ref, t := range s.topics {
		if t.owner.ID() == peer.ID() {
			delete(s.topics, ref)
			delete(s.byName, t.name)
		}
	}
	for name, subs := range s.subs {
		for key := range subs {
			if key.peer == peer.ID() {
				delete(subs, key)
			}
		}
		if len(subs) == 0 {
			delete(s.subs, name)
		}
	}
	s.mu.Unlock()
}

func (s *Simulator) knows(service string) bool {
	return slices.Contains(s.services, service)
}

func reason(category, description string) string {
	doc, _ := sjson.Set(`{"source":"simulator","errorCode":-1}`, "category", category)
	doc, _ = sjson.Set(doc, "description", description)
	return doc
}

func withReason(category, description string) string {
	doc, _ := sjson.SetRaw(`{}`, events.ElementReason, reason(category, description))
	return doc
}

func (s *Simulator) openService(ctx context.Context, peer transport.Peer, op events.Operation) error {
	ok, failed := events.ServiceOpened, events.ServiceOpenFailure
	if op.Kind == events.OpRegister {
		ok, failed = events.ServiceRegistered, events.ServiceRegisterFailure
	}

	payload, _ := sjson.Set(`{}`, "serviceName", op.Service)
	name := ok
	if !s.knows(op.Service) {
		name = failed
		payload, _ = sjson.SetRaw(payload, events.ElementReason, reason("NOT_FOUND", "service "+op.Service+" not found"))
	}
	ev := events.New(events.ServiceStatus, events.NewMessage(name, op.CorrelationID, payload).WithService(op.Service))
	ev.RequestID = op.RequestID
	return peer.Deliver(ctx, ev)
}

func (s *Simulator) generateToken(ctx context.Context, peer transport.Peer, op events.Operation) error {
	if s.failTokens {
		msg := events.NewMessage(events.TokenGenerationFailure, op.CorrelationID, withReason("NO_AUTH", "token generation refused"))
		return peer.Deliver(ctx, events.New(events.TokenStatus, msg))
	}

	token := uuidx.NewString()
	user := peer.Name()
	if op.Manual != nil {
		user = op.Manual.User + "@" + op.Manual.Address
	}
	s.tokens.Set(token, user)

	payload, _ := sjson.Set(`{}`, events.ElementToken, token)
	return peer.Deliver(ctx, events.New(events.TokenStatus, events.NewMessage(events.TokenGenerationSuccess, op.CorrelationID, payload)))
}

func (s *Simulator) authorize(ctx context.Context, peer transport.Peer, op events.Operation) error {
	token := gjson.GetBytes(op.Payload, events.ElementToken).String()

	var msg events.Message
	_, known := s.tokens.Get(token)
	switch {
	case s.failAuth:
		msg = events.NewMessage(events.AuthorizationFailure, op.CorrelationID, withReason("NO_AUTH", "authorization refused"))
	case !known:
		msg = events.NewMessage(events.AuthorizationFailure, op.CorrelationID, withReason("BAD_ARGS", "invalid token"))
	default:
		msg = events.NewMessage(events.AuthorizationSuccess, op.CorrelationID, `{}`)
	}
	return peer.Deliver(ctx, events.New(events.Response, msg.WithService(op.Service)))
}

func (s *Simulator) createTopics(ctx context.Context, peer transport.Peer, op events.Operation) error {
	var (
		msgs      []events.Message
		activated []events.Message
	)

	s.mu.Lock()
	for _, entry := range op.Topics {
		service, _, ok := events.SplitTopic(entry.Topic)
		payload, _ := sjson.Set(`{}`, events.ElementTopic, entry.Topic)
		if !ok || !s.knows(service) {
			payload, _ = sjson.SetRaw(payload, events.ElementReason, reason("BAD_ARGS", "invalid topic "+entry.Topic))
			msgs = append(msgs, events.NewMessage(events.TopicCreateFailure, entry.CorrelationID, payload))
			continue
		}
		if existing, taken := s.byName[entry.Topic]; taken && existing.owner.ID() != peer.ID() {
			payload, _ = sjson.SetRaw(payload, events.ElementReason, reason("NOT_AVAILABLE", "topic is provided by another publisher"))
			msgs = append(msgs, events.NewMessage(events.TopicCreateFailure, entry.CorrelationID, payload))
			continue
		}

		ref := entry.Ref
		if ref == "" {
			ref = uuidx.NewString()
		}
		t := &topic{ref: ref, name: entry.Topic, cid: entry.CorrelationID, owner: peer}
		s.topics[ref] = t
		s.byName[entry.Topic] = t
		msgs = append(msgs, events.NewMessage(events.TopicCreated, entry.CorrelationID, payload).WithTopic(ref).WithService(service))

		if len(s.subs[entry.Topic]) > 0 {
			activated = append(activated, topicStatus(events.TopicSubscribed, t), topicStatus(events.TopicActivated, t))
		}
	}
	s.mu.Unlock()

	ev := events.New(events.TopicStatus, msgs...)
	ev.RequestID = op.RequestID
	if err := peer.Deliver(ctx, ev); err != nil {
		return err
	}
	if len(activated) > 0 {
		return peer.Deliver(ctx, events.New(events.TopicStatus, activated...))
	}
	return nil
}

func topicStatus(name events.Name, t *topic) events.Message {
	payload, _ := sjson.Set(`{}`, events.ElementTopic, t.name)
	service, _, _ := events.SplitTopic(t.name)
	return events.NewMessage(name, t.cid, payload).WithTopic(t.ref).WithService(service)
}

func (s *Simulator) deleteTopics(ctx context.Context, peer transport.Peer, op events.Operation) error {
	var msgs []events.Message
	s.mu.Lock()
	for _, entry := range op.Topics {
		t, ok := s.topics[entry.Ref]
		if !ok || t.owner.ID() != peer.ID() {
			continue
		}
		delete(s.topics, entry.Ref)
		delete(s.byName, t.name)
		msgs = append(msgs, topicStatus(events.TopicDeleted, t).WithTopic(t.ref))
	}
	s.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}
	return peer.Deliver(ctx, events.New(events.TopicStatus, msgs...))
}

// qualify resolves a subscription string against the market data service.
func qualify(topic string) string {
	if strings.HasPrefix(topic, "//") {
		return topic
	}
	if strings.HasPrefix(topic, "/") {
		return events.ServiceMktData + topic
	}
	return events.ServiceMktData + "/ticker/" + topic
}

func (s *Simulator) subscribe(ctx context.Context, peer transport.Peer, op events.Operation) error {
	var (
		msgs     []events.Message
		owners   = make(map[string]transport.Peer)
		notified = make(map[string][]events.Message)
	)

	s.mu.Lock()
	for _, entry := range op.Subscriptions {
		name := qualify(entry.Topic)
		service, _, ok := events.SplitTopic(name)
		if !ok || !s.knows(service) {
			msgs = append(msgs, events.NewMessage(events.SubscriptionFailure, entry.CorrelationID, withReason("BAD_SEC", "unknown topic "+entry.Topic)).WithTopic(entry.Topic))
			continue
		}

		subs, ok := s.subs[name]
		if !ok {
			subs = make(map[subscriberKey]subscriber)
			s.subs[name] = subs
		}
		first := len(subs) == 0
		subs[subscriberKey{peer: peer.ID(), cid: entry.CorrelationID}] = subscriber{peer: peer, cid: entry.CorrelationID, fields: entry.Fields}
		msgs = append(msgs, events.NewMessage(events.SubscriptionStarted, entry.CorrelationID, `{}`).WithTopic(name).WithService(service))

		if t, ok := s.byName[name]; ok && first {
			owners[t.owner.ID()] = t.owner
			notified[t.owner.ID()] = append(notified[t.owner.ID()], topicStatus(events.TopicSubscribed, t), topicStatus(events.TopicActivated, t))
		}
	}
	s.mu.Unlock()

	if err := peer.Deliver(ctx, events.New(events.SubscriptionStatus, msgs...)); err != nil {
		return err
	}
	return s.notifyOwners(ctx, owners, notified)
}

func (s *Simulator) unsubscribe(ctx context.Context, peer transport.Peer, op events.Operation) error {
	var (
		msgs     []events.Message
		owners   = make(map[string]transport.Peer)
		notified = make(map[string][]events.Message)
	)

	s.mu.Lock()
	for _, entry := range op.Subscriptions {
		name := qualify(entry.Topic)
		subs := s.subs[name]
		key := subscriberKey{peer: peer.ID(), cid: entry.CorrelationID}
		if _, ok := subs[key]; !ok {
			continue
		}
		delete(subs, key)
		msgs = append(msgs, events.NewMessage(events.SubscriptionTerminated, entry.CorrelationID, withReason("CANCELED", "subscription canceled")).WithTopic(name))

		if len(subs) > 0 {
			continue
		}
		delete(s.subs, name)
		if t, ok := s.byName[name]; ok {
			owners[t.owner.ID()] = t.owner
			notified[t.owner.ID()] = append(notified[t.owner.ID()], topicStatus(events.TopicUnsubscribed, t), topicStatus(events.TopicDeactivated, t))
		}
	}
	s.mu.Unlock()

	if len(msgs) > 0 {
		if err := peer.Deliver(ctx, events.New(events.SubscriptionStatus, msgs...)); err != nil {
			return err
		}
	}
	return s.notifyOwners(ctx, owners, notified)
}

func (s *Simulator) notifyOwners(ctx context.Context, owners map[string]transport.Peer, notified map[string][]events.Message) error {
	var errs []error
	for id, owner := range owners {
		if err := owner.Deliver(ctx, events.New(events.TopicStatus, notified[id]...)); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// publish forwards every message of a published event to the subscribers of
// its topic, one SubscriptionData event per subscribing session.
func (s *Simulator) publish(ctx context.Context, peer transport.Peer, op events.Operation) error {
	if op.Event == nil {
		return fmt.Errorf("publish without event")
	}

	out := make(map[string][]events.Message)
	targets := make(map[string]transport.Peer)

	s.mu.Lock()
	for _, msg := range op.Event.Messages {
		t, ok := s.topics[msg.Topic]
		if !ok || t.owner.ID() != peer.ID() {
			continue
		}
		service, _, _ := events.SplitTopic(t.name)
		for _, sub := range s.subs[t.name] {
			fwd := events.NewMessage(msg.Type, sub.cid, msg.Raw()).WithTopic(t.name).WithService(service)
			fwd.Timestamp = msg.Timestamp
			out[sub.peer.ID()] = append(out[sub.peer.ID()], fwd)
			targets[sub.peer.ID()] = sub.peer
		}
	}
	s.mu.Unlock()

	var errs []error
	for id, msgs := range out {
		if err := targets[id].Deliver(ctx, events.New(events.SubscriptionData, msgs...)); err != nil {
			errs = append(errs, fmt.Errorf("forward to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
