package blip

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/casualjim/blip/events"
)

// TopicStatus is the resolution status of one entry of a TopicList.
type TopicStatus uint8

const (
	TopicNotCreated TopicStatus = iota
	TopicCreated
	TopicFailed
)

func (s TopicStatus) String() string {
	switch s {
	case TopicCreated:
		return "created"
	case TopicFailed:
		return "failed"
	default:
		return "not_created"
	}
}

// ResolveMode controls what CreateTopics does besides creating topics.
type ResolveMode uint8

const (
	CreateOnly ResolveMode = iota
	// RegisterServices registers the session as publisher of every service
	// named by the list before the topics are created.
	RegisterServices
)

// Topic is a created topic the session can publish on.
type Topic struct {
	ref     string
	name    string
	service string
	cid     events.CorrelationID
	active  atomic.Bool
	deleted atomic.Bool
}

// Ref addresses the topic in published messages.
func (t *Topic) Ref() string     { return t.ref }
func (t *Topic) Name() string    { return t.name }
func (t *Topic) Service() string { return t.service }

// CorrelationID is the id the topic was created with.
func (t *Topic) CorrelationID() events.CorrelationID { return t.cid }

// IsActive reports whether the topic currently has subscribers.
func (t *Topic) IsActive() bool  { return t.active.Load() }
func (t *Topic) IsDeleted() bool { return t.deleted.Load() }

type topicEntry struct {
	name   string
	cid    events.CorrelationID
	status TopicStatus
	msg    events.Message
	err    error
}

// TopicList is an ordered batch of topics to resolve with CreateTopics.
type TopicList struct {
	entries []topicEntry
}

func NewTopicList() *TopicList {
	return &TopicList{}
}

// Add appends a fully qualified topic such as "//viper/mktdata/ticker/IBM Equity".
func (l *TopicList) Add(name string, cid events.CorrelationID) *TopicList {
	l.entries = append(l.entries, topicEntry{name: name, cid: cid})
	return l
}

func (l *TopicList) Len() int {
	return len(l.entries)
}

func (l *TopicList) NameAt(i int) string {
	return l.entries[i].name
}

func (l *TopicList) CorrelationIDAt(i int) events.CorrelationID {
	return l.entries[i].cid
}

func (l *TopicList) StatusAt(i int) TopicStatus {
	return l.entries[i].status
}

// ErrAt explains why an entry was not created.
func (l *TopicList) ErrAt(i int) error {
	return l.entries[i].err
}

// MessageAt returns the creation message of a created entry.
func (l *TopicList) MessageAt(i int) (events.Message, bool) {
	e := l.entries[i]
	return e.msg, e.status == TopicCreated
}

// Created yields the index and creation message of every created entry in
// the order they were added.
func (l *TopicList) Created() iter.Seq2[int, events.Message] {
	return func(yield func(int, events.Message) bool) {
		for i, e := range l.entries {
			if e.status != TopicCreated {
				continue
			}
			if !yield(i, e.msg) {
				return
			}
		}
	}
}

// CreateTopics resolves every entry of list. On return each entry has a
// status, and created entries have a message to pass to Topic. Failures of
// single topics are reported per entry; the error is for the batch as a whole.
func (s *Session) CreateTopics(ctx context.Context, list *TopicList, mode ResolveMode, identity *Identity) error {
	if err := s.owns(identity); err != nil {
		return err
	}

	byCID := make(map[events.CorrelationID][]int, list.Len())
	var (
		entries  []events.TopicEntry
		services []string
	)
	for i := range list.entries {
		e := &list.entries[i]
		e.status, e.msg, e.err = TopicNotCreated, events.Message{}, nil

		service, _, ok := events.SplitTopic(e.name)
		if !ok {
			e.status = TopicFailed
			e.err = fmt.Errorf("%w: %q", ErrInvalidTopic, e.name)
			continue
		}
		e.cid = s.correlationID(e.cid)
		byCID[e.cid] = append(byCID[e.cid], i)
		entries = append(entries, events.TopicEntry{Topic: e.name, CorrelationID: e.cid})
		if !slices.Contains(services, service) {
			services = append(services, service)
		}
	}

	if mode == RegisterServices {
		failed := make(map[string]error)
		for _, svc := range services {
			if err := s.RegisterService(ctx, svc, identity); err != nil {
				if !errors.Is(err, ErrServiceFailure) {
					return err
				}
				failed[svc] = err
			}
		}
		if len(failed) > 0 {
			entries = entries[:0]
			for i := range list.entries {
				e := &list.entries[i]
				if e.status == TopicFailed {
					continue
				}
				service, _, _ := events.SplitTopic(e.name)
				if err, ok := failed[service]; ok {
					e.status, e.err = TopicFailed, err
					continue
				}
				entries = append(entries, events.TopicEntry{Topic: e.name, CorrelationID: e.cid})
			}
		}
	}
	if len(entries) == 0 {
		return nil
	}

	ev, err := s.call(ctx, events.Operation{
		Kind:     events.OpCreateTopics,
		Identity: identityID(identity),
		Topics:   entries,
	})
	if err != nil {
		return err
	}

	for _, msg := range ev.Messages {
		idx, ok := byCID[msg.CorrelationID]
		if !ok {
			continue
		}
		i := slices.IndexFunc(idx, func(i int) bool { return list.entries[i].status == TopicNotCreated })
		if i < 0 {
			continue
		}
		e := &list.entries[idx[i]]
		switch msg.Type {
		case events.TopicCreated:
			e.status, e.msg = TopicCreated, msg
			service, _, _ := events.SplitTopic(e.name)
			s.topics.Add(msg.Topic, &Topic{ref: msg.Topic, name: e.name, service: service, cid: e.cid})
		case events.TopicCreateFailure:
			e.status, e.err = TopicFailed, fmt.Errorf("create topic %s: %w", e.name, msg.Reason())
		}
	}
	return nil
}

// Topic returns the topic a message refers to, typically a TopicCreated
// message from a TopicList or a topic status event.
func (s *Session) Topic(msg events.Message) (*Topic, error) {
	t, ok := s.topics.Get(msg.Topic)
	if !ok {
		return nil, fmt.Errorf("%w: unknown topic %q", ErrTopicNotActive, msg.Topic)
	}
	return t, nil
}

// DeleteTopics removes topics. Publishing on them fails from now on.
func (s *Session) DeleteTopics(ctx context.Context, topics ...*Topic) error {
	if len(topics) == 0 {
		return nil
	}
	entries := make([]events.TopicEntry, 0, len(topics))
	for _, t := range topics {
		t.deleted.Store(true)
		t.active.Store(false)
		entries = append(entries, events.TopicEntry{Topic: t.name, Ref: t.ref, CorrelationID: t.cid})
	}
	return s.send(ctx, events.Operation{Kind: events.OpDeleteTopics, Topics: entries})
}

// Publish sends ev, built with Service.CreatePublishEvent. Every message
// must address a topic of this session that was not deleted.
func (s *Session) Publish(ctx context.Context, ev events.Event) error {
	for _, msg := range ev.Messages {
		t, ok := s.topics.Get(msg.Topic)
		if !ok || t.IsDeleted() {
			return fmt.Errorf("%w: %q", ErrTopicNotActive, msg.Topic)
		}
	}
	return s.send(ctx, events.Operation{Kind: events.OpPublish, Event: &ev})
}
