package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/transport"
	"github.com/tidwall/sjson"
)

var defaultFeedFields = []string{"LAST_PRICE", "BID", "ASK"}

// Tick publishes one round of market data to every subscription of a market
// data topic that no session provides.
func (s *Simulator) Tick(ctx context.Context) error {
	type delivery struct {
		peer transport.Peer
		msgs []events.Message
	}
	out := make(map[string]*delivery)

	s.mu.Lock()
	s.ticks++
	tick := s.ticks
	for name, subs := range s.subs {
		if _, provided := s.byName[name]; provided {
			continue
		}
		service, path, _ := events.SplitTopic(name)
		if service != events.ServiceMktData {
			continue
		}
		security := strings.TrimPrefix(path, "/ticker/")
		for _, sub := range subs {
			fields := sub.fields
			if len(fields) == 0 {
				fields = defaultFeedFields
			}
			payload := `{}`
			for _, f := range fields {
				payload, _ = sjson.Set(payload, escapePath(f), price(security, strings.ToUpper(f), tick))
			}
			d, ok := out[sub.peer.ID()]
			if !ok {
				d = &delivery{peer: sub.peer}
				out[sub.peer.ID()] = d
			}
			d.msgs = append(d.msgs, events.NewMessage(events.MarketData, sub.cid, payload).WithTopic(name).WithService(service))
		}
	}
	s.mu.Unlock()

	var errs []error
	for id, d := range out {
		if err := d.peer.Deliver(ctx, events.New(events.SubscriptionData, d.msgs...)); err != nil {
			errs = append(errs, fmt.Errorf("tick to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
