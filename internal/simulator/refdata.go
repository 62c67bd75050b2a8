package simulator

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/transport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ReferenceData looks up one field of one security. ok is false for a field
// the security does not have; a non-nil err marks the security invalid.
type ReferenceData func(security, field string) (value any, ok bool, err error)

var knownFields = map[string]bool{
	"PX_LAST":    true,
	"LAST_PRICE": true,
	"BID":        true,
	"ASK":        true,
	"VOLUME":     true,
	"OPEN":       true,
	"HIGH":       true,
	"LOW":        true,
	"NAME":       true,
	"DS002":      true,
}

// DefaultReferenceData derives stable values from the security name. A
// security needs a yellow key such as "IBM US Equity" to be valid.
func DefaultReferenceData(security, field string) (any, bool, error) {
	if !strings.Contains(strings.TrimSpace(security), " ") {
		return nil, false, fmt.Errorf("unknown/invalid security %q", security)
	}
	field = strings.ToUpper(field)
	if !knownFields[field] {
		return nil, false, nil
	}
	switch field {
	case "NAME", "DS002":
		return strings.ToUpper(strings.Fields(security)[0]), true, nil
	case "VOLUME":
		return int64(seed(security) % 1_000_000), true, nil
	default:
		return price(security, field, 0), true, nil
	}
}

func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}

func price(security, field string, tick int) float64 {
	base := float64(seed(security)%50_000)/100 + 10
	offset := float64(seed(security, field, fmt.Sprint(tick))%200)/100 - 1
	return float64(int((base+offset)*100)) / 100
}

func (s *Simulator) request(ctx context.Context, peer transport.Peer, op events.Operation) error {
	if op.Service == events.ServiceRefData {
		switch op.Operation {
		case events.ReferenceDataRequest:
			return s.referenceDataRequest(ctx, peer, op)
		case events.HistoricalDataRequest:
			return s.historicalDataRequest(ctx, peer, op)
		}
	}
	msg := events.NewMessage(events.RequestFailure, op.CorrelationID, withReason("BAD_ARGS", fmt.Sprintf("unsupported request %s on %s", op.Operation, op.Service)))
	return peer.Deliver(ctx, events.New(events.RequestStatus, msg.WithService(op.Service)))
}

// referenceDataRequest sends one PartialResponse per security but the last,
// which comes as the final Response.
func (s *Simulator) referenceDataRequest(ctx context.Context, peer transport.Peer, op events.Operation) error {
	securities := gjson.GetBytes(op.Payload, events.ElementSecurities).Array()
	fields := gjson.GetBytes(op.Payload, events.ElementFields).Array()
	if len(securities) == 0 {
		payload, _ := sjson.SetRaw(`{}`, events.ElementResponseError, reason("BAD_ARGS", "no securities requested"))
		return peer.Deliver(ctx, events.New(events.Response, events.NewMessage(events.ReferenceDataResponse, op.CorrelationID, payload).WithService(op.Service)))
	}

	for i, sec := range securities {
		entry, _ := sjson.Set(`{}`, events.ElementSecurity, sec.String())
		entry, _ = sjson.Set(entry, "sequenceNumber", i)

		var (
			data       = `{}`
			exceptions []string
		)
		for _, f := range fields {
			value, ok, err := s.referenceData(sec.String(), f.String())
			if err != nil {
				entry, _ = sjson.SetRaw(entry, events.ElementSecurityError, reason("BAD_SEC", err.Error()))
				break
			}
			if !ok {
				fe, _ := sjson.Set(`{}`, events.ElementFieldID, f.String())
				fe, _ = sjson.SetRaw(fe, events.ElementErrorInfo, reason("BAD_FLD", "field not applicable to security"))
				exceptions = append(exceptions, fe)
				continue
			}
			data, _ = sjson.Set(data, escapePath(f.String()), value)
		}
		if !gjson.Get(entry, events.ElementSecurityError).Exists() {
			entry, _ = sjson.SetRaw(entry, events.ElementFieldData, data)
		}
		entry, _ = sjson.SetRaw(entry, events.ElementFieldExceptions, "["+strings.Join(exceptions, ",")+"]")

		payload, _ := sjson.SetRaw(`{}`, events.ElementSecurityData, "["+entry+"]")
		typ := events.PartialResponse
		if i == len(securities)-1 {
			typ = events.Response
		}
		msg := events.NewMessage(events.ReferenceDataResponse, op.CorrelationID, payload).WithService(op.Service)
		if err := peer.Deliver(ctx, events.New(typ, msg)); err != nil {
			return err
		}
	}
	return nil
}

func escapePath(p string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(p)
}
