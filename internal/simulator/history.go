package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/transport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const requestDate = "20060102"

type periodicity string

const (
	daily   periodicity = "DAILY"
	weekly  periodicity = "WEEKLY"
	monthly periodicity = "MONTHLY"
)

func (p periodicity) next(t time.Time) time.Time {
	switch p {
	case weekly:
		return t.AddDate(0, 0, 7)
	case monthly:
		return t.AddDate(0, 1, 0)
	default:
		t = t.AddDate(0, 0, 1)
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}
}

// historyRange is the set of dates a historical request covers.
type historyRange struct {
	start, end time.Time
	period     periodicity
	max        int
}

func parseHistoryRange(payload []byte) (historyRange, error) {
	var r historyRange
	start := gjson.GetBytes(payload, events.ElementStartDate).String()
	if start == "" {
		return r, fmt.Errorf("%s is required", events.ElementStartDate)
	}
	var err error
	if r.start, err = time.Parse(requestDate, start); err != nil {
		return r, fmt.Errorf("invalid %s %q", events.ElementStartDate, start)
	}
	r.end = r.start
	if end := gjson.GetBytes(payload, events.ElementEndDate).String(); end != "" {
		if r.end, err = time.Parse(requestDate, end); err != nil {
			return r, fmt.Errorf("invalid %s %q", events.ElementEndDate, end)
		}
	}
	if r.end.Before(r.start) {
		return r, fmt.Errorf("%s is before %s", events.ElementEndDate, events.ElementStartDate)
	}

	r.period = daily
	if sel := gjson.GetBytes(payload, events.ElementPeriodicitySelection).String(); sel != "" {
		r.period = periodicity(strings.ToUpper(sel))
		if r.period != daily && r.period != weekly && r.period != monthly {
			return r, fmt.Errorf("unsupported %s %q", events.ElementPeriodicitySelection, sel)
		}
	}
	r.max = int(gjson.GetBytes(payload, events.ElementMaxDataPoints).Int())
	if r.max < 0 {
		return r, fmt.Errorf("%s must not be negative", events.ElementMaxDataPoints)
	}
	return r, nil
}

// dates lists the points in the range. With a limit only the most recent
// ones are kept.
func (r historyRange) dates() []time.Time {
	var out []time.Time
	t := r.start
	if r.period == daily {
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
	}
	for ; !t.After(r.end); t = r.period.next(t) {
		out = append(out, t)
	}
	if r.max > 0 && len(out) > r.max {
		out = out[len(out)-r.max:]
	}
	return out
}

// historicalDataRequest answers with one security per message. Every
// security but the last comes in a PartialResponse.
func (s *Simulator) historicalDataRequest(ctx context.Context, peer transport.Peer, op events.Operation) error {
	securities := gjson.GetBytes(op.Payload, events.ElementSecurities).Array()
	fields := gjson.GetBytes(op.Payload, events.ElementFields).Array()

	respond := func(typ events.EventType, payload string) error {
		msg := events.NewMessage(events.HistoricalDataResponse, op.CorrelationID, payload).WithService(op.Service)
		return peer.Deliver(ctx, events.New(typ, msg))
	}
	badArgs := func(description string) error {
		payload, _ := sjson.SetRaw(`{}`, events.ElementResponseError, reason("BAD_ARGS", description))
		return respond(events.Response, payload)
	}

	if len(securities) == 0 {
		return badArgs("no securities requested")
	}
	if len(fields) == 0 {
		return badArgs("no fields requested")
	}
	rng, err := parseHistoryRange(op.Payload)
	if err != nil {
		return badArgs(err.Error())
	}
	dates := rng.dates()

	for i, sec := range securities {
		entry, _ := sjson.Set(`{}`, events.ElementSecurity, sec.String())
		entry, _ = sjson.Set(entry, "sequenceNumber", i)

		var (
			exceptions []string
			valid      []string
			invalid    error
		)
		for _, f := range fields {
			_, ok, err := s.referenceData(sec.String(), f.String())
			if err != nil {
				invalid = err
				break
			}
			if !ok {
				fe, _ := sjson.Set(`{}`, events.ElementFieldID, f.String())
				fe, _ = sjson.SetRaw(fe, events.ElementErrorInfo, reason("BAD_FLD", "field not applicable to security"))
				exceptions = append(exceptions, fe)
				continue
			}
			valid = append(valid, f.String())
		}

		if invalid != nil {
			entry, _ = sjson.SetRaw(entry, events.ElementSecurityError, reason("BAD_SEC", invalid.Error()))
		} else {
			points := make([]string, 0, len(dates))
			for _, d := range dates {
				point, _ := sjson.Set(`{}`, events.ElementDate, d.Format(time.DateOnly))
				for _, f := range valid {
					point, _ = sjson.Set(point, escapePath(f), s.historicalValue(sec.String(), f, d))
				}
				points = append(points, point)
			}
			entry, _ = sjson.SetRaw(entry, events.ElementFieldData, "["+strings.Join(points, ",")+"]")
		}
		entry, _ = sjson.SetRaw(entry, events.ElementFieldExceptions, "["+strings.Join(exceptions, ",")+"]")

		payload, _ := sjson.SetRaw(`{}`, events.ElementSecurityData, entry)
		typ := events.PartialResponse
		if i == len(securities)-1 {
			typ = events.Response
		}
		if err := respond(typ, payload); err != nil {
			return err
		}
	}
	return nil
}

// historicalValue moves prices from day to day and keeps other values as
// the reference data reports them.
func (s *Simulator) historicalValue(security, field string, day time.Time) any {
	v, _, _ := s.referenceData(security, field)
	if _, ok := v.(float64); ok {
		return price(security, strings.ToUpper(field), int(day.Unix()/86400))
	}
	return v
}
