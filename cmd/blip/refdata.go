package main

import (
	"errors"
	"fmt"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/dispatch"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/eventfmt"
	"github.com/spf13/cobra"
)

var (
	refSecurities []string
	refFields     []string
	refOverrides  map[string]string

	histSecurities  []string
	histFields      []string
	histStart       string
	histEnd         string
	histPeriodicity string
	histMaxPoints   int
)

var refdataCmd = &cobra.Command{
	Use:     "refdata",
	Short:   "Run a reference data request",
	Example: `  blip refdata -s "IBM US Equity" -s "MSFT US Equity" -f PX_LAST -f NAME`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(refSecurities) == 0 {
			return errors.New("at least one --security is required")
		}
		return runRequest(cmd, events.ReferenceDataRequest, func(req *blip.Request) {
			req.Append(events.ElementSecurities, toAny(refSecurities)...)
			req.Append(events.ElementFields, toAny(refFields)...)
			for field, value := range refOverrides {
				req.Append("overrides", map[string]any{"fieldId": field, "value": value})
			}
		})
	},
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Run a historical data request",
	Example: `  blip history -s "IBM US Equity" -f PX_LAST -f OPEN --start 20060101 --end 20061231 --periodicity MONTHLY`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(histSecurities) == 0 {
			return errors.New("at least one --security is required")
		}
		if histStart == "" {
			return errors.New("--start is required")
		}
		return runRequest(cmd, events.HistoricalDataRequest, func(req *blip.Request) {
			req.Append(events.ElementSecurities, toAny(histSecurities)...)
			req.Append(events.ElementFields, toAny(histFields)...)
			req.Set(events.ElementStartDate, histStart)
			if histEnd != "" {
				req.Set(events.ElementEndDate, histEnd)
			}
			req.Set(events.ElementPeriodicitySelection, histPeriodicity)
			if histMaxPoints > 0 {
				req.Set(events.ElementMaxDataPoints, histMaxPoints)
			}
		})
	},
}

func init() {
	f := refdataCmd.Flags()
	f.StringArrayVarP(&refSecurities, "security", "s", nil, "Security, repeatable")
	f.StringSliceVarP(&refFields, "field", "f", []string{"PX_LAST"}, "Fields to request")
	f.StringToStringVar(&refOverrides, "override", nil, "Field overrides as FIELD=value")

	h := historyCmd.Flags()
	h.StringArrayVarP(&histSecurities, "security", "s", nil, "Security, repeatable")
	h.StringSliceVarP(&histFields, "field", "f", []string{"PX_LAST"}, "Fields to request")
	h.StringVar(&histStart, "start", "", "First date as YYYYMMDD")
	h.StringVar(&histEnd, "end", "", "Last date as YYYYMMDD, defaults to the start date")
	h.StringVar(&histPeriodicity, "periodicity", "DAILY", "DAILY, WEEKLY or MONTHLY")
	h.IntVar(&histMaxPoints, "max-points", 0, "Keep only the most recent points")
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// runRequest opens the reference data service, sends one request and prints
// every answer until the final response.
func runRequest(cmd *cobra.Command, operation events.Name, build func(*blip.Request)) error {
	ctx := cmd.Context()

	sess, err := newSession(settings, broker(settings))
	if err != nil {
		return err
	}
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer stop(ctx, sess)

	console := eventfmt.NewConsole(cmd.OutOrStdout(), pretty)
	identity, err := authorize(ctx, settings, sess, console)
	if err != nil {
		return err
	}

	if err := sess.OpenService(ctx, events.ServiceRefData); err != nil {
		return err
	}
	svc, err := sess.Service(events.ServiceRefData)
	if err != nil {
		return err
	}
	req, err := svc.CreateRequest(operation)
	if err != nil {
		return err
	}
	build(req)
	if err := req.Err(); err != nil {
		return err
	}

	cid, err := sess.SendRequest(ctx, req, identity, events.CorrelationID{})
	if err != nil {
		return err
	}
	err = dispatch.AwaitResponse(ctx, sess, cid,
		func(msg events.Message) { console.OnResponse(ctx, msg) },
		func(ev events.Event) { events.Route(ctx, console, ev) },
	)
	var failed *dispatch.RequestFailedError
	if errors.As(err, &failed) {
		return fmt.Errorf("request %s failed: %s", failed.CorrelationID, failed.Reason)
	}
	return ignoreInterrupt(err)
}
