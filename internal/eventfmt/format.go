// Package eventfmt prints the event stream of a session for people.
package eventfmt

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/casualjim/blip/events"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// Console is an events.Hook writing one line per message.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	pretty *pp.PrettyPrinter
}

var _ events.Hook = (*Console)(nil)

// NewConsole writes to w. With pretty set, payloads are dumped as nested
// values under the message line instead of inline JSON.
func NewConsole(w io.Writer, pretty bool) *Console {
	c := &Console{w: w}
	if pretty {
		c.pretty = pp.New()
		c.pretty.SetOutput(w)
		c.pretty.SetColoringEnabled(!color.NoColor)
	}
	return c
}

func (c *Console) print(category string, paint func(string, ...any) string, msg events.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Time(msg.Timestamp)
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(c.w, "%s %s %s", color.HiBlackString(ts.Format(time.StampMilli)), paint("%-19s", category), paint("%s", msg.Type))
	if msg.CorrelationID.IsSet() {
		fmt.Fprintf(c.w, " cid=%s", msg.CorrelationID)
	}
	if msg.Topic != "" {
		fmt.Fprintf(c.w, " %s", color.BlueString(msg.Topic))
	}
	if c.pretty != nil && msg.Payload.Exists() {
		fmt.Fprintln(c.w)
		c.pretty.Println(msg.Payload.Value())
		return
	}
	if msg.Payload.Exists() {
		fmt.Fprintf(c.w, " %s", msg.Raw())
	}
	fmt.Fprintln(c.w)
}

func status(msg events.Message) func(string, ...any) string {
	if !msg.Reason().IsZero() {
		return color.RedString
	}
	return color.CyanString
}

func (c *Console) OnSessionStatus(_ context.Context, msg events.Message) {
	paint := color.CyanString
	if msg.Type == events.SessionTerminated || msg.Type == events.SessionStartupFailure || msg.Type == events.SessionConnectionDown {
		paint = color.RedString
	}
	c.print("SESSION_STATUS", paint, msg)
}

func (c *Console) OnServiceStatus(_ context.Context, msg events.Message) {
	c.print("SERVICE_STATUS", status(msg), msg)
}

func (c *Console) OnTokenStatus(_ context.Context, msg events.Message) {
	c.print("TOKEN_STATUS", status(msg), msg)
}

func (c *Console) OnAdmin(_ context.Context, msg events.Message) {
	c.print("ADMIN", color.MagentaString, msg)
}

func (c *Console) OnSubscriptionStatus(_ context.Context, msg events.Message) {
	c.print("SUBSCRIPTION_STATUS", status(msg), msg)
}

func (c *Console) OnSubscriptionData(_ context.Context, msg events.Message) {
	c.print("SUBSCRIPTION_DATA", color.GreenString, msg)
}

func (c *Console) OnTopicStatus(_ context.Context, msg events.Message) {
	c.print("TOPIC_STATUS", color.YellowString, msg)
}

func (c *Console) OnPartialResponse(_ context.Context, msg events.Message) {
	c.print("PARTIAL_RESPONSE", color.GreenString, msg)
	c.securityErrors(msg)
}

func (c *Console) OnResponse(_ context.Context, msg events.Message) {
	c.print("RESPONSE", color.GreenString, msg)
	c.securityErrors(msg)
}

func (c *Console) OnRequestStatus(_ context.Context, msg events.Message) {
	c.print("REQUEST_STATUS", color.RedString, msg)
}

// securityErrors lists the per-security and per-field problems of a reference
// data answer below its line.
func (c *Console) securityErrors(msg events.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason, ok := events.ResponseError(msg); ok {
		fmt.Fprintf(c.w, "  %s %s\n", color.RedString("responseError"), reason)
	}
	for _, sec := range events.SecurityResults(msg) {
		if sec.Error != nil {
			fmt.Fprintf(c.w, "  %s %s: %s\n", color.RedString("securityError"), sec.Security, sec.Error)
		}
		for _, fe := range sec.FieldExceptions {
			fmt.Fprintf(c.w, "  %s %s %s: %s\n", color.YellowString("fieldException"), sec.Security, fe.FieldID, fe.Info)
		}
	}
}
