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
	subTopics    []string
	subFields    []string
	subOptions   []string
	subMaxEvents int64
	subService   string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe to topics and print the data",
	Example: `  blip subscribe -t "IBM US Equity" -t "/ticker/MSFT US Equity" -f LAST_PRICE -f BID
  blip subscribe -t "//viper/mktdata/ticker/IBM Equity" --max-events 10`,
	RunE: runSubscribe,
}

func init() {
	f := subscribeCmd.Flags()
	f.StringArrayVarP(&subTopics, "topic", "t", nil, "Topic to subscribe to, repeatable")
	f.StringSliceVarP(&subFields, "field", "f", []string{"LAST_PRICE", "BID", "ASK"}, "Fields to subscribe to")
	f.StringSliceVarP(&subOptions, "option", "o", nil, "Subscription options such as interval=2.0")
	f.Int64Var(&subMaxEvents, "max-events", 0, "Stop after this many data events; 0 runs until interrupted")
	f.StringVar(&subService, "service", events.ServiceMktData, "Service of topics given without one")
}

func runSubscribe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if len(subTopics) == 0 {
		return errors.New("at least one --topic is required")
	}

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

	list := blip.NewSubscriptionList()
	for i, topic := range subTopics {
		list.Add(qualify(subService, topic), subFields, subOptions, events.IntID(uint64(i+1)))
	}
	if err := sess.Subscribe(ctx, list, identity); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	loop, err := dispatch.New(console, dispatch.WithMaxEvents(subMaxEvents))
	if err != nil {
		return err
	}
	if err := loop.Run(ctx, sess); err != nil {
		return ignoreInterrupt(err)
	}
	if errors.Is(loop.Err(), dispatch.ErrTerminated) {
		return fmt.Errorf("session ended: %s", loop.Last().Type)
	}
	return nil
}

// qualify leaves full topics alone and prefixes the service to the rest. A
// bare security gets the ticker path.
func qualify(service, topic string) string {
	if _, _, ok := events.SplitTopic(topic); ok {
		return topic
	}
	if len(topic) > 0 && topic[0] != '/' {
		topic = "/ticker/" + topic
	}
	return events.QualifyTopic(service, topic)
}
