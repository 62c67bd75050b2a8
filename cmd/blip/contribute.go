package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/casualjim/blip/dispatch"
	"github.com/casualjim/blip/events"
	"github.com/casualjim/blip/internal/eventfmt"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/publish"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"
)

var (
	contribTopics  []string
	contribService string
	contribPeriod  time.Duration
)

var contributeCmd = &cobra.Command{
	Use:   "contribute",
	Short: "Create topics and publish a random walk on them",
	Example: `  blip contribute -t "ticker/IBM Equity" -t "ticker/MSFT Equity" --period 500ms
  blip contribute --service //viper/mktdata -t "ticker/AAPL Equity" -a app=pricer`,
	RunE: runContribute,
}

func init() {
	f := contributeCmd.Flags()
	f.StringArrayVarP(&contribTopics, "topic", "t", nil, "Topic below the service, repeatable")
	f.StringVar(&contribService, "service", "", "Service to create topics on (default from config, //viper/mktdata)")
	f.DurationVar(&contribPeriod, "period", 0, "Publish period (default from config, 1s)")
}

// contributorHook prints every event and keeps the scheduler informed about
// subscribers coming and going.
type contributorHook struct {
	*eventfmt.Console
	sched *publish.Scheduler
}

func (h contributorHook) OnTopicStatus(ctx context.Context, msg events.Message) {
	h.Console.OnTopicStatus(ctx, msg)
	h.sched.OnTopicStatus(ctx, msg)
}

// randomWalk moves every stream's price by up to half a percent per tick.
func randomWalk() publish.FieldSource {
	var (
		mu     sync.Mutex
		prices = make(map[string]float64)
	)
	return publish.FieldSourceFunc(func(_ context.Context, st publish.Stream, tick int64) (*orderedmap.OrderedMap[string, any], error) {
		mu.Lock()
		last, ok := prices[st.ID]
		if !ok {
			last = 50 + rand.Float64()*150
		}
		last *= 1 + (rand.Float64()-0.5)/100
		prices[st.ID] = last
		mu.Unlock()

		fields := orderedmap.New[string, any]()
		fields.Set("LAST_PRICE", round(last))
		fields.Set("BID", round(last*0.9995))
		fields.Set("ASK", round(last*1.0005))
		fields.Set("VOLUME", tick*100)
		return fields, nil
	})
}

func round(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

func runContribute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if len(contribTopics) == 0 {
		return errors.New("at least one --topic is required")
	}
	service := settings.Publish.Service
	if contribService != "" {
		service = contribService
	}
	period := settings.Publish.Period.Duration()
	if contribPeriod > 0 {
		period = contribPeriod
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

	sched, err := publish.New(sess, service, randomWalk(),
		publish.WithPeriod(period),
		publish.WithOnPublishError(func(err error) {
			slog.Warn("publish failed", slogx.Error(err))
		}),
	)
	if err != nil {
		return err
	}
	failed, err := sched.Resolve(ctx, identity, contribTopics...)
	if err != nil {
		return err
	}
	for id, reason := range failed {
		slog.Warn("topic not created", slog.String("topic", id), slogx.Error(reason))
	}
	if sched.Active() == 0 {
		return errors.New("no topic could be created")
	}

	loop, err := dispatch.New(contributorHook{Console: console, sched: sched})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, sess)
	})
	g.Go(func() error {
		defer stop(gctx, sess)
		return sched.Run(gctx)
	})
	return ignoreInterrupt(g.Wait())
}
