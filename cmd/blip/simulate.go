package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/config"
	"github.com/casualjim/blip/internal/simulator"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	simTick       time.Duration
	simFailTokens bool
	simFailAuth   bool
	simServices   []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a market data simulator on the configured endpoints",
	Long: `simulate answers sessions the way a market data service would: it opens
services, issues tokens, authorizes, creates topics, fans published data out
to subscribers and answers reference data requests. Subscriptions to
//blp/mktdata topics nobody contributes to get a generated price every tick.

The simulator listens through the configured transport, NATS by default.`,
	Example: `  nats-server &
  blip simulate -e localhost:4222 --tick 250ms`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.DurationVar(&simTick, "tick", time.Second, "Market data period; 0 disables the feed")
	f.BoolVar(&simFailTokens, "fail-tokens", false, "Refuse every token request")
	f.BoolVar(&simFailAuth, "fail-auth", false, "Refuse every authorization request")
	f.StringSliceVar(&simServices, "service", nil, "Additional services to know about")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if settings.Transport.Kind == config.TransportLocal {
		slog.WarnContext(ctx, "the local transport only reaches sessions of this process")
	}

	sim, err := simulator.New(
		simulator.WithTokenFailure(simFailTokens),
		simulator.WithAuthorizationFailure(simFailAuth),
		simulator.WithServices(simServices...),
	)
	if err != nil {
		return err
	}

	b := broker(settings)
	var listeners []transport.Listener
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()
	for _, addr := range settings.Endpoints {
		ep, err := blip.ParseEndpoint(addr, blip.DefaultPort)
		if err != nil {
			return err
		}
		l, err := sim.Serve(ctx, b, ep.String())
		if err != nil {
			return err
		}
		listeners = append(listeners, l)
		slog.InfoContext(ctx, "simulator listening", slogx.Endpoint(l.Addr()))
	}

	g, gctx := errgroup.WithContext(ctx)
	if simTick > 0 {
		g.Go(func() error {
			return feed(gctx, sim, simTick)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sim.Disconnect()
		return gctx.Err()
	})
	return ignoreInterrupt(g.Wait())
}

func feed(ctx context.Context, sim *simulator.Simulator, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sim.Tick(ctx); err != nil {
				slog.WarnContext(ctx, "market data tick failed", slogx.Error(err))
			}
		}
	}
}
