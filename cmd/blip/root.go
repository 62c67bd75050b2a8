package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/config"
	"github.com/casualjim/blip/pkg/slogx"
	"github.com/casualjim/blip/transport"
	"github.com/phsym/zeroslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath  string
	logLevel    string
	metricsAddr string
	pretty      bool

	flagEndpoints  []string
	flagAuth       string
	flagTransport  string
	flagSubject    string
	flagName       string
	flagLeasedLine int
	flagTLSCreds   string
	flagTLSPass    string
	flagTLSTrust   string
)

var rootCmd = &cobra.Command{
	Use:   "blip",
	Short: "blip - market data session client",
	Long: `blip connects to a market-data service, authorizes, and then subscribes to
topics, contributes to them or runs reference data requests.

Run 'blip simulate' to serve a local simulator to point the other commands at.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.BoolVar(&pretty, "pretty", false, "Dump message payloads as nested values")

	pf.StringSliceVarP(&flagEndpoints, "endpoint", "e", nil, "Server address host[:port], repeatable; tried in order")
	pf.StringVarP(&flagAuth, "auth", "a", "", "Authentication: none | user | app=<name> | userapp=<name> | dir=<property> | manual=<app>,<ip>,<user>")
	pf.StringVar(&flagTransport, "transport", "", "Transport (local|nats)")
	pf.StringVar(&flagSubject, "subject", "", "NATS subject operations are published on")
	pf.StringVar(&flagName, "name", "", "Client name sent on connect")
	pf.IntVar(&flagLeasedLine, "leased-line", 0, "Leased line port (8194|8196)")
	pf.StringVar(&flagTLSCreds, "tls-client-credentials", "", "PKCS#12 client credentials file")
	pf.StringVar(&flagTLSPass, "tls-client-credentials-password", "", "Password of the client credentials")
	pf.StringVar(&flagTLSTrust, "tls-trust-material", "", "PEM or DER trust material file")

	rootCmd.SetVersionTemplate(fmt.Sprintf("blip %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(contributeCmd)
	rootCmd.AddCommand(refdataCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

var settings *config.File

func setup(cmd *cobra.Command, _ []string) error {
	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))

	settings, err = loadSettings(cmd)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		serveMetrics(cmd.Context(), metricsAddr)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// loadSettings reads the configuration file and applies the flags that were
// set on the command line on top of it.
func loadSettings(cmd *cobra.Command) (*config.File, error) {
	f := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		f = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		f.Endpoints = flagEndpoints
	}
	if flags.Changed("auth") {
		f.Auth.Options = flagAuth
	}
	if flags.Changed("transport") {
		f.Transport.Kind = flagTransport
	}
	if flags.Changed("subject") {
		f.Transport.Subject = flagSubject
	}
	if flags.Changed("name") {
		f.Name = flagName
	}
	if flags.Changed("leased-line") {
		f.LeasedLine = flagLeasedLine
	}
	if flags.Changed("tls-client-credentials") {
		f.TLS.ClientCredentials = flagTLSCreds
	}
	if flags.Changed("tls-client-credentials-password") {
		f.TLS.Password = flagTLSPass
	}
	if flags.Changed("tls-trust-material") {
		f.TLS.TrustMaterial = flagTLSTrust
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// local is shared by every command of the process so a simulator and a client
// started here can reach each other.
var local = transport.Local()

// broker picks the transport. The local one only reaches servers running in
// this process.
func broker(f *config.File) transport.Broker {
	if f.Transport.Kind == config.TransportLocal {
		return local
	}
	nb := transport.NATS()
	if f.Transport.Subject != "" {
		nb = nb.WithSubject(f.Transport.Subject)
	}
	return nb
}

// newSession builds a session from the settings; extra options win.
func newSession(f *config.File, b transport.Broker, extra ...blip.Option) (*blip.Session, error) {
	options, err := f.SessionOptions()
	if err != nil {
		return nil, err
	}
	options = append(options, blip.WithTransport(b))
	options = append(options, extra...)
	return blip.New(options...)
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slogx.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// stop ends sess even when ctx was cancelled by an interrupt.
func stop(ctx context.Context, sess *blip.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := sess.Stop(ctx); err != nil {
		slog.WarnContext(ctx, "failed to stop session", slogx.Error(err))
	}
}

func ignoreInterrupt(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
