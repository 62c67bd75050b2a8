// Package metrics holds the process-wide Prometheus collectors of sessions,
// authorizers and publishers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blip_connect_attempts_total",
		Help: "Total number of endpoint dial attempts by result",
	}, []string{"result"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blip_events_total",
		Help: "Total number of events delivered to applications by event type",
	}, []string{"type"})

	AuthorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blip_authorizations_total",
		Help: "Total number of authorization handshakes by outcome",
	}, []string{"outcome"})

	PublishCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blip_publish_cycles_total",
		Help: "Total number of publish cycles by result",
	}, []string{"result"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blip_active_streams",
		Help: "Number of streams currently published on",
	})

	Restarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blip_session_restarts_total",
		Help: "Total number of automatic reconnections after a lost connection",
	})
)

// RecordConnectAttempt counts one dial attempt.
func RecordConnectAttempt(ok bool) {
	ConnectAttemptsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordEvent counts one event handed to the application.
func RecordEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAuthorization counts one finished handshake.
func RecordAuthorization(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	AuthorizationsTotal.WithLabelValues(outcome).Inc()
}

// RecordPublish counts one publish cycle.
func RecordPublish(ok bool) {
	PublishCyclesTotal.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
