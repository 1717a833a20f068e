package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// Prometheus collectors for update handling. Exposed on /metrics by the
// HTTP server.
// ══════════════════════════════════════════════════════════════════════════════

const metricsNamespace = "amazo_bot"

// Metrics holds the bot's Prometheus collectors.
type Metrics struct {
	updates         *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	rateLimited     prometheus.Counter
	panics          prometheus.Counter
	registrations   *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses a private
// registry, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind",
		}, []string{"kind"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Handled commands and callbacks, by outcome",
		}, []string{"command", "status"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "updates_in_flight",
			Help:      "Updates currently being handled",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Updates dropped by the per-user rate limiter",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_panics_total",
			Help:      "Panics recovered in handlers",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Registration attempts, by result",
		}, []string{"result"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_messages_total",
			Help:      "Broadcast deliveries, by result",
		}, []string{"result"}),
	}
}

// ObserveUpdate counts an incoming update of the given kind.
func (m *Metrics) ObserveUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

// Begin marks an update in flight and returns the function that ends it.
func (m *Metrics) Begin(command string) func(err error) {
	start := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
		m.commands.WithLabelValues(command, commandStatus(err)).Inc()
	}
}

// RateLimited counts a dropped update.
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// Panic counts a recovered panic.
func (m *Metrics) Panic() {
	m.panics.Inc()
}

// Registration counts a registration attempt by its outcome.
func (m *Metrics) Registration(err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrAlreadyRegistered):
		result = "duplicate"
	case shared.IsValidation(err):
		result = "invalid"
	default:
		result = "error"
	}
	m.registrations.WithLabelValues(result).Inc()
}

// Broadcast adds the outcome of a broadcast run.
func (m *Metrics) Broadcast(sent, failed int) {
	m.broadcasts.WithLabelValues("sent").Add(float64(sent))
	m.broadcasts.WithLabelValues("failed").Add(float64(failed))
}

func commandStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsTransient(err):
		return "unavailable"
	case shared.IsExternalService(err):
		return "telegram_error"
	default:
		return "error"
	}
}
