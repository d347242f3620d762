// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/autoreply/internal/command"
)

const namespace = "autoreply"

// Metrics owns a private registry and the collectors fed by the command
// processor, the auto-reply dispatcher, the settings store and the bot.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	autoReplies     *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	flushDuration   prometheus.Histogram
	inbound         *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by command and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution time including the store flush.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		autoReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_replies_total",
			Help:      "Scheduled auto-replies, by outcome.",
		}, []string{"outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_flushes_total",
			Help:      "Settings document flushes, by result.",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_flush_duration_seconds",
			Help:      "Time spent writing the settings document.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages, by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Commands dropped by the per-sender rate limit.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.commandDuration, m.autoReplies,
		m.flushes, m.flushDuration, m.inbound, m.rateLimited,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommand matches command.Observer. Unknown command names are
// folded into one label value.
func (m *Metrics) ObserveCommand(name, outcome string, d time.Duration) {
	if _, ok := command.Lookup(name); !ok {
		name = "unknown"
	}
	m.commands.WithLabelValues(name, outcome).Inc()
	m.commandDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveAutoReply counts one auto-reply outcome.
func (m *Metrics) ObserveAutoReply(outcome string) {
	m.autoReplies.WithLabelValues(outcome).Inc()
}

// ObserveFlush matches settings.FlushObserver.
func (m *Metrics) ObserveFlush(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(result).Inc()
	m.flushDuration.Observe(d.Seconds())
}

// ObserveInbound counts one inbound message of kind.
func (m *Metrics) ObserveInbound(kind string) {
	m.inbound.WithLabelValues(kind).Inc()
}

// ObserveRateLimited counts one dropped command.
func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

// TrackPending exports fn as the number of auto-replies in flight.
func (m *Metrics) TrackPending(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "auto_replies_pending",
		Help:      "Auto-replies waiting for their delay or being sent.",
	}, func() float64 { return float64(fn()) }))
}
