// Package telemetry exposes prometheus collectors for the sync core. The
// diagnostics listener serves them on /metrics; engines record through the
// package-level helpers so callers never touch collector types directly.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_submitted_total",
		Help: "Messages optimistically submitted.",
	})
	acknowledged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_acknowledged_total",
		Help: "Messages matched to an authoritative record.",
	})
	failed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_failed_total",
		Help: "Messages whose transmission failed.",
	})
	denied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_denied_total",
		Help: "Messages removed by content validation.",
	})
	reconcileRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_reconcile_runs_total",
		Help: "Reconciliation passes over authoritative snapshots.",
	})
	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parley_reconcile_duration_seconds",
		Help:    "Wall time of a reconciliation pass.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_pending_messages",
		Help: "Optimistic messages not yet reconciled.",
	})
	oldestPendingAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_oldest_pending_age_seconds",
		Help: "Age of the oldest unreconciled optimistic message. Stays visible instead of forcing a timeout failure.",
	})
	typingSignals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_typing_signals_total",
		Help: "Typing signals emitted to the presence sink.",
	}, []string{"state"})
	provisioning = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_session_provisioning_total",
		Help: "Backend session provisioning attempts.",
	}, []string{"result"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		submitted, acknowledged, failed, denied,
		reconcileRuns, reconcileDuration,
		pendingGauge, oldestPendingAge,
		typingSignals, provisioning,
	)
}

// Handler returns the /metrics handler for the diagnostics listener.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func MessageSubmitted()    { submitted.Inc() }
func MessageAcknowledged() { acknowledged.Inc() }
func MessageFailed()       { failed.Inc() }
func MessageDenied()       { denied.Inc() }

// ReconcileRun records one reconciliation pass and its duration in seconds.
func ReconcileRun(seconds float64) {
	reconcileRuns.Inc()
	reconcileDuration.Observe(seconds)
}

// PendingState publishes the pending-set size and the age of its oldest
// entry, keeping stuck sends observable without per-message timeouts.
func PendingState(count int, oldestAgeSeconds float64) {
	pendingGauge.Set(float64(count))
	oldestPendingAge.Set(oldestAgeSeconds)
}

func TypingSignal(on bool) {
	if on {
		typingSignals.WithLabelValues("on").Inc()
	} else {
		typingSignals.WithLabelValues("off").Inc()
	}
}

func ProvisioningResult(result string) { provisioning.WithLabelValues(result).Inc() }
