// Package instrumentation exposes the Prometheus collectors shared by the services.
package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
)

var (
	// StockEvents counts ledger appends by kind and outcome.
	StockEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmledger",
		Name:      "stock_events_total",
		Help:      "Stock event append attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	// Sales counts sale commits by outcome.
	Sales = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmledger",
		Name:      "sales_total",
		Help:      "Sale commit attempts by outcome.",
	}, []string{"outcome"})

	// MetricSnapshots counts snapshot generations by outcome.
	MetricSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmledger",
		Name:      "metric_snapshots_total",
		Help:      "Metric snapshot generations by outcome.",
	}, []string{"outcome"})

	// WebhookMessages counts inbound WhatsApp callbacks by outcome.
	WebhookMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "farmledger",
		Name:      "webhook_callbacks_total",
		Help:      "Inbound WhatsApp webhook callbacks by outcome.",
	}, []string{"outcome"})

	// StoreLatency observes store round trips by operation.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "farmledger",
		Name:      "store_operation_seconds",
		Help:      "Latency of persistence operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// Outcome labels an error for the counters above.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errs.IsValidation(err):
		return "rejected"
	case errs.IsConsistency(err):
		return "conflict"
	case errs.IsTransient(err):
		return "unavailable"
	default:
		return "error"
	}
}
