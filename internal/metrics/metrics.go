package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_received_total",
		Help: "Inbound webhook envelopes by source and type.",
	}, []string{"source", "type"})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_dropped_total",
		Help: "Envelopes dropped before dispatch by reason.",
	}, []string{"reason"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_queue_depth",
		Help: "Envelopes waiting for the dispatch worker.",
	})

	AlertsMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_alerts_total",
		Help: "Alerts produced per target by kind.",
	}, []string{"kind"})

	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_deliveries_total",
		Help: "Endpoint deliveries by endpoint type and result.",
	}, []string{"endpoint_type", "result"})

	DeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifier_delivery_duration_seconds",
		Help:    "Endpoint delivery time including retries.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint_type"})

	DedupEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifier_dedup_entries",
		Help: "Tracked identities per dedup family.",
	}, []string{"family"})

	SweepRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_sweep_removed_total",
		Help: "Expired identities removed by sweeps.",
	})
)

// MustRegister registers package collectors in registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EventsReceived,
		EventsDropped,
		QueueDepth,
		AlertsMatched,
		Deliveries,
		DeliveryDuration,
		DedupEntries,
		SweepRemoved,
	)
}

// Handler exposes gatherer in Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
