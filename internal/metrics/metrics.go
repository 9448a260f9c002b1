package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SketchUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketch_updates_total",
		Help: "The total number of count-min sketch updates per behavior profile",
	}, []string{"profile"})

	SketchEstimatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketch_estimates_total",
		Help: "The total number of count-min sketch estimates per behavior profile",
	}, []string{"profile"})

	SketchResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketch_resets_total",
		Help: "The total number of periodic sketch resets per behavior profile",
	}, []string{"profile"})

	SketchResetFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketch_reset_failures_total",
		Help: "The total number of reset cycles that failed and were skipped",
	}, []string{"profile"})

	SketchMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sketch_memory_bytes",
		Help: "The size of each sketch's counter matrix in bytes",
	}, []string{"profile"})

	SketchesConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sketches_configured",
		Help: "The number of sketches currently held by the registry",
	})

	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketch_registry_rebuilds_total",
		Help: "The total number of registry rebuilds",
	}, []string{"status"}) // status: success, failure

	EventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "The total number of events dispatched to behavior profiles",
	})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "The total number of events that could not be processed",
	}, []string{"reason"})

	AnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anomalies_detected_total",
		Help: "The total number of rare behavior profile occurrences",
	}, []string{"profile"})
)
