package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sync metrics
	RecordsPushed  *prometheus.CounterVec
	RecordsPulled  *prometheus.CounterVec
	PushRejections *prometheus.CounterVec
	SyncFailures   *prometheus.CounterVec
	PushLatency    *prometheus.HistogramVec
	PullLatency    *prometheus.HistogramVec
	PendingRecords *prometheus.GaugeVec

	// Purge metrics
	RecordsPurged *prometheus.CounterVec
	PurgeLatency  prometheus.Histogram
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RecordsPushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_pushed_total",
			Help:      "Total number of records acknowledged by the server",
		}, []string{"resource"}),
		RecordsPulled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_pulled_total",
			Help:      "Total number of records applied from pulled pages",
		}, []string{"resource"}),
		PushRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_rejections_total",
			Help:      "Total number of records the server rejected during push",
		}, []string{"resource"}),
		SyncFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Total number of failed sync cycles",
		}, []string{"resource", "direction"}),
		PushLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Time spent pushing a batch",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),
		PullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pull_duration_seconds",
			Help:      "Time spent pulling and applying pages",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),
		PendingRecords: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_records",
			Help:      "Records awaiting upload per resource",
		}, []string{"resource"}),
		RecordsPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_purged_total",
			Help:      "Total number of records hard-deleted by purge passes",
		}, []string{"table", "rule"}),
		PurgeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purge_duration_seconds",
			Help:      "Time spent in a purge pass",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}

// NewUnregistered builds the same metric set against a private registry, for
// tests that construct several instances.
func NewUnregistered(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		RecordsPushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_pushed_total", Help: "-",
		}, []string{"resource"}),
		RecordsPulled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_pulled_total", Help: "-",
		}, []string{"resource"}),
		PushRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_rejections_total", Help: "-",
		}, []string{"resource"}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_failures_total", Help: "-",
		}, []string{"resource", "direction"}),
		PushLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "push_duration_seconds", Help: "-",
		}, []string{"resource"}),
		PullLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pull_duration_seconds", Help: "-",
		}, []string{"resource"}),
		PendingRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_records", Help: "-",
		}, []string{"resource"}),
		RecordsPurged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_purged_total", Help: "-",
		}, []string{"table", "rule"}),
		PurgeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "purge_duration_seconds", Help: "-",
		}),
	}
}
