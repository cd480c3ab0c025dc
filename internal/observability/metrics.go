package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion and replay pipeline.
type Metrics struct {
	RowsFetched       *prometheus.CounterVec // labels: station
	FetchErrors       *prometheus.CounterVec // labels: station
	RecordsNormalized prometheus.Counter
	RecordsRejected   prometheus.Counter
	RowsInserted      prometheus.Counter
	InsertErrors      prometheus.Counter

	MessagesPublished *prometheus.CounterVec // labels: topic
	MessagesConsumed  *prometheus.CounterVec // labels: topic
	ConsumerDropped   prometheus.Counter
	ConsumerRunning   prometheus.Gauge

	ReplayRuns      prometheus.Counter
	FetchDuration   prometheus.Histogram
	ReplayDuration  prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsFetched,
		m.FetchErrors,
		m.RecordsNormalized,
		m.RecordsRejected,
		m.RowsInserted,
		m.InsertErrors,
		m.MessagesPublished,
		m.MessagesConsumed,
		m.ConsumerDropped,
		m.ConsumerRunning,
		m.ReplayRuns,
		m.FetchDuration,
		m.ReplayDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "rows_fetched_total",
			Help:      "CSV rows retrieved from the upstream CDEC endpoint.",
		}, []string{"station"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "fetch_errors_total",
			Help:      "Failed upstream fetch attempts.",
		}, []string{"station"}),
		RecordsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "records_normalized_total",
			Help:      "Raw rows accepted by the normalizer.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "records_rejected_total",
			Help:      "Raw rows rejected for missing identity.",
		}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "rows_inserted_total",
			Help:      "Rows committed to the store.",
		}),
		InsertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "insert_errors_total",
			Help:      "Store insert failures (whole batches on rollback).",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "messages_published_total",
			Help:      "Messages handed to the transport, by topic.",
		}, []string{"topic"}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "messages_consumed_total",
			Help:      "Messages delivered to the ingestion consumer, by topic.",
		}, []string{"topic"}),
		ConsumerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "consumer_dropped_total",
			Help:      "Malformed or rejected messages dropped by the consumer.",
		}),
		ConsumerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reservoir_etl",
			Name:      "consumer_running",
			Help:      "1 when the ingestion consumer loop is active.",
		}),
		ReplayRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservoir_etl",
			Name:      "replay_runs_total",
			Help:      "Replay invocations.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reservoir_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete fetch-and-store run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reservoir_etl",
			Name:      "replay_duration_seconds",
			Help:      "Duration of a complete replay run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
