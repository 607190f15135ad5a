// Package observability holds the pipeline's Prometheus metrics and slog
// logger construction.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters, histograms, and gauges for one
// ingestion cycle's lifecycle.
type Metrics struct {
	CyclesRun      prometheus.Counter
	CyclesFailed   prometheus.Counter
	CycleDuration  prometheus.Histogram
	PipelineReady  prometheus.Gauge

	SourceFetches   *prometheus.CounterVec // labels: source, outcome={success,error}
	SourceRetries   *prometheus.CounterVec // labels: source
	FetchDuration   *prometheus.HistogramVec // labels: source

	RawEventsIngested   prometheus.Counter
	DeadLetterEvents    prometheus.Counter
	UnifiedEventsUpserted prometheus.Counter
	ClustersFormed      prometheus.Histogram

	WarehouseCacheHits   prometheus.Counter
	WarehouseCacheMisses prometheus.Counter
}

const namespace = "seismic_ingest"

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total ingestion cycles run.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_failed_total",
			Help:      "Total ingestion cycles that failed (all sources failed or warehouse write failed).",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-parse-cluster-unify-upsert cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PipelineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 once the pipeline has completed at least one cycle, 0 otherwise.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Fetches per source per cycle by final outcome.",
		}, []string{"source", "outcome"}),
		SourceRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_retries_total",
			Help:      "Retry attempts per source.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Per-source fetch request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),
		RawEventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_events_ingested_total",
			Help:      "Total validated CanonicalEvents appended to the raw store.",
		}),
		DeadLetterEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_events_total",
			Help:      "Total events diverted to the dead-letter store.",
		}),
		UnifiedEventsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unified_events_upserted_total",
			Help:      "Total unified event upserts written to the warehouse.",
		}),
		ClustersFormed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clusters_formed",
			Help:      "Number of clusters formed per cycle.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		WarehouseCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warehouse_cache_hits_total",
			Help:      "Unified-event read cache hits.",
		}),
		WarehouseCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warehouse_cache_misses_total",
			Help:      "Unified-event read cache misses.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesRun,
		m.CyclesFailed,
		m.CycleDuration,
		m.PipelineReady,
		m.SourceFetches,
		m.SourceRetries,
		m.FetchDuration,
		m.RawEventsIngested,
		m.DeadLetterEvents,
		m.UnifiedEventsUpserted,
		m.ClustersFormed,
		m.WarehouseCacheHits,
		m.WarehouseCacheMisses,
	)

	return m
}

// NewMetricsForTesting creates Metrics without touching the default
// Prometheus registry, avoiding "already registered" panics when multiple
// tests construct their own Metrics.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesRun:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cycles_total"}),
		CyclesFailed:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cycles_failed_total"}),
		CycleDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "cycle_duration_seconds"}),
		PipelineReady:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ready"}),
		SourceFetches:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "source_fetches_total"}, []string{"source", "outcome"}),
		SourceRetries:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "source_retries_total"}, []string{"source"}),
		FetchDuration:         prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "fetch_duration_seconds"}, []string{"source"}),
		RawEventsIngested:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "raw_events_ingested_total"}),
		DeadLetterEvents:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "dead_letter_events_total"}),
		UnifiedEventsUpserted: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "unified_events_upserted_total"}),
		ClustersFormed:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "clusters_formed"}),
		WarehouseCacheHits:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "warehouse_cache_hits_total"}),
		WarehouseCacheMisses:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "warehouse_cache_misses_total"}),
	}
}
