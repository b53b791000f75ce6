package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds the Prometheus metrics owned by a Pipeline.
type pipelineMetrics struct {
	// ingested counts successfully published documents.
	ingested prometheus.Counter
	// ingestFailures counts ingests that stopped before publish.
	ingestFailures prometheus.Counter
	// ingestDuration observes end-to-end ingest latency.
	ingestDuration prometheus.Histogram
	// chunks observes the number of chunks per ingested document.
	chunks prometheus.Histogram
	// queries counts successful retrieval queries.
	queries prometheus.Counter
}

func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)
	return &pipelineMetrics{
		ingested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "pipeline",
			Name:      "documents_ingested_total",
			Help:      "Documents indexed and published.",
		}),
		ingestFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "pipeline",
			Name:      "ingest_failures_total",
			Help:      "Ingests that failed before the document was published.",
		}),
		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "pipeline",
			Name:      "ingest_duration_seconds",
			Help:      "Time from upload to publish, including embedding.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		chunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "pipeline",
			Name:      "document_chunks",
			Help:      "Chunks produced per ingested document.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		queries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Retrieval queries served.",
		}),
	}
}
