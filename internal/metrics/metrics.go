// Package metrics holds the pipeline's Prometheus collectors and tracer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var (
	Ingestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_ingestions_total",
			Help: "Documents processed by the ingestion pipeline, by outcome",
		},
		[]string{"status"},
	)
	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_chunks_ingested_total",
			Help: "Chunks written to the vector store",
		},
	)
	EmbeddingBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_embedding_batches_total",
			Help: "Embedding backend calls, by outcome",
		},
		[]string{"status"},
	)
	Retrievals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_retrievals_total",
			Help: "Retrieval requests, by outcome (hit, empty, error)",
		},
		[]string{"status"},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16), // 5ms to ~160s
		},
		[]string{"stage"},
	)
)

// Tracer is used for per-stage spans. It is a no-op until a provider is installed.
var Tracer = otel.Tracer("nexus/pipeline")

func init() {
	prometheus.MustRegister(Ingestions, ChunksIngested, EmbeddingBatches, Retrievals, StageDuration)
}

// ObserveStage records the time elapsed since began under the stage label.
func ObserveStage(stage string, began time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(began).Seconds())
}
