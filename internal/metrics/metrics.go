// Package metrics exposes Prometheus instrumentation for ingestion and
// search. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "knowledge"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal       *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	chunksSaved       prometheus.Counter
	embeddingFailures prometheus.Counter
	tokensEmbedded    prometheus.Counter

	searchTotal    *prometheus.CounterVec
	searchDuration prometheus.Histogram
	searchResults  prometheus.Histogram
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Documents ingested, by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of a document ingestion.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		chunksSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_saved_total",
			Help:      "Chunks persisted with an embedding.",
		}),
		embeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Chunks whose embedding could not be generated.",
		}),
		tokensEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_embedded_total",
			Help:      "Tokens reported for persisted chunk embeddings.",
		}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Searches served, by outcome (hit or empty).",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of a search including the query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of chunks returned per search.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestTotal,
		m.ingestDuration,
		m.chunksSaved,
		m.embeddingFailures,
		m.tokensEmbedded,
		m.searchTotal,
		m.searchDuration,
		m.searchResults,
	)
	return m
}

// IngestObservation summarises one ingestion.
type IngestObservation struct {
	Success           bool
	ChunksSaved       int
	EmbeddingFailures int
	Tokens            int
	Duration          time.Duration
}

// ObserveIngest records one ingestion.
func (m *Metrics) ObserveIngest(o IngestObservation) {
	if m == nil {
		return
	}
	outcome := "failed"
	if o.Success {
		outcome = "success"
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(o.Duration.Seconds())
	m.chunksSaved.Add(float64(o.ChunksSaved))
	m.embeddingFailures.Add(float64(o.EmbeddingFailures))
	m.tokensEmbedded.Add(float64(o.Tokens))
}

// ObserveSearch records one search returning n results.
func (m *Metrics) ObserveSearch(n int, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "hit"
	if n == 0 {
		outcome = "empty"
	}
	m.searchTotal.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(d.Seconds())
	m.searchResults.Observe(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
