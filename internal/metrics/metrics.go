// Package metrics exposes Prometheus counters for the downloader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pbdl"

// Metrics holds all Prometheus metrics for the downloader
type Metrics struct {
	DownloadsTotal *prometheus.CounterVec
	RetriesTotal   prometheus.Counter
	FallbacksTotal prometheus.Counter
	BytesTotal     prometheus.Counter
	PagesTotal     prometheus.Counter
	ItemsTotal     prometheus.Counter
	SyncsTotal     *prometheus.CounterVec
	InFlight       prometheus.Gauge
	QueueDepth     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all downloader metrics on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Download tasks by terminal outcome",
			},
			[]string{"outcome"},
		),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Download attempts that were re-queued after a retryable failure",
		}),
		FallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_fallbacks_total",
			Help:      "Tasks that fell back to a lower-resolution variant",
		}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to completed files",
		}),
		PagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_pages_total",
			Help:      "Board feed pages fetched",
		}),
		ItemsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_items_total",
			Help:      "Media items emitted by pagination",
		}),
		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "board_syncs_total",
				Help:      "Board sync runs by result",
			},
			[]string{"result"},
		),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_flight",
			Help:      "Downloads currently running",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker or a retry delay",
		}),

		registry: registry,
	}
}

// Handler returns the HTTP handler serving this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts one terminal task outcome
func (m *Metrics) RecordOutcome(outcome string) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
}
