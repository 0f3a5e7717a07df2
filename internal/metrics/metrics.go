// Package metrics provides Prometheus metrics for the vault server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filevault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_uploads_total",
			Help: "Uploads by outcome (stored, replaced, rejected, error)",
		},
		[]string{"result"},
	)

	ingestionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_ingestion_rejections_total",
			Help: "Uploads refused by type detection or content scanning",
		},
		[]string{"detected_type"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_downloads_total",
			Help: "Downloads by outcome (ok, denied, error)",
		},
		[]string{"result"},
	)

	integrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filevault_integrity_failures_total",
			Help: "Stored payloads that failed authenticated decryption",
		},
	)

	publicCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_public_cache_total",
			Help: "Public file cache lookups",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

func RecordRejection(detectedType string) {
	ingestionRejections.WithLabelValues(detectedType).Inc()
}

func RecordDownload(result string) {
	downloadsTotal.WithLabelValues(result).Inc()
}

func RecordIntegrityFailure() {
	integrityFailures.Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		publicCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	publicCacheTotal.WithLabelValues("miss").Inc()
}
