// Package metrics provides Prometheus metrics for the mirror client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivemirror_cache_lookups_total",
			Help: "Cache lookups by section and result",
		},
		[]string{"section", "result"},
	)

	remoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivemirror_remote_calls_total",
			Help: "Calls made to the remote store by operation and status",
		},
		[]string{"operation", "status"},
	)

	bytesMirrored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivemirror_bytes_mirrored_total",
			Help: "Bytes copied from the remote store into the local cache",
		},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivemirror_auth_attempts_total",
			Help: "Authentication attempts by result",
		},
		[]string{"result"},
	)

	partialDownloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivemirror_partial_downloads_total",
			Help: "Downloads aborted mid-stream whose reservation was cleared",
		},
	)
)

// RecordCacheLookup counts a cache lookup for section.
func RecordCacheLookup(section string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(section, result).Inc()
}

// RecordRemoteCall counts a call to the remote store.
func RecordRemoteCall(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	remoteCalls.WithLabelValues(operation, status).Inc()
}

// RecordBytesMirrored adds n to the mirrored byte counter.
func RecordBytesMirrored(n int64) {
	bytesMirrored.Add(float64(n))
}

// RecordAuthAttempt counts an authentication attempt.
func RecordAuthAttempt(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	authAttempts.WithLabelValues(result).Inc()
}

// RecordPartialDownload counts a download whose reservation had to be cleared.
func RecordPartialDownload() {
	partialDownloads.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
