// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Package metrics provides Prometheus metrics for the trackpad service.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackpad_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Session metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackpad_sessions_active",
			Help: "Number of connected trackpad sessions",
		},
	)

	intentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_intents_total",
			Help: "Inbound intents by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackpad_protocol_errors_total",
			Help: "Inbound messages rejected as malformed or unknown",
		},
	)

	slowConsumersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackpad_slow_consumer_disconnects_total",
			Help: "Sessions disconnected because their outbound queue overflowed",
		},
	)

	broadcastMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackpad_broadcast_messages_total",
			Help: "Messages enqueued on session outbound queues by broadcasts",
		},
	)

	// Clipboard metrics
	clipboardPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_clipboard_publishes_total",
			Help: "Clipboard entries published by source",
		},
		[]string{"source"},
	)

	// File exchange metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_uploads_total",
			Help: "Total number of uploads by status",
		},
		[]string{"status"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_downloads_total",
			Help: "Total number of downloads by status",
		},
		[]string{"status"},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackpad_bytes_uploaded_total",
			Help: "Total payload bytes stored",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackpad_bytes_downloaded_total",
			Help: "Total payload bytes served",
		},
	)

	filesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackpad_files_stored",
			Help: "Number of records in the file exchange index",
		},
	)

	filesReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackpad_files_reaped_total",
			Help: "Expired records removed, by mode (expired, forced, deferred)",
		},
		[]string{"mode"},
	)
)

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func SetSessionsActive(n int)            { sessionsActive.Set(float64(n)) }
func RecordIntent(kind, result string)   { intentsTotal.WithLabelValues(kind, result).Inc() }
func RecordProtocolError()               { protocolErrorsTotal.Inc() }
func RecordSlowConsumer()                { slowConsumersTotal.Inc() }
func RecordBroadcast(delivered int)      { broadcastMessagesTotal.Add(float64(delivered)) }
func RecordClipboardPublish(src string)  { clipboardPublishesTotal.WithLabelValues(src).Inc() }
func SetFilesStored(n int)               { filesStored.Set(float64(n)) }
func RecordReaped(mode string, n int)    { filesReapedTotal.WithLabelValues(mode).Add(float64(n)) }
func RecordBytesDownloaded(n int64)      { bytesDownloaded.Add(float64(n)) }
func RecordDownload(status string)       { downloadsTotal.WithLabelValues(status).Inc() }

// RecordUpload records an upload outcome and, on success, its size.
func RecordUpload(status string, size int64) {
	uploadsTotal.WithLabelValues(status).Inc()
	if size > 0 {
		bytesUploaded.Add(float64(size))
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer (Hijacker, Flusher).
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request count and latency keyed by the matched route
// pattern. Websocket upgrades are passed through untouched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}
