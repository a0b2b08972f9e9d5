package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	scanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billscan_scan_requests_total",
			Help: "Total number of scan requests by outcome",
		},
		[]string{"source", "status"}, // source: image, pdf
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billscan_scan_duration_seconds",
			Help:    "Bill scan duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	scanMonthsUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billscan_scan_months_used",
			Help:    "Number of monthly values fused per successful scan",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
	)

	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billscan_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billscan_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)
)
