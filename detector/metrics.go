package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_detector_requests_total",
		Help: "Detection requests sent to the backend.",
	})
	requestsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_detector_requests_skipped_total",
		Help: "Frames replaced by a newer one while the backend was busy.",
	})
	requestsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_detector_requests_failed_total",
		Help: "Detection requests that ended in an error or timeout.",
	})
	requestSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mocap_detector_request_seconds",
		Help:    "Backend detection latency.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)
