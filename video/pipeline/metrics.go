package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_pipeline_frames_submitted_total",
		Help: "Frames offered by the capture device.",
	})
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_pipeline_frames_dropped_total",
		Help: "Frames superseded before processing or submitted while stopped.",
	})
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_pipeline_frames_processed_total",
		Help: "Frames handed to the analyzer successfully.",
	})
	framesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_pipeline_frames_failed_total",
		Help: "Frames whose analysis returned an error or panicked.",
	})
	framesInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_pipeline_frames_invalid_total",
		Help: "Frames skipped because they had no pool buffer.",
	})
	analyzeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mocap_pipeline_analyze_seconds",
		Help:    "Time spent in the analyzer per frame.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
