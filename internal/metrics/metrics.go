// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcam_streamer_frames_captured_total",
		Help: "Frames successfully read from a capture source",
	})

	FramesUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcam_streamer_frames_unavailable_total",
		Help: "Ticks on which the capture source produced no frame",
	})

	FramesAnnotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcam_streamer_frames_annotated_total",
		Help: "Frames run through the landmark annotator",
	})

	AnnotateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webcam_streamer_annotate_duration_seconds",
		Help:    "Wall time of one annotate pass (both detectors)",
		Buckets: prometheus.DefBuckets,
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webcam_streamer_sessions_active",
		Help: "Currently live peer sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcam_streamer_sessions_total",
		Help: "Peer sessions negotiated since start",
	})

	NegotiationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcam_streamer_negotiation_failures_total",
		Help: "Offer/answer exchanges that failed before a session went live",
	})
)
