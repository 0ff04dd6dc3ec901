package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boq_upstream_requests_total",
			Help: "Total number of completion service calls",
		},
		[]string{"provider", "mode", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boq_upstream_request_duration_seconds",
			Help:    "Duration of completion service calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "mode"},
	)

	StreamFragments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boq_stream_fragments_total",
			Help: "Total number of streamed text fragments received",
		},
		[]string{"provider"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boq_pipeline_stage_duration_seconds",
			Help:    "Duration of estimation pipeline stages in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"stage", "outcome"},
	)
)
