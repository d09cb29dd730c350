package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tankLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_tank_level_percent",
		Help: "Current simulated tank level per mounted user",
	}, []string{"user"})

	requestsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_requests_total",
		Help: "Emergency requests submitted, by origin and result",
	}, []string{"origin", "result"})

	submitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_request_submit_seconds",
		Help:    "Latency of request-service create calls",
		Buckets: prometheus.DefBuckets,
	})

	completionPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_completion_polls_total",
		Help: "Completion polls, by outcome",
	}, []string{"outcome"})

	mountedMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_mounted_monitors",
		Help: "Dispatch monitors currently mounted",
	})
)

const (
	originAutomatic = "automatic"
	originManual    = "manual"

	resultSuccess = "success"
	resultFailure = "failure"

	pollCompleted = "completed"
	pollIdle      = "idle"
	pollError     = "error"
	pollSkipped   = "skipped"
)
