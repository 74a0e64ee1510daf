package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline decision metrics
	proposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_proposals_total",
		Help: "Total proposals by terminal decision",
	}, []string{"decision", "escalation"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_conflicts_total",
		Help: "Total detected conflicts by kind",
	}, []string{"kind"})

	commitRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governance_commit_retries_total",
		Help: "Total conflict re-checks caused by losing a commit race",
	})

	storeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governance_store_retries_total",
		Help: "Total store write retries due to store unavailability",
	})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "governance_pipeline_duration_seconds",
		Help:    "Time from dequeue to terminal decision",
		Buckets: prometheus.DefBuckets,
	}, []string{"decision"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "governance_queue_depth",
		Help: "Proposals waiting in the submission queue",
	})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "governance_in_flight_proposals",
		Help: "Proposals past validation but not yet committed",
	})
)
