package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	geoSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geo",
		Subsystem: "candidates",
		Name:      "submissions_total",
		Help:      "Total candidate submissions broken down by outcome.",
	}, []string{"outcome"})

	geoBatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geo",
		Subsystem: "sync",
		Name:      "batch_items_total",
		Help:      "Total staged items processed during batch application broken down by result.",
	}, []string{"result"})

	geoRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geo",
		Subsystem: "sync",
		Name:      "rollbacks_total",
		Help:      "Total batch rollbacks executed.",
	})

	geoStagingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geo",
		Subsystem: "sync",
		Name:      "staging_runs_total",
		Help:      "Total per-tenant staging passes broken down by result.",
	}, []string{"result"})
)

func recordSubmission(outcome SubmissionOutcome) {
	geoSubmissions.WithLabelValues(string(outcome)).Inc()
}

func recordBatchItem(failed bool) {
	result := "applied"
	if failed {
		result = "failed"
	}
	geoBatchItems.WithLabelValues(result).Inc()
}

func recordStagingRun(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	geoStagingRuns.WithLabelValues(result).Inc()
}
