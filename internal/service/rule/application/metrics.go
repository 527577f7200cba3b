// internal/service/rule/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "snapshot_lookups_total",
		Help:      "Cart rule snapshot lookups by result (hit, miss).",
	}, []string{"result"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "violations_total",
		Help:      "Checkout validations rejected, by rule type.",
	}, []string{"rule_type"})

	discountsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "discounts_issued_total",
		Help:      "Discount line items produced, by rule type.",
	}, []string{"rule_type"})

	jobsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "jobs_scheduled_total",
		Help:      "Re-evaluation jobs dispatched, by job kind.",
	}, []string{"kind"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "jobs_processed_total",
		Help:      "Re-evaluation jobs consumed, by job kind and outcome (done, stale, failed).",
	}, []string{"kind", "outcome"})

	reevaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rules",
		Name:      "reevaluation_duration_seconds",
		Help:      "Time spent recomputing event/rule relationships for one job.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
