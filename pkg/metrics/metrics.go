package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ChecksTotal counts admission checks by limit type and outcome
// (allowed, denied, whitelisted, blacklisted, degraded).
var ChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_checks_total",
		Help: "Total number of admission-control checks by limit type and outcome",
	},
	[]string{"limit_type", "outcome"},
)

// CheckDuration records latency distribution for admission checks
var CheckDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "gatekeeper_check_duration_seconds",
		Help:    "Latency in seconds of individual admission checks",
		Buckets: prometheus.DefBuckets,
	},
)

// StoreErrors counts counter-store failures that triggered fail-open handling
var StoreErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_store_errors_total",
		Help: "Total number of counter store failures handled by failing open",
	},
	[]string{"algorithm"},
)

// Detection and enforcement metrics
var (
	BansIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_bans_issued_total",
			Help: "Total number of bans issued by source (escalation, ddos, manual)",
		},
		[]string{"source"},
	)

	DDoSDetections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_ddos_detections_total",
			Help: "Total number of burst-attack detections",
		},
	)

	AlertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_alerts_dropped_total",
			Help: "Total number of alerts dropped due to a full dispatch queue",
		},
	)
)

func init() {
	prometheus.MustRegister(ChecksTotal, CheckDuration, StoreErrors)
	prometheus.MustRegister(BansIssued, DDoSDetections, AlertsDropped)
}
