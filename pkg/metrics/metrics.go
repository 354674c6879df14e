package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadercheck_reconciliations_total",
			Help: "Total number of reconciliation runs by cluster and outcome",
		},
		[]string{"cluster", "outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadercheck_reconciliation_duration_seconds",
			Help:    "Reconciliation run duration in seconds, retry waits included",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 180, 300},
		},
		[]string{"cluster"},
	)

	LastRunSeverity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadercheck_last_run_severity",
			Help: "Severity of the last run (0=ok, 1=warning, 2=critical, 3=unknown)",
		},
		[]string{"cluster"},
	)

	LastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadercheck_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
		[]string{"cluster"},
	)

	// Probe metrics
	ProbeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadercheck_probe_attempts_total",
			Help: "Total number of leader probes by cluster and result (leader, empty, error)",
		},
		[]string{"cluster", "result"},
	)

	ProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadercheck_probe_duration_seconds",
			Help:    "Time taken by a single leader probe in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetryWaitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadercheck_retry_waits_total",
			Help: "Total number of waits while the cluster reported no leader",
		},
		[]string{"cluster"},
	)

	// Leader metrics
	LeaderChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadercheck_leader_changes_total",
			Help: "Total number of confirmed leader changes",
		},
		[]string{"cluster"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadercheck_notifications_total",
			Help: "Total number of notifications by kind and status (sent, failed)",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(LastRunSeverity)
	prometheus.MustRegister(LastRunTimestamp)
	prometheus.MustRegister(ProbeAttemptsTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(RetryWaitsTotal)
	prometheus.MustRegister(LeaderChangesTotal)
	prometheus.MustRegister(NotificationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry to path in the text exposition
// format, for the node_exporter textfile collector. The file is replaced
// atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
