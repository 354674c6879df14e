/*
Package metrics provides Prometheus metrics and health reporting for
leadercheck.

All metrics are registered on the default registry at package init. How
they leave the process depends on the mode:

	┌────────────────────────── METRICS ──────────────────────────┐
	│                                                              │
	│   reconciler ──► counters / gauges / histograms              │
	│   probes     ──►        (default registry)                   │
	│                              │                               │
	│            ┌─────────────────┴─────────────────┐             │
	│            ▼                                   ▼             │
	│   one-shot run                          watch mode           │
	│   WriteTextfile(path)                   NewMux()             │
	│   node_exporter textfile                /metrics  promhttp   │
	│   collector picks it up                 /health   per cluster│
	│                                         /ready    all ran    │
	└──────────────────────────────────────────────────────────────┘

A one-shot process lives for a single run, so it cannot be scraped. With
--metrics-textfile the registry is dumped after the run into a file that
node_exporter's textfile collector exposes. The file is written through a
temporary file and renamed, so node_exporter never reads a partial dump.

# Metrics

Runs:

	leadercheck_reconciliations_total{cluster,outcome}
	leadercheck_reconciliation_duration_seconds{cluster}     retry waits included
	leadercheck_last_run_severity{cluster}                    0 ok .. 3 unknown
	leadercheck_last_run_timestamp_seconds{cluster}

Probes and retries:

	leadercheck_probe_attempts_total{cluster,result}          leader, empty, error
	leadercheck_probe_duration_seconds
	leadercheck_retry_waits_total{cluster}

Leaders and alerts:

	leadercheck_leader_changes_total{cluster}
	leadercheck_expected_leader_info{cluster,leader}          watch mode, always 1
	leadercheck_notifications_total{kind,status}              sent, failed

A useful alert on the watch-mode series:

	leadercheck_last_run_severity >= 2

# Health

The health registry keeps the last result per watched cluster. /health is
unhealthy while any cluster's last run was CRITICAL or UNKNOWN; a handled
leader change (WARNING) stays healthy. /ready turns ready once every watched
cluster has reported at least once.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ProbeDuration)
*/
package metrics
