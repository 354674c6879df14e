package types

import (
	"time"
)

// NoLeader is the observed leader reported when the cluster currently has no
// elected leader (e.g. mid-failover)
const NoLeader = ""

// ClusterID identifies one monitored cluster (a section in the config store)
type ClusterID string

func (c ClusterID) String() string {
	return string(c)
}

// LeaderRecord is the persisted belief about the current leader of a cluster
type LeaderRecord struct {
	Cluster  ClusterID
	Hostname string
}

// OutcomeKind is the result class of one reconciliation run
type OutcomeKind string

const (
	OutcomeUnchanged  OutcomeKind = "unchanged"
	OutcomeChanged    OutcomeKind = "changed_and_updated"
	OutcomeUnresolved OutcomeKind = "unresolved_after_retries"

	// OutcomeFailed marks a run aborted by a fatal error
	OutcomeFailed OutcomeKind = "failed"
)

// Severity is the status reported to the monitoring framework. The numeric
// values are the process exit codes and must not change.
type Severity int

const (
	SeverityOK       Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
	SeverityUnknown  Severity = 3
)

// String returns the monitoring label for the severity
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode returns the process exit status for the severity
func (s Severity) ExitCode() int {
	if s < SeverityOK || s > SeverityUnknown {
		return int(SeverityUnknown)
	}
	return int(s)
}

// Severity returns the severity a finished run reports
func (k OutcomeKind) Severity() Severity {
	switch k {
	case OutcomeUnchanged:
		return SeverityOK
	case OutcomeChanged:
		return SeverityWarning
	case OutcomeUnresolved:
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// Outcome is the result of one reconciliation run
type Outcome struct {
	RunID     string
	Kind      OutcomeKind
	Severity  Severity
	Cluster   ClusterID
	OldLeader string
	NewLeader string // NoLeader unless Kind is OutcomeChanged

	Attempts int // Total probes issued, initial probe included
	Waits    int // Retry waits performed

	StartedAt time.Time
	Duration  time.Duration

	// NotifyErr is set when the alert could not be delivered. It never
	// changes Kind or Severity.
	NotifyErr error
}

// NotificationKind selects the alert template
type NotificationKind string

const (
	NotifyLeaderChanged NotificationKind = "leader_changed"
	NotifyNoLeader      NotificationKind = "no_leader"
)

// Notification is an operator alert about a cluster's leader
type Notification struct {
	Kind      NotificationKind
	Cluster   ClusterID
	OldLeader string
	NewLeader string // NoLeader for NotifyNoLeader
}

// SenderHost returns the host the alert's sender identity is derived from:
// the new leader for a change, the last known leader otherwise
func (n Notification) SenderHost() string {
	if n.Kind == NotifyLeaderChanged {
		return n.NewLeader
	}
	return n.OldLeader
}
