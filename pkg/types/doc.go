/*
Package types defines the data model shared by the leadercheck packages.

The model is small on purpose: a cluster is identified by an opaque ClusterID,
the persisted belief about its leader is a LeaderRecord, and every
reconciliation run ends in an Outcome carrying one of three kinds:

	Unchanged          → SeverityOK       (exit 0)
	ChangedAndUpdated  → SeverityWarning  (exit 1)
	UnresolvedAfterRetries → SeverityCritical (exit 2)

Runs that abort on a fatal error (unknown cluster, unreachable host, persist
failure) report SeverityUnknown (exit 3). The numeric severities are the exit
codes monitoring frameworks such as Nagios interpret, so they are part of the
external interface.

# Errors

errors.go holds the error taxonomy. Each typed error matches its sentinel
through errors.Is, so callers can classify without type assertions:

	if errors.Is(err, types.ErrUnknownCluster) {
		var uc *types.UnknownClusterError
		errors.As(err, &uc)
		fmt.Println("options are:", uc.Known)
	}

DeliveryError is the only non-fatal error: it is attached to Outcome.NotifyErr
and never changes the outcome kind.
*/
package types
