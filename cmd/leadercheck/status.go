package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/leadercheck/pkg/types"
)

// statusLine renders the one-line monitoring status of a finished run,
// followed by performance data
func statusLine(out *types.Outcome, err error) string {
	if err != nil {
		return unknownLine(err)
	}

	var b strings.Builder
	b.WriteString(out.Severity.String())
	b.WriteString(" - ")

	switch out.Kind {
	case types.OutcomeUnchanged:
		fmt.Fprintf(&b, "cluster %s leader %s unchanged", out.Cluster, out.OldLeader)
	case types.OutcomeChanged:
		fmt.Fprintf(&b, "cluster %s leader changed from %s to %s, store updated", out.Cluster, out.OldLeader, out.NewLeader)
	case types.OutcomeUnresolved:
		fmt.Fprintf(&b, "cluster %s reported no leader after %d probes (last known leader %s)", out.Cluster, out.Attempts, out.OldLeader)
	default:
		fmt.Fprintf(&b, "cluster %s finished with outcome %q", out.Cluster, out.Kind)
	}

	if out.NotifyErr != nil {
		fmt.Fprintf(&b, "; notification failed: %v", out.NotifyErr)
	}

	fmt.Fprintf(&b, " | attempts=%d waits=%d time=%.3fs", out.Attempts, out.Waits, out.Duration.Seconds())
	return b.String()
}

func unknownLine(err error) string {
	return types.SeverityUnknown.String() + " - " + err.Error()
}
