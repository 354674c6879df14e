package probe

import (
	"context"
	"strings"

	"github.com/cuemby/leadercheck/pkg/types"
)

// Type represents the transport a probe uses
type Type string

const (
	TypeSSH      Type = "ssh"
	TypeLocal    Type = "local"
	TypeNoLeader Type = "no-leader"
)

// DefaultCommand queries a pacemaker cluster for its promoted node
const DefaultCommand = "pcs status | grep Masters | awk '{print $3}'"

// Prober queries a host for the leader the cluster currently reports.
// Observe returns types.NoLeader when the query ran but reported nothing,
// and a *types.UnreachableHostError when the query could not run at all.
type Prober interface {
	Observe(ctx context.Context, host string) (string, error)
	Type() Type
}

// ParseLeader extracts the leader from the raw query output: the first
// whitespace-separated token, or types.NoLeader for blank output. The token
// is not validated as a hostname.
func ParseLeader(output string) string {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return types.NoLeader
	}
	return fields[0]
}

// NoLeaderProbe always reports that the cluster has no leader. It exercises
// the retry path without touching the network.
type NoLeaderProbe struct{}

// Observe returns types.NoLeader
func (NoLeaderProbe) Observe(ctx context.Context, host string) (string, error) {
	return types.NoLeader, nil
}

// Type returns the probe type
func (NoLeaderProbe) Type() Type {
	return TypeNoLeader
}
