/*
Package probe asks a cluster which node it currently reports as leader.

A probe runs one leader query and classifies the result three ways:

	query ran, printed a token   → that token is the observed leader
	query ran, printed nothing   → types.NoLeader (normal during failover)
	query could not run          → *types.UnreachableHostError

Only the first whitespace-separated token of the output is used and it is
not validated as a hostname.

# Probes

SSHProbe connects to the expected leader and runs the query remotely. Host
keys must already be in a known_hosts file; authentication uses the SSH
agent and unencrypted identity files. Nothing ever prompts, so a probe run
from cron or a monitoring scheduler cannot hang on input.

LocalProbe runs the query through /bin/sh on the local host, for setups
where leadercheck is installed on a cluster member.

NoLeaderProbe always reports no leader. It drives the retry path during
tests of the alerting chain.

# Usage

	p := probe.NewSSHProbe(probe.DefaultCommand).
		WithUser("nagios").
		WithKnownHosts("/etc/ssh/ssh_known_hosts").
		WithTimeout(20 * time.Second)

	leader, err := p.Observe(ctx, "wiso-test-01")
	switch {
	case err != nil:
		// unreachable: abort the run
	case leader == types.NoLeader:
		// retry later
	default:
		// compare with the expected leader
	}
*/
package probe
