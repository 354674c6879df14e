package probe

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProbeObserve(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		expected string
	}{
		{"leader reported", "echo hostB", "hostB"},
		{"no leader", "true", types.NoLeader},
		{"pipeline with no match", "printf 'Stopped: [ a b ]\\n' | grep Masters | awk '{print $3}'", types.NoLeader},
		{"pipeline with match", "printf 'Masters: [ hostC ]\\n' | grep Masters | awk '{print $3}'", "hostC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leader, err := NewLocalProbe(tt.command).Observe(context.Background(), "hostA")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, leader)
		})
	}
}

func TestLocalProbeFailures(t *testing.T) {
	tests := []struct {
		name  string
		probe *LocalProbe
	}{
		{"non-zero exit", NewLocalProbe("echo broken >&2; exit 3")},
		{"empty command", NewLocalProbe("  ")},
		{"missing shell", NewLocalProbe("echo hostB").WithShell("/nonexistent/sh")},
		{"timeout", NewLocalProbe("sleep 5").WithTimeout(50 * time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.probe.Observe(context.Background(), "hostA")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrUnreachableHost)
		})
	}
}

func TestLocalProbeStderrInError(t *testing.T) {
	_, err := NewLocalProbe("echo 'cluster not running' >&2; exit 1").Observe(context.Background(), "hostA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster not running")
}

func TestParseLeader(t *testing.T) {
	assert.Equal(t, "hostB", ParseLeader("hostB\n"))
	assert.Equal(t, "hostB", ParseLeader("\thostB hostC"))
	assert.Equal(t, types.NoLeader, ParseLeader(""))
	assert.Equal(t, types.NoLeader, ParseLeader(" \n\t"))
	// Not validated
	assert.Equal(t, "!!garbage", ParseLeader("!!garbage\n"))
}

func TestNoLeaderProbe(t *testing.T) {
	leader, err := NoLeaderProbe{}.Observe(context.Background(), "hostA")
	require.NoError(t, err)
	assert.Equal(t, types.NoLeader, leader)
	assert.Equal(t, TypeNoLeader, NoLeaderProbe{}.Type())
}
