package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/rs/zerolog"
)

// LocalProbe runs the leader query through the local shell. It is used when
// leadercheck runs on a cluster member and the host argument only names the
// expected leader for logging.
type LocalProbe struct {
	// Command is the shell command printing the current leader
	Command string

	// Timeout is the command execution timeout (default: 30 seconds)
	Timeout time.Duration

	// Shell runs Command (default: /bin/sh)
	Shell string

	logger zerolog.Logger
}

// NewLocalProbe creates a new local probe
func NewLocalProbe(command string) *LocalProbe {
	return &LocalProbe{
		Command: command,
		Timeout: 30 * time.Second,
		Shell:   "/bin/sh",
		logger:  log.WithComponent("probe"),
	}
}

// Observe runs the query and returns the reported leader
func (p *LocalProbe) Observe(ctx context.Context, host string) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ProbeDuration)

	if strings.TrimSpace(p.Command) == "" {
		return "", &types.UnreachableHostError{Host: host, Err: fmt.Errorf("no command specified")}
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.Shell, "-c", p.Command)
	// Children of the shell may keep the output pipes open after a kill
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			err = fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", &types.UnreachableHostError{Host: host, Err: err}
	}

	leader := ParseLeader(stdout.String())
	p.logger.Debug().
		Str("expected", host).
		Str("observed", leader).
		Dur("duration", timer.Duration()).
		Msg("Local leader query finished")
	return leader, nil
}

// Type returns the probe type
func (p *LocalProbe) Type() Type {
	return TypeLocal
}

// WithTimeout sets the execution timeout; non-positive values keep the
// current timeout
func (p *LocalProbe) WithTimeout(timeout time.Duration) *LocalProbe {
	if timeout > 0 {
		p.Timeout = timeout
	}
	return p
}

// WithShell sets the shell used to run the command
func (p *LocalProbe) WithShell(shell string) *LocalProbe {
	p.Shell = shell
	return p
}
