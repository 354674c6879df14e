package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHProbe runs the leader query on a remote host over SSH. Host keys are
// verified against known_hosts files and authentication uses the SSH agent
// and unencrypted private keys only, so a run never blocks on a prompt.
type SSHProbe struct {
	// Command is the remote command printing the current leader
	Command string

	// User is the remote login (default: root)
	User string

	// Port is the SSH port (default: 22)
	Port int

	// KnownHosts lists known_hosts files. Missing files are skipped.
	KnownHosts []string

	// IdentityFiles lists private key files. Missing or passphrase
	// protected files are skipped.
	IdentityFiles []string

	// UseAgent enables authentication through SSH_AUTH_SOCK
	UseAgent bool

	// Timeout bounds the TCP connect, the handshake and the command
	Timeout time.Duration

	logger zerolog.Logger
}

// NewSSHProbe creates a new SSH probe with the user's default known_hosts
// and identity files
func NewSSHProbe(command string) *SSHProbe {
	home, _ := os.UserHomeDir()
	return &SSHProbe{
		Command: command,
		User:    "root",
		Port:    22,
		KnownHosts: []string{
			filepath.Join(home, ".ssh", "known_hosts"),
			"/etc/ssh/ssh_known_hosts",
		},
		IdentityFiles: []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_ecdsa"),
			filepath.Join(home, ".ssh", "id_rsa"),
		},
		UseAgent: true,
		Timeout:  30 * time.Second,
		logger:   log.WithComponent("probe"),
	}
}

// Observe connects to host, runs the query and returns the reported leader
func (p *SSHProbe) Observe(ctx context.Context, host string) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ProbeDuration)

	out, err := p.run(ctx, host)
	if err != nil {
		return "", &types.UnreachableHostError{Host: host, Err: err}
	}

	leader := ParseLeader(out)
	p.logger.Debug().
		Str("host", host).
		Str("observed", leader).
		Dur("duration", timer.Duration()).
		Msg("Remote leader query finished")
	return leader, nil
}

func (p *SSHProbe) run(ctx context.Context, host string) (string, error) {
	if host == "" {
		return "", errors.New("no host to connect to")
	}

	config, cleanup, err := p.clientConfig()
	if err != nil {
		return "", err
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(p.Port))
	dialer := &net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(runCtx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}

	// The handshake has no context, bound it with a deadline
	if deadline, ok := runCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("handshake: %w", err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	// Closing the client unblocks Run when the context ends first
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			client.Close()
		case <-done:
		}
	}()

	if err := session.Run(p.Command); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("run %q: %w", p.Command, runCtx.Err())
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("run %q: %w, stderr: %s", p.Command, err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("run %q: %w", p.Command, err)
	}

	return stdout.String(), nil
}

func (p *SSHProbe) clientConfig() (*ssh.ClientConfig, func(), error) {
	hostKeys, err := p.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}

	var (
		auth    []ssh.AuthMethod
		closers []func()
	)

	if p.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				p.logger.Debug().Err(err).Str("socket", sock).Msg("SSH agent unavailable")
			} else {
				closers = append(closers, func() { conn.Close() })
				auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if signers := p.loadSigners(); len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(auth) == 0 {
		cleanup()
		return nil, nil, errors.New("no usable SSH credentials (agent or identity files)")
	}

	return &ssh.ClientConfig{
		User:            p.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         p.Timeout,
	}, cleanup, nil
}

func (p *SSHProbe) hostKeyCallback() (ssh.HostKeyCallback, error) {
	var files []string
	for _, f := range p.KnownHosts {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no known_hosts file found in %v", p.KnownHosts)
	}

	cb, err := knownhosts.New(files...)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

func (p *SSHProbe) loadSigners() []ssh.Signer {
	var signers []ssh.Signer
	for _, f := range p.IdentityFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}

		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				p.logger.Debug().Str("file", f).Msg("Skipping passphrase protected key")
			} else {
				p.logger.Warn().Err(err).Str("file", f).Msg("Skipping unreadable private key")
			}
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}

// Type returns the probe type
func (p *SSHProbe) Type() Type {
	return TypeSSH
}

// WithUser sets the remote login
func (p *SSHProbe) WithUser(user string) *SSHProbe {
	p.User = user
	return p
}

// WithPort sets the SSH port; non-positive values keep the current port
func (p *SSHProbe) WithPort(port int) *SSHProbe {
	if port > 0 {
		p.Port = port
	}
	return p
}

// WithKnownHosts replaces the known_hosts files
func (p *SSHProbe) WithKnownHosts(files ...string) *SSHProbe {
	p.KnownHosts = files
	return p
}

// WithIdentityFiles replaces the private key files
func (p *SSHProbe) WithIdentityFiles(files ...string) *SSHProbe {
	p.IdentityFiles = files
	return p
}

// WithAgent enables or disables SSH agent authentication
func (p *SSHProbe) WithAgent(enabled bool) *SSHProbe {
	p.UseAgent = enabled
	return p
}

// WithTimeout sets the connection and command timeout; non-positive
// values keep the current timeout
func (p *SSHProbe) WithTimeout(timeout time.Duration) *SSHProbe {
	if timeout > 0 {
		p.Timeout = timeout
	}
	return p
}
