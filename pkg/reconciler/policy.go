package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries is the number of re-probes after an empty first probe
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the wait before each re-probe
	DefaultRetryDelay = 30 * time.Second
)

// errNoLeaderYet makes the retry loop probe again
var errNoLeaderYet = errors.New("cluster reported no leader")

// Config bounds the wait for a leader while the cluster reports none.
// The first probe is always made; up to MaxRetries re-probes follow, each
// after RetryDelay, so a run makes at most MaxRetries+1 probes and
// MaxRetries waits before giving up.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the standard policy: 5 retries, 30 seconds apart
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// backOff returns the wait schedule of one run. It stops once ctx is done.
func (c Config) backOff(ctx context.Context) backoff.BackOff {
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := c.RetryDelay
	if delay < 0 {
		delay = 0
	}

	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		ctx,
	)
}
