package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/leadercheck/pkg/events"
	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store holds the expected leader of each cluster
type Store interface {
	ExpectedLeader(cluster types.ClusterID) (string, error)
	SetExpectedLeader(cluster types.ClusterID, host string) error
}

// Prober reports the leader a cluster currently has, or types.NoLeader
type Prober interface {
	Observe(ctx context.Context, host string) (string, error)
}

// Notifier alerts operators
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// Reconciler compares the leader a cluster reports with the stored one and
// brings the store up to date
type Reconciler struct {
	store    Store
	prober   Prober
	notifier Notifier
	config   Config
	timer    backoff.Timer
	events   events.Publisher
	now      func() time.Time
	logger   zerolog.Logger
}

// NewReconciler creates a new reconciler. A nil notifier disables alerts.
func NewReconciler(store Store, prober Prober, notifier Notifier, cfg Config) *Reconciler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Reconciler{
		store:    store,
		prober:   prober,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
		logger:   log.WithComponent("reconciler"),
	}
}

// WithTimer replaces the timer behind retry waits. A nil timer uses the
// system clock.
func (r *Reconciler) WithTimer(t backoff.Timer) *Reconciler {
	r.timer = t
	return r
}

// WithPublisher sends run lifecycle events to p
func (r *Reconciler) WithPublisher(p events.Publisher) *Reconciler {
	r.events = p
	return r
}

// Reconcile runs one reconciliation for cluster. The returned outcome is
// never nil. On a fatal error it has Kind OutcomeFailed and severity
// Unknown, and the error is returned alongside it.
func (r *Reconciler) Reconcile(ctx context.Context, cluster types.ClusterID) (*types.Outcome, error) {
	out := &types.Outcome{
		RunID:     newRunID(),
		Cluster:   cluster,
		StartedAt: r.now(),
	}
	logger := log.ForRun(r.logger, out.RunID, cluster.String())
	timer := metrics.NewTimer()

	r.publish(out, events.EventRunStarted, "", nil)
	logger.Debug().Msg("Reconciliation started")

	err := r.reconcile(ctx, out, logger)
	out.Duration = timer.Duration()

	if err != nil {
		out.Kind = types.OutcomeFailed
		out.Severity = types.SeverityUnknown
		r.record(out, timer)
		r.publish(out, events.EventRunFailed, err.Error(), nil)
		logger.Error().Err(err).Int("attempts", out.Attempts).Msg("Reconciliation failed")
		return out, err
	}

	out.Severity = out.Kind.Severity()
	r.record(out, timer)
	logger.Info().
		Str("outcome", string(out.Kind)).
		Str("old_leader", out.OldLeader).
		Str("new_leader", out.NewLeader).
		Int("attempts", out.Attempts).
		Int("waits", out.Waits).
		Dur("duration", out.Duration).
		Msg("Reconciliation finished")
	return out, nil
}

func (r *Reconciler) reconcile(ctx context.Context, out *types.Outcome, logger zerolog.Logger) error {
	expected, err := r.store.ExpectedLeader(out.Cluster)
	if err != nil {
		return fmt.Errorf("failed to read expected leader: %w", err)
	}
	out.OldLeader = expected

	// Every probe targets the stored leader, including the retries
	observed, err := r.observe(ctx, out, expected, logger)
	if err != nil {
		return err
	}

	if observed == expected && out.Waits == 0 {
		out.Kind = types.OutcomeUnchanged
		r.publish(out, events.EventLeaderUnchanged, "", map[string]string{"leader": expected})
		return nil
	}

	if observed == types.NoLeader {
		out.Kind = types.OutcomeUnresolved
		r.publish(out, events.EventLeaderMissing, "no leader reported after retries", map[string]string{
			"attempts": strconv.Itoa(out.Attempts),
		})
		logger.Warn().Int("attempts", out.Attempts).Msg("Cluster reported no leader after all retries")
		r.notify(ctx, out, types.Notification{
			Kind:      types.NotifyNoLeader,
			Cluster:   out.Cluster,
			OldLeader: expected,
			NewLeader: types.NoLeader,
		}, logger)
		return nil
	}

	// A leader found by a retry is a change even when it is the stored host
	if err := r.store.SetExpectedLeader(out.Cluster, observed); err != nil {
		logger.Error().Err(err).Str("leader", observed).Msg("Failed to persist new leader")
		return fmt.Errorf("failed to update expected leader: %w", err)
	}
	out.NewLeader = observed
	out.Kind = types.OutcomeChanged
	r.publish(out, events.EventStoreUpdated, "", map[string]string{"leader": observed})

	metrics.LeaderChangesTotal.WithLabelValues(out.Cluster.String()).Inc()
	r.publish(out, events.EventLeaderChanged, "", map[string]string{
		"old_leader": expected,
		"new_leader": observed,
	})
	logger.Warn().Str("old_leader", expected).Str("new_leader", observed).Msg("Leader changed")

	r.notify(ctx, out, types.Notification{
		Kind:      types.NotifyLeaderChanged,
		Cluster:   out.Cluster,
		OldLeader: expected,
		NewLeader: observed,
	}, logger)
	return nil
}

// observe probes host until it reports a leader or the retries run out.
// It returns types.NoLeader when they run out.
func (r *Reconciler) observe(ctx context.Context, out *types.Outcome, host string, logger zerolog.Logger) (string, error) {
	var (
		observed string
		probeErr error
		delay    time.Duration
	)

	operation := func() error {
		if out.Attempts > 0 {
			out.Waits++
			metrics.RetryWaitsTotal.WithLabelValues(out.Cluster.String()).Inc()
			r.publish(out, events.EventRetryWait, "", map[string]string{
				"retry": strconv.Itoa(out.Waits),
				"delay": delay.String(),
			})
		}

		leader, err := r.probe(ctx, out, host)
		if err != nil {
			probeErr = err
			return backoff.Permanent(err)
		}
		// A first probe matching the stored leader ends the run, even when
		// both are empty
		firstMatch := out.Attempts == 1 && leader == host
		if leader == types.NoLeader && !firstMatch {
			return errNoLeaderYet
		}
		observed = leader
		return nil
	}

	waiting := func(_ error, next time.Duration) {
		delay = next
		logger.Info().
			Int("retry", out.Waits+1).
			Int("max_retries", r.config.MaxRetries).
			Dur("delay", next).
			Msg("No leader reported, waiting before retry")
	}

	err := backoff.RetryNotifyWithTimer(operation, r.config.backOff(ctx), waiting, r.timer)
	switch {
	case err == nil:
		return observed, nil
	case probeErr != nil:
		return types.NoLeader, probeErr
	case errors.Is(err, errNoLeaderYet):
		return types.NoLeader, nil
	default:
		return types.NoLeader, fmt.Errorf("retry wait interrupted: %w", err)
	}
}

func (r *Reconciler) probe(ctx context.Context, out *types.Outcome, host string) (string, error) {
	out.Attempts++
	cluster := out.Cluster.String()
	attempt := strconv.Itoa(out.Attempts)

	observed, err := r.prober.Observe(ctx, host)
	if err != nil {
		metrics.ProbeAttemptsTotal.WithLabelValues(cluster, "error").Inc()
		r.publish(out, events.EventProbeFailed, err.Error(), map[string]string{"attempt": attempt, "host": host})
		return types.NoLeader, fmt.Errorf("probe %s of %s failed: %w", attempt, host, err)
	}

	if observed == types.NoLeader {
		metrics.ProbeAttemptsTotal.WithLabelValues(cluster, "empty").Inc()
		r.publish(out, events.EventProbeEmpty, "", map[string]string{"attempt": attempt, "host": host})
		return types.NoLeader, nil
	}

	metrics.ProbeAttemptsTotal.WithLabelValues(cluster, "leader").Inc()
	return observed, nil
}

// notify sends n and records a delivery failure on out. It never changes
// the outcome.
func (r *Reconciler) notify(ctx context.Context, out *types.Outcome, n types.Notification, logger zerolog.Logger) {
	if r.notifier == nil {
		logger.Debug().Str("kind", string(n.Kind)).Msg("Notifications disabled")
		return
	}

	kind := string(n.Kind)
	if err := r.notifier.Notify(ctx, n); err != nil {
		if !errors.Is(err, types.ErrDelivery) {
			err = &types.DeliveryError{Kind: n.Kind, Err: err}
		}
		out.NotifyErr = err
		metrics.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
		r.publish(out, events.EventNotifyFailed, err.Error(), map[string]string{"kind": kind})
		logger.Error().Err(err).Str("kind", kind).Msg("Failed to send notification")
		return
	}

	metrics.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
	r.publish(out, events.EventNotifySent, "", map[string]string{"kind": kind})
}

func (r *Reconciler) record(out *types.Outcome, timer *metrics.Timer) {
	cluster := out.Cluster.String()
	metrics.ReconciliationsTotal.WithLabelValues(cluster, string(out.Kind)).Inc()
	timer.ObserveDurationVec(metrics.ReconciliationDuration, cluster)
	metrics.LastRunSeverity.WithLabelValues(cluster).Set(float64(out.Severity))
	metrics.LastRunTimestamp.WithLabelValues(cluster).Set(float64(r.now().Unix()))
}

func (r *Reconciler) publish(out *types.Outcome, typ events.EventType, msg string, meta map[string]string) {
	if r.events == nil {
		return
	}
	r.events.Publish(&events.Event{
		Type:     typ,
		RunID:    out.RunID,
		Cluster:  out.Cluster.String(),
		Message:  msg,
		Metadata: meta,
	})
}

// newRunID returns a time-ordered run identifier
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
