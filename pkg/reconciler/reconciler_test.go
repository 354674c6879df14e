package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/leadercheck/pkg/events"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	leaders map[types.ClusterID]string
	getErr  error
	setErr  error
	writes  []types.LeaderRecord
}

func newFakeStore(cluster types.ClusterID, leader string) *fakeStore {
	return &fakeStore{leaders: map[types.ClusterID]string{cluster: leader}}
}

func (s *fakeStore) ExpectedLeader(cluster types.ClusterID) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	leader, ok := s.leaders[cluster]
	if !ok {
		return "", &types.UnknownClusterError{Cluster: cluster}
	}
	return leader, nil
}

func (s *fakeStore) SetExpectedLeader(cluster types.ClusterID, host string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.writes = append(s.writes, types.LeaderRecord{Cluster: cluster, Hostname: host})
	s.leaders[cluster] = host
	return nil
}

type probeResult struct {
	leader string
	err    error
}

// fakeProber replays results in order and reports no leader once they run out
type fakeProber struct {
	results []probeResult
	hosts   []string
}

func sequence(leaders ...string) *fakeProber {
	p := &fakeProber{}
	for _, l := range leaders {
		p.results = append(p.results, probeResult{leader: l})
	}
	return p
}

func (p *fakeProber) Observe(ctx context.Context, host string) (string, error) {
	i := len(p.hosts)
	p.hosts = append(p.hosts, host)
	if i >= len(p.results) {
		return types.NoLeader, nil
	}
	return p.results[i].leader, p.results[i].err
}

type fakeNotifier struct {
	sent []types.Notification
	err  error
}

func (n *fakeNotifier) Notify(ctx context.Context, note types.Notification) error {
	n.sent = append(n.sent, note)
	return n.err
}

// instantTimer fires as soon as it starts and records every wait. When
// onStart is set it runs instead and the timer never fires.
type instantTimer struct {
	waits   []time.Duration
	c       chan time.Time
	onStart func()
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	if t.onStart != nil {
		t.onStart()
		return
	}
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

type harness struct {
	store    *fakeStore
	prober   *fakeProber
	notifier *fakeNotifier
	timer    *instantTimer
	rec      *Reconciler
}

func newHarness(cluster types.ClusterID, expected string, prober *fakeProber, cfg Config) *harness {
	h := &harness{
		store:    newFakeStore(cluster, expected),
		prober:   prober,
		notifier: &fakeNotifier{},
		timer:    newInstantTimer(),
	}
	h.rec = NewReconciler(h.store, h.prober, h.notifier, cfg).WithTimer(h.timer)
	return h
}

func TestReconcileUnchanged(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("hostA"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeUnchanged, out.Kind)
	assert.Equal(t, types.SeverityOK, out.Severity)
	assert.Equal(t, "hostA", out.OldLeader)
	assert.Equal(t, types.NoLeader, out.NewLeader)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, out.Waits)
	assert.NotEmpty(t, out.RunID)
	assert.Empty(t, h.store.writes)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.timer.waits)
}

func TestReconcileImmediateChange(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("hostB"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeChanged, out.Kind)
	assert.Equal(t, types.SeverityWarning, out.Severity)
	assert.Equal(t, "hostB", out.NewLeader)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, out.Waits)
	assert.Nil(t, out.NotifyErr)

	assert.Equal(t, "hostB", h.store.leaders["MST"])
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, types.Notification{
		Kind:      types.NotifyLeaderChanged,
		Cluster:   "MST",
		OldLeader: "hostA",
		NewLeader: "hostB",
	}, h.notifier.sent[0])
}

func TestReconcileResolvesOnLastRetry(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "", "", "", "", "hostB"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeChanged, out.Kind)
	assert.Equal(t, 6, out.Attempts)
	assert.Equal(t, 5, out.Waits)
	assert.Len(t, h.timer.waits, 5)
	assert.Equal(t, "hostB", h.store.leaders["MST"])
	assert.Len(t, h.notifier.sent, 1)
}

func TestReconcileUnresolvedAfterRetries(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "", "", "", "", "", "hostB"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeUnresolved, out.Kind)
	assert.Equal(t, types.SeverityCritical, out.Severity)
	assert.Equal(t, 2, out.Severity.ExitCode())
	assert.Equal(t, 6, out.Attempts)
	assert.Equal(t, 5, out.Waits)
	assert.Equal(t, []time.Duration{
		DefaultRetryDelay, DefaultRetryDelay, DefaultRetryDelay, DefaultRetryDelay, DefaultRetryDelay,
	}, h.timer.waits)

	// The seventh result is never requested
	assert.Len(t, h.prober.hosts, 6)
	for _, host := range h.prober.hosts {
		assert.Equal(t, "hostA", host)
	}

	assert.Empty(t, h.store.writes)
	assert.Equal(t, "hostA", h.store.leaders["MST"])

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, types.Notification{
		Kind:      types.NotifyNoLeader,
		Cluster:   "MST",
		OldLeader: "hostA",
		NewLeader: types.NoLeader,
	}, h.notifier.sent[0])
}

func TestReconcileExampleTwoWaits(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "", "hostB"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeChanged, out.Kind)
	assert.Equal(t, 2, out.Waits)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "hostB", h.store.leaders["MST"])
	assert.Equal(t, []types.LeaderRecord{{Cluster: "MST", Hostname: "hostB"}}, h.store.writes)

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, types.NotifyLeaderChanged, h.notifier.sent[0].Kind)
	assert.Equal(t, "hostA", h.notifier.sent[0].OldLeader)
	assert.Equal(t, "hostB", h.notifier.sent[0].NewLeader)
}

func TestReconcileUnreachableHost(t *testing.T) {
	unreachable := &types.UnreachableHostError{Host: "hostA", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		results  []probeResult
		attempts int
		waits    int
	}{
		{
			name:     "first probe",
			results:  []probeResult{{err: unreachable}, {leader: "hostB"}},
			attempts: 1,
			waits:    0,
		},
		{
			name:     "retried probe",
			results:  []probeResult{{leader: ""}, {leader: ""}, {err: unreachable}, {leader: "hostB"}},
			attempts: 3,
			waits:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("MST", "hostA", &fakeProber{results: tt.results}, DefaultConfig())

			out, err := h.rec.Reconcile(context.Background(), "MST")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrUnreachableHost)
			assert.Equal(t, types.SeverityUnknown, types.SeverityOf(err))

			require.NotNil(t, out)
			assert.Equal(t, types.OutcomeFailed, out.Kind)
			assert.Equal(t, types.SeverityUnknown, out.Severity)
			assert.Equal(t, tt.attempts, out.Attempts)
			assert.Equal(t, tt.waits, out.Waits)

			assert.Len(t, h.prober.hosts, tt.attempts)
			assert.Empty(t, h.store.writes)
			assert.Empty(t, h.notifier.sent)
		})
	}
}

func TestReconcileUnknownCluster(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("hostA"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "XYZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownCluster)
	assert.Equal(t, types.SeverityUnknown, out.Severity)
	assert.Zero(t, out.Attempts)
	assert.Empty(t, h.prober.hosts)
	assert.Empty(t, h.notifier.sent)
}

func TestReconcilePersistFailure(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("hostB"), DefaultConfig())
	h.store.setErr = &types.PersistError{Cluster: "MST", Path: "/etc/leader.conf", Err: errors.New("read-only file system")}

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPersist)
	assert.Equal(t, types.OutcomeFailed, out.Kind)
	assert.Equal(t, types.SeverityUnknown, out.Severity)
	assert.Equal(t, "hostA", h.store.leaders["MST"])
	assert.Empty(t, h.notifier.sent)
}

func TestReconcileDeliveryFailureKeepsOutcome(t *testing.T) {
	t.Run("change", func(t *testing.T) {
		h := newHarness("MST", "hostA", sequence("hostB"), DefaultConfig())
		h.notifier.err = &types.DeliveryError{Kind: types.NotifyLeaderChanged, Err: errors.New("relay down")}

		out, err := h.rec.Reconcile(context.Background(), "MST")
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeChanged, out.Kind)
		assert.Equal(t, types.SeverityWarning, out.Severity)
		assert.ErrorIs(t, out.NotifyErr, types.ErrDelivery)
		assert.Equal(t, "hostB", h.store.leaders["MST"])
	})

	t.Run("no leader", func(t *testing.T) {
		h := newHarness("MST", "hostA", sequence(), DefaultConfig())
		h.notifier.err = errors.New("plain transport error")

		out, err := h.rec.Reconcile(context.Background(), "MST")
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeUnresolved, out.Kind)
		assert.Equal(t, types.SeverityCritical, out.Severity)

		// Untyped failures are still reported as delivery errors
		assert.ErrorIs(t, out.NotifyErr, types.ErrDelivery)
	})
}

func TestReconcileNilNotifier(t *testing.T) {
	store := newFakeStore("MST", "hostA")
	r := NewReconciler(store, sequence("hostB"), nil, DefaultConfig()).WithTimer(newInstantTimer())

	out, err := r.Reconcile(context.Background(), "MST")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeChanged, out.Kind)
	assert.Nil(t, out.NotifyErr)
}

func TestReconcileZeroRetries(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "hostB"), Config{MaxRetries: 0, RetryDelay: time.Second})

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnresolved, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, out.Waits)
	assert.Empty(t, h.timer.waits)
	assert.Len(t, h.notifier.sent, 1)
}

func TestReconcileNegativeRetriesClamped(t *testing.T) {
	h := newHarness("MST", "hostA", sequence(""), Config{MaxRetries: -3})

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnresolved, out.Kind)
	assert.Equal(t, 1, out.Attempts)
}

func TestReconcileRetryFindsStoredLeader(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "hostA"), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	// A leader found after an empty report is always recorded as a change
	assert.Equal(t, types.OutcomeChanged, out.Kind)
	assert.Equal(t, "hostA", out.NewLeader)
	assert.Len(t, h.store.writes, 1)
	assert.Len(t, h.notifier.sent, 1)
}

func TestReconcileWaitInterrupted(t *testing.T) {
	h := newHarness("MST", "hostA", sequence("", "hostB"), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.timer.onStart = cancel

	out, err := h.rec.Reconcile(ctx, "MST")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.SeverityUnknown, out.Severity)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, out.Waits)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.store.writes)
}

func TestReconcileWaitsUseRetryDelay(t *testing.T) {
	cfg := Config{MaxRetries: 3, RetryDelay: 2 * time.Second}
	h := newHarness("MST", "hostA", sequence(), cfg)

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnresolved, out.Kind)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, 3, out.Waits)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, h.timer.waits)
}

func TestReconcileEmptyStoredLeaderUnchanged(t *testing.T) {
	h := newHarness("MST", types.NoLeader, sequence(""), DefaultConfig())

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnchanged, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, h.timer.waits)
	assert.Empty(t, h.notifier.sent)
}

func TestReconcilePublishesEvents(t *testing.T) {
	broker := events.NewBroker()
	collector := events.NewCollector()
	broker.Subscribe(collector.Handle)

	h := newHarness("MST", "hostA", sequence("", "", "hostB"), DefaultConfig())
	h.rec.WithPublisher(broker)

	out, err := h.rec.Reconcile(context.Background(), "MST")
	require.NoError(t, err)

	evs := collector.Drain(out.RunID)
	var got []events.EventType
	for _, ev := range evs {
		assert.Equal(t, out.RunID, ev.RunID)
		assert.Equal(t, "MST", ev.Cluster)
		got = append(got, ev.Type)
	}

	assert.Equal(t, []events.EventType{
		events.EventRunStarted,
		events.EventProbeEmpty,
		events.EventRetryWait,
		events.EventProbeEmpty,
		events.EventRetryWait,
		events.EventStoreUpdated,
		events.EventLeaderChanged,
		events.EventNotifySent,
	}, got)
}

func TestReconcileRecordsMetrics(t *testing.T) {
	h := newHarness("METRICS", "hostA", sequence("", "hostB"), DefaultConfig())

	_, err := h.rec.Reconcile(context.Background(), "METRICS")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReconciliationsTotal.WithLabelValues("METRICS", string(types.OutcomeChanged))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LeaderChangesTotal.WithLabelValues("METRICS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RetryWaitsTotal.WithLabelValues("METRICS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProbeAttemptsTotal.WithLabelValues("METRICS", "empty")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProbeAttemptsTotal.WithLabelValues("METRICS", "leader")))
	assert.Equal(t, float64(types.SeverityWarning), testutil.ToFloat64(metrics.LastRunSeverity.WithLabelValues("METRICS")))
}

func TestReconcileContextDoneStopsRetries(t *testing.T) {
	store := newFakeStore("MST", "hostA")
	prober := sequence("", "hostB")
	// System timer with an hour-long delay; the done context must end the
	// run before any wait
	r := NewReconciler(store, prober, &fakeNotifier{}, Config{MaxRetries: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Reconcile(ctx, "MST")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.OutcomeFailed, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, out.Waits)
	assert.Empty(t, store.writes)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.RetryDelay)

	b := cfg.backOff(context.Background())
	for i := 0; i < 5; i++ {
		assert.Equal(t, 30*time.Second, b.NextBackOff())
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestBackOffClampsNegativeValues(t *testing.T) {
	b := Config{MaxRetries: -1, RetryDelay: -time.Second}.backOff(context.Background())
	assert.Equal(t, backoff.Stop, b.NextBackOff())

	b = Config{MaxRetries: 1, RetryDelay: -time.Second}.backOff(context.Background())
	assert.Equal(t, time.Duration(0), b.NextBackOff())
}
