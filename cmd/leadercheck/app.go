package main

import (
	"context"
	"errors"
	"io/fs"

	"github.com/cuemby/leadercheck/pkg/config"
	"github.com/cuemby/leadercheck/pkg/events"
	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/notify"
	"github.com/cuemby/leadercheck/pkg/probe"
	"github.com/cuemby/leadercheck/pkg/reconciler"
	"github.com/cuemby/leadercheck/pkg/settings"
	"github.com/cuemby/leadercheck/pkg/storage"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/rs/zerolog"
)

// app wires the collaborators of one leadercheck process
type app struct {
	settings   *settings.Settings
	store      *config.Store
	broker     *events.Broker
	runs       *events.Collector
	reconciler *reconciler.Reconciler
	logger     zerolog.Logger
}

func newApp(s *settings.Settings, simulateNoLeader bool) *app {
	a := &app{
		settings: s,
		store:    config.NewStore(s.Store),
		broker:   events.NewBroker(),
		runs:     events.NewCollector(),
		logger:   log.WithComponent("cli"),
	}

	a.broker.Subscribe(a.runs.Handle)
	a.broker.Subscribe(func(ev *events.Event) {
		a.logger.Debug().
			Str("event", string(ev.Type)).
			Str("run_id", ev.RunID).
			Str("cluster", ev.Cluster).
			Interface("metadata", ev.Metadata).
			Msg(ev.Message)
	})

	cfg := reconciler.Config{
		MaxRetries: s.Retry.MaxRetries,
		RetryDelay: s.Retry.Delay,
	}
	prober := newProber(s, simulateNoLeader)
	a.logger.Debug().
		Str("probe", string(prober.Type())).
		Str("command", s.Probe.Command).
		Msg("Probe configured")

	a.reconciler = reconciler.NewReconciler(a.store, prober, newNotifier(s), cfg).
		WithPublisher(a.broker)

	return a
}

func newProber(s *settings.Settings, simulateNoLeader bool) probe.Prober {
	if simulateNoLeader {
		return probe.NoLeaderProbe{}
	}

	if s.Probe.Mode == string(probe.TypeLocal) {
		return probe.NewLocalProbe(s.Probe.Command).WithTimeout(s.Probe.Timeout)
	}

	p := probe.NewSSHProbe(s.Probe.Command).
		WithUser(s.Probe.User).
		WithPort(s.Probe.Port).
		WithAgent(s.Probe.UseAgent).
		WithTimeout(s.Probe.Timeout)
	if len(s.Probe.KnownHosts) > 0 {
		p.WithKnownHosts(s.Probe.KnownHosts...)
	}
	if len(s.Probe.IdentityFiles) > 0 {
		p.WithIdentityFiles(s.Probe.IdentityFiles...)
	}
	return p
}

func newNotifier(s *settings.Settings) reconciler.Notifier {
	if !s.Notify.Enabled {
		return nil
	}
	return notify.NewMailNotifier(s.Notify.Relay).
		WithSender(s.Notify.Sender, s.Notify.Domain).
		WithRecipients(s.Notify.ChangeRecipients, s.Notify.NoLeaderRecipients)
}

// openHistory takes the run lock. A nil store means history is disabled,
// either by settings or because the user running the check cannot write
// the database.
func (a *app) openHistory() (*storage.BoltStore, error) {
	if a.settings.HistoryDB == "" {
		return nil, nil
	}

	history, err := storage.NewBoltStore(a.settings.HistoryDB, a.settings.LockTimeout)
	if errors.Is(err, fs.ErrPermission) {
		a.logger.Warn().
			Err(err).
			Str("path", a.settings.HistoryDB).
			Msg("History database is not writable, running without history or run lock")
		return nil, nil
	}
	return history, err
}

// run performs one locked reconciliation of cluster and records it
func (a *app) run(ctx context.Context, cluster types.ClusterID) (*types.Outcome, error) {
	history, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if history != nil {
		defer history.Close()
	}

	out, runErr := a.reconciler.Reconcile(ctx, cluster)
	evs := a.runs.Drain(out.RunID)

	if history != nil {
		a.record(history, storage.NewRunRecord(out, runErr, evs))
	}
	return out, runErr
}

// record saves a run; history failures never change the run's result
func (a *app) record(history storage.Store, rec *storage.RunRecord) {
	if err := history.SaveRun(rec); err != nil {
		a.logger.Error().Err(err).Str("run_id", rec.ID).Msg("Failed to record run history")
		return
	}

	if a.settings.HistoryRetain > 0 {
		if n, err := history.PruneRuns(a.settings.HistoryRetain); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to prune run history")
		} else if n > 0 {
			a.logger.Debug().Int("deleted", n).Msg("Pruned run history")
		}
	}
}

// isRunLocked reports whether err means another run holds the lock
func isRunLocked(err error) bool {
	return errors.Is(err, types.ErrRunLocked)
}
