package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile clusters on a schedule and serve metrics",
		Long: `Run reconciliations on a cron schedule and serve /metrics, /health and
/ready over HTTP. Clusters are reconciled one after another; a tick is
skipped while the previous one is still running.

Examples:
  # Every cluster in the config store, every five minutes
  leadercheck watch

  # Only MST, every minute
  leadercheck watch --clusters mst --schedule "* * * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, v)
		},
	}

	f := cmd.Flags()
	f.String("schedule", "", "Cron schedule of reconciliations (default \"@every 5m\")")
	f.String("listen", "", "Address serving /metrics, /health and /ready (default \":9273\")")
	f.StringSlice("clusters", nil, "Clusters to watch (default every configured cluster)")

	bindFlag(v, "watch.schedule", f.Lookup("schedule"))
	bindFlag(v, "watch.listen", f.Lookup("listen"))
	bindFlag(v, "watch.clusters", f.Lookup("clusters"))

	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	s, err := loadSettings(cmd, v)
	if err != nil {
		return err
	}
	simulate, _ := cmd.Flags().GetBool("simulate-no-leader")

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(s, simulate)

	clusters, err := watchedClusters(a, s.Watch.Clusters)
	if err != nil {
		return err
	}
	names := make([]string, len(clusters))
	for i, c := range clusters {
		names[i] = c.String()
	}

	metrics.SetVersion(Version)
	metrics.SetWatched(names)

	collector := metrics.NewCollector(a.store, s.Watch.RefreshInterval)
	collector.Start()
	defer collector.Stop()

	cronLog := cronLogger{logger: a.logger}
	job := cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := job.AddFunc(s.Watch.Schedule, func() { a.runAll(ctx, clusters) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.Watch.Schedule, err)
	}

	server := &http.Server{
		Addr:              s.Watch.Listen,
		Handler:           metrics.NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	job.Start()
	a.logger.Info().
		Strs("clusters", names).
		Str("schedule", s.Watch.Schedule).
		Str("listen", s.Watch.Listen).
		Msg("Watching clusters")

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
	}

	// Waits for a running tick; its retry wait ends with ctx
	<-job.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}

	return runErr
}

// watchedClusters resolves the configured selectors, or every section of
// the config store when none are configured
func watchedClusters(a *app, selectors []string) ([]types.ClusterID, error) {
	if len(selectors) == 0 {
		clusters, err := a.store.Clusters()
		if err != nil {
			return nil, err
		}
		if len(clusters) == 0 {
			return nil, fmt.Errorf("no clusters configured in %s", a.store.Path())
		}
		return clusters, nil
	}

	clusters := make([]types.ClusterID, 0, len(selectors))
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			clusters = append(clusters, types.ClusterID(strings.ToUpper(sel)))
		}
	}
	if len(clusters) == 0 {
		return nil, errors.New("no clusters to watch")
	}
	return clusters, nil
}

// runAll reconciles each cluster in turn and publishes the result to the
// health endpoint
func (a *app) runAll(ctx context.Context, clusters []types.ClusterID) {
	for _, cluster := range clusters {
		if ctx.Err() != nil {
			return
		}

		out, err := a.run(ctx, cluster)
		switch {
		case out == nil && isRunLocked(err):
			logger := log.WithCluster(cluster.String())
			logger.Warn().Err(err).Msg("Skipping run, another run holds the lock")
			continue
		case out == nil:
			metrics.UpdateCluster(cluster.String(), types.SeverityUnknown.String(), "", err.Error())
			continue
		}

		leader := out.OldLeader
		if out.Kind == types.OutcomeChanged {
			leader = out.NewLeader
		}
		metrics.UpdateCluster(cluster.String(), out.Severity.String(), leader, statusLine(out, err))
	}
}

// cronLogger routes cron's logging through zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
