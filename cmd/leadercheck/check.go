package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/metrics"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCheck performs one reconciliation and reports it to the monitoring
// framework
func runCheck(cmd *cobra.Command, v *viper.Viper) error {
	cluster, _ := cmd.Flags().GetString("cluster")
	if strings.TrimSpace(cluster) == "" {
		return errors.New("missing cluster, use '-h' or '--help' for options")
	}
	// Selectors are case-insensitive; sections are upper case
	id := types.ClusterID(strings.ToUpper(strings.TrimSpace(cluster)))

	s, err := loadSettings(cmd, v)
	if err != nil {
		return err
	}
	simulate, _ := cmd.Flags().GetBool("simulate-no-leader")

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(s, simulate)
	out, runErr := a.run(ctx, id)

	if s.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(s.MetricsTextfile); err != nil {
			log.Errorf("Failed to write metrics textfile", err)
		}
	}

	if out == nil {
		// The run never started
		return fmt.Errorf("cluster %s: %w", id, runErr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), statusLine(out, runErr))

	if code := out.Severity.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
