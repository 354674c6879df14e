package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/leadercheck/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded reconciliation runs",
		Long: `List recorded reconciliation runs, newest first.

Examples:
  # Last 20 runs of every cluster
  leadercheck history

  # Last 5 runs of MST with their events
  leadercheck history -c mst -n 5 -o yaml

  # One run by id
  leadercheck history --run 0192f4c1-7d2e-7a40-9b1e-3f6c2d8a9e01 -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, v)
		},
	}

	cmd.Flags().StringP("cluster", "c", "", "Only list runs of this cluster")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringP("output", "o", "table", "Output format (table, yaml)")
	cmd.Flags().String("run", "", "Show only the run with this id")

	return cmd
}

func runHistory(cmd *cobra.Command, v *viper.Viper) error {
	cluster, _ := cmd.Flags().GetString("cluster")
	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")
	runID, _ := cmd.Flags().GetString("run")

	if output != "table" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	s, err := loadSettings(cmd, v)
	if err != nil {
		return err
	}
	if s.HistoryDB == "" {
		return errors.New("run history is disabled")
	}

	var runs []*storage.RunRecord
	store, err := storage.OpenReadOnly(s.HistoryDB, s.LockTimeout)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Nothing recorded yet
	case err != nil:
		return err
	default:
		defer store.Close()
		runs, err = listRuns(store, runID, strings.ToUpper(cluster), limit)
		if err != nil {
			return err
		}
	}
	if runID != "" && len(runs) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}

	if output == "yaml" {
		return writeHistoryYAML(cmd.OutOrStdout(), runs)
	}
	return writeHistoryTable(cmd.OutOrStdout(), runs)
}

func listRuns(store storage.Store, runID, cluster string, limit int) ([]*storage.RunRecord, error) {
	if runID == "" {
		runs, err := store.ListRuns(cluster, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		return runs, nil
	}

	run, err := store.GetRun(runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return []*storage.RunRecord{run}, nil
}

func writeHistoryYAML(w io.Writer, runs []*storage.RunRecord) error {
	if runs == nil {
		runs = []*storage.RunRecord{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(runs); err != nil {
		return fmt.Errorf("failed to encode runs: %w", err)
	}
	return enc.Close()
}

func writeHistoryTable(w io.Writer, runs []*storage.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCLUSTER\tSEVERITY\tOUTCOME\tOLD LEADER\tNEW LEADER\tPROBES\tWAITS\tDURATION\tERROR")
	for _, r := range runs {
		errText := r.Error
		if errText == "" && r.NotifyError != "" {
			errText = "notify: " + r.NotifyError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Cluster,
			r.Severity,
			r.Outcome,
			dash(r.OldLeader),
			dash(r.NewLeader),
			r.Attempts,
			r.Waits,
			r.Duration.Round(time.Millisecond),
			dash(errText),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
