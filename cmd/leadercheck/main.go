package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/settings"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// exitError carries a monitoring exit status out of a command whose status
// line was already printed
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

// execute runs the CLI and returns the process exit status. Every failure
// that did not print its own status line is reported as UNKNOWN.
func execute(args []string, stdout io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintln(cmd.OutOrStdout(), unknownLine(err))
		return types.SeverityUnknown.ExitCode()
	}
	return 0
}

func newRootCmd() *cobra.Command {
	v := settings.New()

	rootCmd := &cobra.Command{
		Use:   "leadercheck -c CLUSTER",
		Short: "Detect leader changes in an active/standby cluster",
		Long: `leadercheck asks a cluster which node it currently reports as leader,
compares it with the expected leader stored in the config store, and
updates the store and alerts operators when leadership moved.

It is meant to run from a monitoring scheduler. The one-line status is
printed on stdout and the exit status follows the plugin convention:
0 OK, 1 WARNING (leader changed), 2 CRITICAL (no leader after retries),
3 UNKNOWN (usage or fatal error).`,
		Example: `  # Check the test cluster
  leadercheck -c mst

  # Exercise the no-leader alert path
  leadercheck -c mst --simulate-no-leader --retry-delay 1s`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, v)
		},
	}

	rootCmd.SetVersionTemplate(versionString())

	pf := rootCmd.PersistentFlags()
	pf.String("settings", "", "Settings file (default "+settings.DefaultSettingsFile+" when present)")
	pf.String("store", "", "Config store holding the expected leader per cluster")
	pf.String("history-db", "", "Run history database and run lock, in a directory the check's user can write (empty disables)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "Log in JSON format")
	pf.Bool("simulate-no-leader", false, "Report no leader on every probe instead of querying the cluster")

	f := rootCmd.Flags()
	f.StringP("cluster", "c", "", "Cluster to check, e.g. 'mst' or 'mss' (case-insensitive)")
	f.String("metrics-textfile", "", "Write Prometheus metrics to this node_exporter textfile after the run")
	f.Int("max-retries", 0, "Re-probes while the cluster reports no leader")
	f.Duration("retry-delay", 0, "Wait before each re-probe")

	bindFlag(v, "store", pf.Lookup("store"))
	bindFlag(v, "history_db", pf.Lookup("history-db"))
	bindFlag(v, "log.level", pf.Lookup("log-level"))
	bindFlag(v, "log.json", pf.Lookup("log-json"))
	bindFlag(v, "metrics_textfile", f.Lookup("metrics-textfile"))
	bindFlag(v, "retry.max_retries", f.Lookup("max-retries"))
	bindFlag(v, "retry.delay", f.Lookup("retry-delay"))

	rootCmd.AddCommand(newHistoryCmd(v))
	rootCmd.AddCommand(newWatchCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bindFlag makes a flag override the settings key, but only when it is set
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	_ = v.BindPFlag(key, flag)
}

func versionString() string {
	return fmt.Sprintf("leadercheck version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionString())
		},
	}
}

// loadSettings reads settings and initializes logging
func loadSettings(cmd *cobra.Command, v *viper.Viper) (*settings.Settings, error) {
	file, _ := cmd.Flags().GetString("settings")

	s, err := settings.Load(v, file)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(s.Log.Level),
		JSONOutput: s.Log.JSON,
	})
	return s, nil
}
