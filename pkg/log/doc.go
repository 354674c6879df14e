/*
Package log provides structured logging for leadercheck using zerolog.

The package wraps a global zerolog.Logger with component-specific child
loggers, configurable levels and console or JSON output. Logs go to stderr by
default: leadercheck is usually run by a monitoring framework that reads the
first line of stdout as the check status, so diagnostic output must not mix
with it.

# Log Levels

  - Debug: every probe attempt and retry wait
  - Info: run start, outcome, store updates
  - Warn: leader changes, missing leader, retry exhaustion
  - Error: fatal run errors and failed notifications

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Component Loggers:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("cluster", "MST").Msg("Leader unchanged")

	// Run context
	runLog := log.ForRun(logger, runID, "MST")
	runLog.Warn().Str("old", "hostA").Str("new", "hostB").Msg("Leader changed")

Errors:

	log.Logger.Error().
		Err(err).
		Str("cluster", "MST").
		Msg("Failed to persist expected leader")
*/
package log
