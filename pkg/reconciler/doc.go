/*
Package reconciler detects leader changes in an active/standby cluster and
keeps the stored expected leader in step with what the cluster reports.

One call to Reconcile is one run. It reads the expected leader, asks the
cluster who leads now, and ends in one of three outcomes or a fatal error.

# State Machine

	       ┌──────────────────────┐
	       │ read expected leader │──── error ───────────────► FAILED (UNKNOWN)
	       └──────────┬───────────┘
	                  ▼
	       ┌──────────────────────┐
	       │ probe expected host  │──── unreachable ─────────► FAILED (UNKNOWN)
	       └──────────┬───────────┘
	     same host    │   other host      empty
	  ┌───────────────┼──────────────┐──────────────┐
	  ▼               │              ▼              ▼
	UNCHANGED (OK)    │     ┌─────────────┐   ┌──────────────────┐
	                  │     │ store + mail│◄──│ wait, re-probe   │
	                  │     └──────┬──────┘   │ up to MaxRetries │
	                  │            ▼          └────────┬─────────┘
	                  │    CHANGED (WARNING)           │ still empty
	                  │                                ▼
	                  │                       no-leader mail
	                  │                      UNRESOLVED (CRITICAL)

An empty probe result is the normal state during a failover and is never an
error. Only running out of retries turns it into a CRITICAL result. An
unreachable host aborts the run at once, on the first probe or a retry.

# Retry Policy

The first probe is unconditional. With the default Config (5 retries, 30
seconds) a run makes at most 6 probes and 5 waits:

	probe ─ wait ─ probe ─ wait ─ probe ─ wait ─ probe ─ wait ─ probe ─ wait ─ probe
	  1       1      2      2      3      3      4      4      5      5      6

Every probe targets the stored leader, never a host learned during the run.
The schedule is a constant backoff capped at MaxRetries and bound to the
run's context, so SIGINT or SIGTERM during a wait ends the run as UNKNOWN.

# Notifications

Delivery failures are recorded in Outcome.NotifyErr and logged. They never
change the outcome: a confirmed change is still WARNING and an unresolved
cluster is still CRITICAL. A store write failure is fatal and no change
notice is sent for it.

# Usage

	r := reconciler.NewReconciler(store, prober, notifier, reconciler.DefaultConfig()).
		WithPublisher(broker)

	out, err := r.Reconcile(ctx, "MST")
	if err != nil {
		os.Exit(types.SeverityOf(err).ExitCode())
	}
	os.Exit(out.Severity.ExitCode())

Tests inject a backoff.Timer with WithTimer so no real time passes.
*/
package reconciler
