/*
Package events publishes the steps of a reconciliation run to in-process
subscribers.

The reconciler publishes an Event for each step it takes. leadercheck
subscribes two handlers: a debug logger, and a Collector that buffers
events per run so they can be stored with the run's history record.

# Event Types

	run.started       a run began
	run.failed        a run aborted with a fatal error
	probe.empty       a probe ran and the cluster reported no leader
	probe.failed      a probe could not reach the host
	retry.wait        a retry wait finished
	leader.unchanged  the cluster reports the stored leader
	leader.changed    a new leader was confirmed
	leader.missing    retries ran out without a leader
	store.updated     the new leader was written to the config store
	notify.sent       an alert was delivered
	notify.failed     an alert could not be delivered

# Delivery

Publish calls every handler synchronously, in subscription order, and
returns when the last one is done. There is no queue to drain, so a
one-shot process that exits right after its run loses nothing. Handlers
must not block.

# Usage

	broker := events.NewBroker()
	runs := events.NewCollector()
	unsubscribe := broker.Subscribe(runs.Handle)
	defer unsubscribe()

	out, err := reconciler.WithPublisher(broker).Reconcile(ctx, "MST")
	evs := runs.Drain(out.RunID)
*/
package events
