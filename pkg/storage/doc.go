/*
Package storage keeps the history of reconciliation runs in a BoltDB file.

Each run is stored as JSON in the "runs" bucket under its UUIDv7 run id,
so a cursor walking the bucket backwards lists runs newest first. A record
carries the outcome, the leaders involved, probe and wait counts, any fatal
or delivery error, and the lifecycle events published during the run.

# Run Lock

BoltDB takes an exclusive flock on the file for a read-write handle.
leadercheck opens the history store before reading the config store and
closes it after the run, so two invocations for any clusters never
interleave a read-modify-write of the config store:

	run A: open history ─ reconcile ─ save run ─ close
	run B:      open history (blocks up to lock_timeout) ─ reconcile ─ ...

When the timeout expires NewBoltStore returns types.ErrRunLocked and the
invocation exits UNKNOWN. OpenReadOnly takes a shared lock, used by the
history command.

# Usage

	store, err := storage.NewBoltStore("/var/lib/leadercheck/history.db", 5*time.Minute)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRun(storage.NewRunRecord(out, runErr, evs)); err != nil {
		log.Errorf("failed to record run", err)
	}
	store.PruneRuns(1000)
*/
package storage
