package storage

import (
	"time"

	"github.com/cuemby/leadercheck/pkg/events"
	"github.com/cuemby/leadercheck/pkg/types"
)

// Store defines the interface for run history persistence
type Store interface {
	// SaveRun records a finished run
	SaveRun(run *RunRecord) error

	// GetRun returns the run with the given id
	GetRun(id string) (*RunRecord, error)

	// ListRuns returns runs newest first. An empty cluster matches every
	// cluster; limit <= 0 returns all matching runs.
	ListRuns(cluster string, limit int) ([]*RunRecord, error)

	// PruneRuns deletes all but the newest keep runs and returns the number
	// deleted
	PruneRuns(keep int) (int, error)

	// Close releases the database and the run lock
	Close() error
}

// RunRecord is one reconciliation run as stored in history
type RunRecord struct {
	ID          string          `json:"id" yaml:"id"`
	Cluster     string          `json:"cluster" yaml:"cluster"`
	Outcome     string          `json:"outcome" yaml:"outcome"`
	Severity    string          `json:"severity" yaml:"severity"`
	ExitCode    int             `json:"exit_code" yaml:"exit_code"`
	OldLeader   string          `json:"old_leader,omitempty" yaml:"old_leader,omitempty"`
	NewLeader   string          `json:"new_leader,omitempty" yaml:"new_leader,omitempty"`
	Attempts    int             `json:"attempts" yaml:"attempts"`
	Waits       int             `json:"waits" yaml:"waits"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	Duration    time.Duration   `json:"duration" yaml:"duration"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	NotifyError string          `json:"notify_error,omitempty" yaml:"notify_error,omitempty"`
	Events      []*events.Event `json:"events,omitempty" yaml:"events,omitempty"`
}

// NewRunRecord builds the history entry for a run. err is the fatal error
// returned with out, if any.
func NewRunRecord(out *types.Outcome, err error, evs []*events.Event) *RunRecord {
	rec := &RunRecord{
		ID:        out.RunID,
		Cluster:   out.Cluster.String(),
		Outcome:   string(out.Kind),
		Severity:  out.Severity.String(),
		ExitCode:  out.Severity.ExitCode(),
		OldLeader: out.OldLeader,
		NewLeader: out.NewLeader,
		Attempts:  out.Attempts,
		Waits:     out.Waits,
		StartedAt: out.StartedAt,
		Duration:  out.Duration,
		Events:    evs,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if out.NotifyErr != nil {
		rec.NotifyError = out.NotifyErr.Error()
	}
	return rec
}
