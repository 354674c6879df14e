package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCluster   = errors.New("unknown cluster")
	ErrMissingLeaderKey = errors.New("cluster section has no leader key")
	ErrUnreachableHost  = errors.New("unreachable host")
	ErrPersist          = errors.New("failed to persist expected leader")
	ErrDelivery         = errors.New("notification delivery failed")
	ErrRunLocked        = errors.New("another run holds the lock")
)

// UnknownClusterError is returned when the selector has no section in the
// config store. Known lists the valid selectors.
type UnknownClusterError struct {
	Cluster ClusterID
	Known   []string
}

func (e *UnknownClusterError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("section %s does not exist (no clusters configured)", e.Cluster)
	}
	return fmt.Sprintf("section %s does not exist, options are: %s", e.Cluster, strings.Join(e.Known, ", "))
}

func (e *UnknownClusterError) Is(target error) bool {
	return target == ErrUnknownCluster
}

// UnreachableHostError means the probe could not connect to the host or run
// the leader query on it. It is distinct from an empty leader report.
type UnreachableHostError struct {
	Host string
	Err  error
}

func (e *UnreachableHostError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *UnreachableHostError) Unwrap() error {
	return e.Err
}

func (e *UnreachableHostError) Is(target error) bool {
	return target == ErrUnreachableHost
}

// PersistError means the new expected leader could not be written durably
type PersistError struct {
	Cluster ClusterID
	Path    string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist leader for %s to %s: %v", e.Cluster, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

// DeliveryError means an alert could not be handed to the mail relay
type DeliveryError struct {
	Kind NotificationKind
	To   []string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver %s notification to %s: %v", e.Kind, strings.Join(e.To, ","), e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// SeverityOf maps a fatal run error to the severity reported for it. Every
// error that aborts a run is reported as unknown.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityOK
	}
	return SeverityUnknown
}
