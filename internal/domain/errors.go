package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWorkspaces is returned by stages that need workspaces to be synced first.
	ErrNoWorkspaces = errors.New("no workspaces found, run workspace sync first")
	// ErrSyncRunning is returned when another sync run holds the run lock.
	ErrSyncRunning = errors.New("sync already running")
)

// ConfigError reports a missing or invalid setting. It aborts a run before
// any network call is made.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

// RemoteUnavailableError is a transport-level failure (timeout, DNS,
// connection refused) of a single remote call.
type RemoteUnavailableError struct {
	Op  string
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("clockify %s: remote unavailable: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// RemoteError is a non-success HTTP status returned by the remote service.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("clockify %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// StoreWriteError wraps a local persistence failure on one row.
type StoreWriteError struct {
	Entity string
	ID     string
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Entity, e.ID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// IsRemote reports whether err came from the remote service or the network
// path to it.
func IsRemote(err error) bool {
	var unavailable *RemoteUnavailableError
	var status *RemoteError
	return errors.As(err, &unavailable) || errors.As(err, &status)
}
