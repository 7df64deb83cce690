// ABOUTME: Error taxonomy for the sync engine's three failure classes
// ABOUTME: Connectivity, remote-call, and cache errors get distinct handling

package remote

import (
	"errors"
	"fmt"
)

// ErrOffline reports that the network gate judged the device unreachable.
// It is resolved at the controller boundary as "stay on cached state and
// notify offline", never surfaced to the UI as a failure.
var ErrOffline = errors.New("network unreachable")

// ErrNoSubscribe reports that a source has no live event channel.
var ErrNoSubscribe = errors.New("source does not support subscriptions")

// RemoteError wraps a failed data-source call (timeout, server error).
// Controllers log it and degrade to the last good cached state.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("remote %s: %v", e.Op, e.Err) }
func (e *RemoteError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteError for the named operation. A nil err
// returns nil.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// CacheError wraps a local storage read or write failure. These never affect
// the current in-memory session, only persistence across restarts.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }

// IsOffline reports whether err is (or wraps) the connectivity error.
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsRemote reports whether err is a remote-call failure.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
