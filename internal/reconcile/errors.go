package reconcile

import (
	"fmt"

	"github.com/netops-tools/panos-ike/internal/ike"
)

// ConnectionError wraps a transport or authentication failure while connecting
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DeviceError wraps a failure returned by the device for a read or mutation
type DeviceError struct {
	Op      string
	Profile string
	Err     error
}

func (e *DeviceError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s '%s' failed: %v", e.Op, e.Profile, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// UnsupportedStateError is returned for a desired state other than present or absent
type UnsupportedStateError struct {
	State ike.State
}

func (e *UnsupportedStateError) Error() string {
	return fmt.Sprintf("[%s] state is not implemented", e.State)
}

// CommitError is returned when the commit fails after a successful mutation.
// The mutation stays applied to the candidate configuration.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed (changes remain uncommitted): %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
