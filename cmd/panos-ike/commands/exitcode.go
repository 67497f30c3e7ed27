package commands

import (
	"errors"

	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/reconcile"
)

// Process exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConfig     = 2
	ExitConnection = 3
	ExitCommit     = 4
)

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr    *ike.ConfigError
		stateErr  *reconcile.UnsupportedStateError
		connErr   *reconcile.ConnectionError
		deviceErr *reconcile.DeviceError
		commitErr *reconcile.CommitError
	)
	switch {
	case errors.As(err, &commitErr):
		return ExitCommit
	case errors.As(err, &connErr), errors.As(err, &deviceErr):
		return ExitConnection
	case errors.As(err, &cfgErr), errors.As(err, &stateErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}
