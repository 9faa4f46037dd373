package reserve

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUser is returned when the identity collaborator reports no
	// such user.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownMachine is returned when no machine has the given stream name.
	ErrUnknownMachine = errors.New("unknown machine")
	// ErrMachineUnavailable is returned when a non-maintainer reserves a
	// machine that is not available.
	ErrMachineUnavailable = errors.New("machine is not available for reservations")
	// ErrStartInPast is returned when a non-maintainer's reservation starts
	// before now.
	ErrStartInPast = errors.New("reservation cannot start in the past")
	// ErrUnknownEvent is returned when the event link does not resolve.
	ErrUnknownEvent = errors.New("unknown event")
)

// InvalidIntervalError describes a reservation interval that violates the
// shape invariants.
type InvalidIntervalError struct {
	Reason string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid reservation interval: %s", e.Reason)
}
