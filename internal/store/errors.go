package store

import (
	"errors"
	"fmt"
	"strings"

	"makequeue-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor may not perform the operation
	// on the reservation.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicateStreamName is returned when a machine's stream name
	// collides with an existing machine.
	ErrDuplicateStreamName = errors.New("stream name already in use")
	// ErrDecommissioned is returned when changing the status of a
	// decommissioned machine; decommissioning is terminal.
	ErrDecommissioned = errors.New("machine is decommissioned")
	// ErrTimeout is returned when a write keeps failing on transient
	// database errors after the bounded retries are exhausted.
	ErrTimeout = errors.New("database write timed out")
)

// ConflictError is returned when a reservation interval intersects existing
// non-cancelled reservations on the same machine. Offenders are the
// intersecting reservations, ordered by start.
type ConflictError struct {
	Offenders []model.Reservation
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Offenders))
	for i, r := range e.Offenders {
		ids[i] = fmt.Sprintf("%d", r.ID)
	}
	return fmt.Sprintf("reservation conflicts with %d existing reservation(s): %s",
		len(e.Offenders), strings.Join(ids, ", "))
}
