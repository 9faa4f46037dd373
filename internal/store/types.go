package store

import (
	"time"

	"makequeue-backend/internal/model"
)

// Actor identifies who performs a store operation, for ownership checks.
type Actor struct {
	Username   string
	Maintainer bool
}

// CanActOn reports whether the actor owns the reservation or is a maintainer.
func (a Actor) CanActOn(r *model.Reservation) bool {
	return a.Maintainer || a.Username == r.UserID
}

// ReservationSpec is the input for inserting a new reservation. Instants are
// absolute; local-time conversion happens before the store is reached.
type ReservationSpec struct {
	MachineID int64
	UserID    string
	Start     time.Time
	End       time.Time
	Comment   string
	EventLink string
}

// Window bounds a listing to reservations intersecting [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// MachineFilter narrows a machine listing. Nil fields match everything.
type MachineFilter struct {
	Status        *model.MachineStatus
	MachineTypeID *int64
	StreamName    string
}
