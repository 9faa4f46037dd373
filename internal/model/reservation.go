package model

import "time"

// ReservationState is the lifecycle state of a reservation. Only "cancelled"
// is stored; the others are derived from the interval and the current time.
type ReservationState string

const (
	StateScheduled ReservationState = "scheduled"
	StateActive    ReservationState = "active"
	StateCompleted ReservationState = "completed"
	StateCancelled ReservationState = "cancelled"
)

// Reservation is a committed [start, end) interval of exclusive machine use.
// Instants are stored in UTC; conversion to civil time happens only at the
// API boundary.
type Reservation struct {
	ID           int64     `gorm:"primaryKey"`
	MachineID    int64     `gorm:"not null;index:idx_reservations_machine_start,priority:1"`
	UserID       string    `gorm:"size:64;not null;index:idx_reservations_user_start,priority:1"`
	StartInstant time.Time `gorm:"not null;index:idx_reservations_machine_start,priority:2;index:idx_reservations_user_start,priority:2"`
	EndInstant   time.Time `gorm:"not null"`
	Comment      string
	EventLink    string    `gorm:"size:64"` // Opaque identifier; validated by the events collaborator.
	CreatedAt    time.Time `gorm:"not null"`
	CancelledAt  *time.Time

	// Associations
	Machine Machine
}

// Cancelled reports whether the reservation has been cancelled.
func (r *Reservation) Cancelled() bool {
	return r.CancelledAt != nil
}

// StateAt derives the reservation's lifecycle state at the given instant.
func (r *Reservation) StateAt(now time.Time) ReservationState {
	switch {
	case r.Cancelled():
		return StateCancelled
	case now.Before(r.StartInstant):
		return StateScheduled
	case now.Before(r.EndInstant):
		return StateActive
	default:
		return StateCompleted
	}
}

// Overlaps reports whether the reservation's interval intersects [start, end).
// Half-open intervals make back-to-back slots legal.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartInstant.Before(end) && r.EndInstant.After(start)
}

// Duration is the length of the reserved interval.
func (r *Reservation) Duration() time.Duration {
	return r.EndInstant.Sub(r.StartInstant)
}
