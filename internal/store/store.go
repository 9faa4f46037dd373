package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"makequeue-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Machine catalog
	ListMachines(ctx context.Context, filter MachineFilter) ([]model.Machine, error)
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	GetMachineByStreamName(ctx context.Context, streamName string) (*model.Machine, error)
	CreateMachine(ctx context.Context, machine *model.Machine) error
	UpdateMachine(ctx context.Context, id int64, attrs MachineUpdate) (*model.Machine, error)
	TransitionStatus(ctx context.Context, id int64, status model.MachineStatus) (*model.Machine, error)
	ListMachineTypes(ctx context.Context) ([]model.MachineType, error)
	GetMachineType(ctx context.Context, id int64) (*model.MachineType, error)
	CreateMachineType(ctx context.Context, machineType *model.MachineType) error

	// Reservations
	Insert(ctx context.Context, spec ReservationSpec) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64, actor Actor, now time.Time) (*model.Reservation, error)
	Reschedule(ctx context.Context, id int64, newStart, newEnd time.Time, actor Actor, now time.Time) (*model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListForMachine(ctx context.Context, machineID int64, window Window) ([]model.Reservation, error)
	ListForUser(ctx context.Context, userID string, window Window) ([]model.Reservation, error)
	ListFutureForUserAndType(ctx context.Context, userID string, machineTypeID int64, now time.Time) ([]model.Reservation, error)
	CurrentForMachine(ctx context.Context, machineID int64, at time.Time) (*model.Reservation, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// maxWriteAttempts bounds the retries on transient write failures before the
// error is surfaced to the caller.
const maxWriteAttempts = 3

// isTransient matches the postgres deadlock/serialization failures and the
// sqlite busy errors worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withWriteRetry runs fn up to maxWriteAttempts times, retrying only on
// transient failures. Exhausted retries surface as ErrTimeout.
func withWriteRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		time.Sleep(time.Duration(attempt*10) * time.Millisecond)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrTimeout, maxWriteAttempts, err)
}

// lockMachineRow serializes writers on one machine's reservation set for the
// duration of the transaction. SQLite has no FOR UPDATE and serializes
// writers on its own.
func lockMachineRow(tx *gorm.DB, machineID int64) error {
	query := tx.Model(&model.Machine{})
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var machine model.Machine
	if err := query.First(&machine, machineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// overlapping returns the non-cancelled reservations on the machine whose
// intervals intersect [start, end), excluding excludeID (0 excludes nothing).
// Intersection test: existing.start < end AND existing.end > start.
func overlapping(tx *gorm.DB, machineID int64, start, end time.Time, excludeID int64) ([]model.Reservation, error) {
	var offenders []model.Reservation
	query := tx.
		Where("machine_id = ?", machineID).
		Where("cancelled_at IS NULL").
		Where("start_instant < ? AND end_instant > ?", end, start).
		Order("start_instant")
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&offenders).Error; err != nil {
		return nil, err
	}
	return offenders, nil
}

// Insert writes a reservation after a serialized overlap check. On conflict
// nothing is written and the offenders are returned.
func (s *gormStore) Insert(ctx context.Context, spec ReservationSpec) (*model.Reservation, error) {
	if !spec.Start.Before(spec.End) {
		return nil, fmt.Errorf("reservation spec has start >= end")
	}

	var created model.Reservation
	err := withWriteRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockMachineRow(tx, spec.MachineID); err != nil {
				return err
			}
			offenders, err := overlapping(tx, spec.MachineID, spec.Start, spec.End, 0)
			if err != nil {
				return err
			}
			if len(offenders) > 0 {
				return &ConflictError{Offenders: offenders}
			}
			created = model.Reservation{
				MachineID:    spec.MachineID,
				UserID:       spec.UserID,
				StartInstant: spec.Start.UTC(),
				EndInstant:   spec.End.UTC(),
				Comment:      spec.Comment,
				EventLink:    spec.EventLink,
			}
			return tx.Create(&created).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Cancel marks a reservation cancelled. Cancelling an already-cancelled
// reservation is idempotent. An active reservation may only be cancelled by
// a maintainer; a completed one too.
func (s *gormStore) Cancel(ctx context.Context, id int64, actor Actor, now time.Time) (*model.Reservation, error) {
	var result model.Reservation
	err := withWriteRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var reservation model.Reservation
			if err := tx.First(&reservation, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if !actor.CanActOn(&reservation) {
				return ErrForbidden
			}
			if reservation.Cancelled() {
				result = reservation
				return nil
			}
			if reservation.StateAt(now) != model.StateScheduled && !actor.Maintainer {
				return ErrForbidden
			}
			at := now.UTC()
			reservation.CancelledAt = &at
			if err := tx.Model(&reservation).Update("cancelled_at", at).Error; err != nil {
				return err
			}
			result = reservation
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reschedule moves a reservation to a new interval, excluding the reservation
// itself from the overlap check. Completed and cancelled reservations cannot
// be moved.
func (s *gormStore) Reschedule(ctx context.Context, id int64, newStart, newEnd time.Time, actor Actor, now time.Time) (*model.Reservation, error) {
	if !newStart.Before(newEnd) {
		return nil, fmt.Errorf("reschedule has start >= end")
	}

	var result model.Reservation
	err := withWriteRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var reservation model.Reservation
			if err := tx.First(&reservation, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if !actor.CanActOn(&reservation) {
				return ErrForbidden
			}
			switch reservation.StateAt(now) {
			case model.StateCancelled, model.StateCompleted:
				return ErrForbidden
			}
			if err := lockMachineRow(tx, reservation.MachineID); err != nil {
				return err
			}
			offenders, err := overlapping(tx, reservation.MachineID, newStart, newEnd, reservation.ID)
			if err != nil {
				return err
			}
			if len(offenders) > 0 {
				return &ConflictError{Offenders: offenders}
			}
			reservation.StartInstant = newStart.UTC()
			reservation.EndInstant = newEnd.UTC()
			if err := tx.Model(&reservation).
				Updates(map[string]any{"start_instant": reservation.StartInstant, "end_instant": reservation.EndInstant}).
				Error; err != nil {
				return err
			}
			result = reservation
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReservation loads one reservation with its machine.
func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var reservation model.Reservation
	err := s.db.WithContext(ctx).Preload("Machine").First(&reservation, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ListForMachine returns the machine's non-cancelled reservations
// intersecting the window, ordered by start.
func (s *gormStore) ListForMachine(ctx context.Context, machineID int64, window Window) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Where("cancelled_at IS NULL").
		Where("start_instant < ? AND end_instant > ?", window.To, window.From).
		Order("start_instant").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListForUser returns the user's non-cancelled reservations intersecting the
// window, ordered by start, with machines preloaded for display.
func (s *gormStore) ListForUser(ctx context.Context, userID string, window Window) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Machine").
		Where("user_id = ?", userID).
		Where("cancelled_at IS NULL").
		Where("start_instant < ? AND end_instant > ?", window.To, window.From).
		Order("start_instant").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListFutureForUserAndType returns the user's non-cancelled reservations on
// machines of the given type that end in the future. This is the set the
// quota policy evaluates.
func (s *gormStore) ListFutureForUserAndType(ctx context.Context, userID string, machineTypeID int64, now time.Time) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).
		Joins("JOIN machines ON machines.id = reservations.machine_id").
		Where("reservations.user_id = ?", userID).
		Where("reservations.cancelled_at IS NULL").
		Where("reservations.end_instant > ?", now).
		Where("machines.machine_type_id = ?", machineTypeID).
		Order("reservations.start_instant").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// CurrentForMachine returns the reservation covering the given instant, or
// nil if the machine is free at that moment.
func (s *gormStore) CurrentForMachine(ctx context.Context, machineID int64, at time.Time) (*model.Reservation, error) {
	var reservation model.Reservation
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Where("cancelled_at IS NULL").
		Where("start_instant <= ? AND end_instant > ?", at, at).
		Order("start_instant DESC").
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}
