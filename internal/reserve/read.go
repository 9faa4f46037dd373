package reserve

import (
	"context"
	"errors"
	"sort"
	"time"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/store"
)

// freeSlotHorizon bounds how far ahead the free-slot search looks.
const freeSlotHorizon = 28 * 24 * time.Hour

// CurrentUsage is the queue display's view of an occupied machine.
type CurrentUsage struct {
	Username    string
	UserDisplay string
	EndsAt      time.Time
}

// WhoIsUsing returns who holds the machine right now, or nil when it is free.
func (s *Service) WhoIsUsing(ctx context.Context, streamName string) (*CurrentUsage, error) {
	machine, err := s.store.GetMachineByStreamName(ctx, streamName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMachine
		}
		return nil, err
	}

	current, err := s.store.CurrentForMachine(ctx, machine.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	usage := &CurrentUsage{
		Username:    current.UserID,
		UserDisplay: current.UserID,
		EndsAt:      current.EndInstant,
	}
	// Display name is best-effort; the reservation itself is authoritative.
	if details, err := s.directory.GetUserDetails(ctx, current.UserID); err == nil && details != nil {
		usage.UserDisplay = details.DisplayName
	}
	return usage, nil
}

// UpcomingForMachine returns the machine's non-cancelled reservations
// starting within the horizon, ordered by start.
func (s *Service) UpcomingForMachine(ctx context.Context, streamName string, horizon time.Duration) ([]model.Reservation, error) {
	machine, err := s.store.GetMachineByStreamName(ctx, streamName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMachine
		}
		return nil, err
	}

	now := s.clock.Now()
	reservations, err := s.store.ListForMachine(ctx, machine.ID, store.Window{From: now, To: now.Add(horizon)})
	if err != nil {
		return nil, err
	}

	// The window intersects running reservations too; upcoming means the
	// start itself lies ahead.
	upcoming := reservations[:0]
	for _, r := range reservations {
		if !r.StartInstant.Before(now) {
			upcoming = append(upcoming, r)
		}
	}
	return upcoming, nil
}

// UserSchedule returns the user's non-cancelled reservations intersecting the
// window, ordered by start.
func (s *Service) UserSchedule(ctx context.Context, username string, window store.Window) ([]model.Reservation, error) {
	return s.store.ListForUser(ctx, username, window)
}

// FreeSlot is a gap on one machine long enough for a requested duration.
type FreeSlot struct {
	Machine model.Machine
	Start   time.Time
	End     time.Time
}

// FreeSlots finds gaps of at least the required duration on every available
// machine of the given type, within the booking horizon, ordered by start.
func (s *Service) FreeSlots(ctx context.Context, machineTypeID int64, required time.Duration) ([]FreeSlot, error) {
	status := model.StatusAvailable
	machines, err := s.store.ListMachines(ctx, store.MachineFilter{
		Status:        &status,
		MachineTypeID: &machineTypeID,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	limit := now.Add(freeSlotHorizon)

	var slots []FreeSlot
	for _, machine := range machines {
		reservations, err := s.store.ListForMachine(ctx, machine.ID, store.Window{From: now, To: limit})
		if err != nil {
			return nil, err
		}

		cursor := now
		for _, r := range reservations {
			if r.StartInstant.Sub(cursor) >= required {
				slots = append(slots, FreeSlot{Machine: machine, Start: cursor, End: r.StartInstant})
			}
			if r.EndInstant.After(cursor) {
				cursor = r.EndInstant
			}
		}
		if limit.Sub(cursor) >= required {
			slots = append(slots, FreeSlot{Machine: machine, Start: cursor, End: limit})
		}
	}

	// Slots in the near future are the interesting ones.
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}
