package reserve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"makequeue-backend/internal/clock"
	"makequeue-backend/internal/identity"
	"makequeue-backend/internal/model"
	"makequeue-backend/internal/quota"
	"makequeue-backend/internal/store"
)

// Service orchestrates reservation writes: it resolves the actor and machine,
// converts civil times, enforces quota and hands the write to the store.
// Domain errors are never swallowed; they travel back to the caller as-is.
type Service struct {
	store     store.Store
	directory identity.Directory
	events    identity.EventChecker
	policy    *quota.Policy
	localizer *clock.Localizer
	clock     clock.Clock
}

// NewService wires the orchestrator.
func NewService(s store.Store, directory identity.Directory, events identity.EventChecker,
	policy *quota.Policy, localizer *clock.Localizer, clk clock.Clock) *Service {
	return &Service{
		store:     s,
		directory: directory,
		events:    events,
		policy:    policy,
		localizer: localizer,
		clock:     clk,
	}
}

// Localizer exposes the civil-time converter for the API layer's rendering.
func (s *Service) Localizer() *clock.Localizer { return s.localizer }

// Clock exposes the service clock for the API layer's projections.
func (s *Service) Clock() clock.Clock { return s.clock }

// resolveActor looks up the acting user; a miss is ErrUnknownUser.
func (s *Service) resolveActor(ctx context.Context, username string) (*identity.UserDetails, error) {
	details, err := s.directory.GetUserDetails(ctx, username)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, ErrUnknownUser
	}
	return details, nil
}

// CreateRequest carries the form inputs for a new reservation. Start and end
// are civil times in the configured default zone, in clock.FormLayout.
type CreateRequest struct {
	Actor             string
	MachineStreamName string
	StartLocal        string
	EndLocal          string
	Comment           string
	EventLink         string
}

// Create validates and inserts a new reservation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	actor, err := s.resolveActor(ctx, req.Actor)
	if err != nil {
		return nil, err
	}
	maintainer := actor.Role == model.RoleMaintainer

	machine, err := s.store.GetMachineByStreamName(ctx, req.MachineStreamName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownMachine
		}
		return nil, err
	}
	if !machine.Reservable() && !maintainer {
		return nil, ErrMachineUnavailable
	}

	start, err := s.localizer.ParseLocal(req.StartLocal)
	if err != nil {
		return nil, err
	}
	end, err := s.localizer.ParseLocal(req.EndLocal)
	if err != nil {
		return nil, err
	}

	if err := validateInterval(start, end, &machine.MachineType); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !maintainer && start.Before(now) {
		return nil, ErrStartInPast
	}

	if req.EventLink != "" {
		exists, err := s.events.EventExists(ctx, req.EventLink)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrUnknownEvent
		}
	}

	existing, err := s.store.ListFutureForUserAndType(ctx, actor.Username, machine.MachineTypeID, now)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Check(actor.Role, &machine.MachineType, start, end, existing, now); err != nil {
		return nil, err
	}

	return s.store.Insert(ctx, store.ReservationSpec{
		MachineID: machine.ID,
		UserID:    actor.Username,
		Start:     start,
		End:       end,
		Comment:   req.Comment,
		EventLink: req.EventLink,
	})
}

// Cancel cancels a reservation on behalf of the actor. Cancelling twice is
// idempotent; the store enforces ownership and the active-only-by-maintainer
// rule.
func (s *Service) Cancel(ctx context.Context, actorUsername string, id int64) (*model.Reservation, error) {
	actor, err := s.resolveActor(ctx, actorUsername)
	if err != nil {
		return nil, err
	}
	return s.store.Cancel(ctx, id, storeActor(actor), s.clock.Now())
}

// Reschedule moves a reservation to a new civil interval. Owners may shorten
// a running reservation; any extension or move of a scheduled one re-runs the
// full validation, with the reservation itself excluded from the conflict
// set.
func (s *Service) Reschedule(ctx context.Context, actorUsername string, id int64, newStartLocal, newEndLocal string) (*model.Reservation, error) {
	actor, err := s.resolveActor(ctx, actorUsername)
	if err != nil {
		return nil, err
	}
	maintainer := actor.Role == model.RoleMaintainer

	reservation, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !storeActor(actor).CanActOn(reservation) {
		return nil, store.ErrForbidden
	}

	newStart, err := s.localizer.ParseLocal(newStartLocal)
	if err != nil {
		return nil, err
	}
	newEnd, err := s.localizer.ParseLocal(newEndLocal)
	if err != nil {
		return nil, err
	}

	machine, err := s.store.GetMachine(ctx, reservation.MachineID)
	if err != nil {
		return nil, err
	}
	machineType := &machine.MachineType

	now := s.clock.Now()
	switch reservation.StateAt(now) {
	case model.StateCompleted, model.StateCancelled:
		return nil, store.ErrForbidden
	case model.StateActive:
		if !maintainer {
			// A running reservation may only be shortened by its owner, and
			// not below the remaining minimum slot.
			if !newStart.Equal(reservation.StartInstant) {
				return nil, store.ErrForbidden
			}
			if newEnd.After(reservation.EndInstant) {
				return nil, store.ErrForbidden
			}
			if newEnd.Before(now.Add(machineType.MinSlot())) {
				return nil, &InvalidIntervalError{
					Reason: fmt.Sprintf("a running reservation must keep at least %v", machineType.MinSlot()),
				}
			}
			return s.store.Reschedule(ctx, id, newStart, newEnd, storeActor(actor), now)
		}
	}

	if err := validateInterval(newStart, newEnd, machineType); err != nil {
		return nil, err
	}
	if !maintainer && newStart.Before(now) {
		return nil, ErrStartInPast
	}
	if !machine.Reservable() && !maintainer {
		return nil, ErrMachineUnavailable
	}

	existing, err := s.store.ListFutureForUserAndType(ctx, reservation.UserID, machine.MachineTypeID, now)
	if err != nil {
		return nil, err
	}
	// The rescheduled reservation itself does not count against the quota.
	filtered := existing[:0:0]
	for _, r := range existing {
		if r.ID != id {
			filtered = append(filtered, r)
		}
	}
	if err := s.policy.Check(actor.Role, machineType, newStart, newEnd, filtered, now); err != nil {
		return nil, err
	}

	return s.store.Reschedule(ctx, id, newStart, newEnd, storeActor(actor), now)
}

// validateInterval enforces the shape invariants: start < end and the
// type-defined granularity and maximum duration.
func validateInterval(start, end time.Time, machineType *model.MachineType) error {
	if !start.Before(end) {
		return &InvalidIntervalError{Reason: "start must be before end"}
	}
	duration := end.Sub(start)
	if duration < machineType.MinSlot() {
		return &InvalidIntervalError{
			Reason: fmt.Sprintf("shorter than the minimum slot of %v", machineType.MinSlot()),
		}
	}
	if duration > machineType.MaxDuration() {
		return &InvalidIntervalError{
			Reason: fmt.Sprintf("longer than the maximum duration of %v", machineType.MaxDuration()),
		}
	}
	return nil
}

func storeActor(details *identity.UserDetails) store.Actor {
	return store.Actor{
		Username:   details.Username,
		Maintainer: details.Role == model.RoleMaintainer,
	}
}
