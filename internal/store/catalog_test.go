package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/validate"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func seedType(t *testing.T, testDB *gorm.DB, name string, priority int) *model.MachineType {
	t.Helper()
	machineType := model.MachineType{
		Name:               name,
		MinSlotMinutes:     30,
		MaxDurationMinutes: 480,
		Priority:           priority,
	}
	require.NoError(t, testDB.Create(&machineType).Error)
	return &machineType
}

func TestListMachinesOrder(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()

	printers := seedType(t, testDB, "3D printer", 1)
	lasers := seedType(t, testDB, "laser cutter", 2)

	// Inserted out of order on purpose.
	for _, m := range []model.Machine{
		{Name: "beta", StreamName: "laser-b", MachineTypeID: lasers.ID},
		{Name: "Zeta", StreamName: "printer-z", MachineTypeID: printers.ID, Priority: intPtr(1)},
		{Name: "alpha", StreamName: "printer-a", MachineTypeID: printers.ID},
		{Name: "Mid", StreamName: "printer-m", MachineTypeID: printers.ID, Priority: intPtr(2)},
	} {
		require.NoError(t, s.CreateMachine(ctx, &m))
	}

	machines, err := s.ListMachines(ctx, MachineFilter{})
	require.NoError(t, err)
	require.Len(t, machines, 4)

	// Type priority first, then machine priority with unset last, then
	// case-insensitive name.
	var order []string
	for _, m := range machines {
		order = append(order, m.StreamName)
	}
	assert.Equal(t, []string{"printer-z", "printer-m", "printer-a", "laser-b"}, order)
	assert.Equal(t, "3D printer", machines[0].MachineType.Name, "type association is loaded")
}

func TestListMachinesFilter(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()
	printers := seedType(t, testDB, "3D printer", 1)

	available := model.Machine{Name: "a", StreamName: "printer-a", MachineTypeID: printers.ID}
	require.NoError(t, s.CreateMachine(ctx, &available))
	broken := model.Machine{Name: "b", StreamName: "printer-b", MachineTypeID: printers.ID, Status: model.StatusOutOfOrder}
	require.NoError(t, s.CreateMachine(ctx, &broken))

	status := model.StatusAvailable
	machines, err := s.ListMachines(ctx, MachineFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "printer-a", machines[0].StreamName)

	machines, err = s.ListMachines(ctx, MachineFilter{})
	require.NoError(t, err)
	assert.Len(t, machines, 2)
}

func TestCreateMachineValidation(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()
	printers := seedType(t, testDB, "3D printer", 1)

	first := model.Machine{Name: "One", StreamName: "printer-1", MachineTypeID: printers.ID}
	require.NoError(t, s.CreateMachine(ctx, &first))

	t.Run("duplicate stream name", func(t *testing.T) {
		dup := model.Machine{Name: "Two", StreamName: "printer-1", MachineTypeID: printers.ID}
		assert.ErrorIs(t, s.CreateMachine(ctx, &dup), ErrDuplicateStreamName)
	})

	t.Run("invalid stream name", func(t *testing.T) {
		bad := model.Machine{Name: "Bad", StreamName: "Printer One", MachineTypeID: printers.ID}
		var invalid *validate.InvalidIdentifierError
		assert.ErrorAs(t, s.CreateMachine(ctx, &bad), &invalid)
	})
}

func TestUpdateMachine(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()
	printers := seedType(t, testDB, "3D printer", 1)

	machine := model.Machine{Name: "One", StreamName: "printer-1", MachineTypeID: printers.ID, Priority: intPtr(3)}
	require.NoError(t, s.CreateMachine(ctx, &machine))
	other := model.Machine{Name: "Two", StreamName: "printer-2", MachineTypeID: printers.ID}
	require.NoError(t, s.CreateMachine(ctx, &other))

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		updated, err := s.UpdateMachine(ctx, machine.ID, MachineUpdate{Location: strPtr("room 2")})
		require.NoError(t, err)
		assert.Equal(t, "room 2", updated.Location)
		assert.Equal(t, "One", updated.Name)
		require.NotNil(t, updated.Priority)
		assert.Equal(t, 3, *updated.Priority)
	})

	t.Run("clearing the priority", func(t *testing.T) {
		updated, err := s.UpdateMachine(ctx, machine.ID, MachineUpdate{ClearPrio: true})
		require.NoError(t, err)
		assert.Nil(t, updated.Priority)
	})

	t.Run("renaming onto a taken stream name", func(t *testing.T) {
		_, err := s.UpdateMachine(ctx, machine.ID, MachineUpdate{StreamName: strPtr("printer-2")})
		assert.ErrorIs(t, err, ErrDuplicateStreamName)
	})

	t.Run("unknown machine", func(t *testing.T) {
		_, err := s.UpdateMachine(ctx, 9999, MachineUpdate{Location: strPtr("nowhere")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransitionStatus(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()
	printers := seedType(t, testDB, "3D printer", 1)

	machine := model.Machine{Name: "One", StreamName: "printer-1", MachineTypeID: printers.ID}
	require.NoError(t, s.CreateMachine(ctx, &machine))

	updated, err := s.TransitionStatus(ctx, machine.ID, model.StatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMaintenance, updated.Status)

	updated, err = s.TransitionStatus(ctx, machine.ID, model.StatusDecommissioned)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDecommissioned, updated.Status)

	// Decommissioning is terminal.
	_, err = s.TransitionStatus(ctx, machine.ID, model.StatusAvailable)
	assert.ErrorIs(t, err, ErrDecommissioned)
}
