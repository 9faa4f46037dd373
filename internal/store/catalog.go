package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/validate"
)

// MachineUpdate carries the updatable machine attributes. Nil fields are left
// unchanged.
type MachineUpdate struct {
	Name       *string
	StreamName *string
	Info       *string
	Location   *string
	Priority   *int
	ClearPrio  bool
}

// catalogOrder is the default machine sort: type priority, then machine
// priority with unset priorities last, then case-insensitive name.
func catalogOrder(db *gorm.DB) *gorm.DB {
	return db.
		Joins("JOIN machine_types ON machine_types.id = machines.machine_type_id").
		Order("machine_types.priority").
		Order("machines.priority IS NULL").
		Order("machines.priority").
		Order("LOWER(machines.name)")
}

// ListMachines returns machines matching the filter in the default order.
func (s *gormStore) ListMachines(ctx context.Context, filter MachineFilter) ([]model.Machine, error) {
	query := catalogOrder(s.db.WithContext(ctx).Model(&model.Machine{})).Preload("MachineType")
	if filter.Status != nil {
		query = query.Where("machines.status = ?", *filter.Status)
	}
	if filter.MachineTypeID != nil {
		query = query.Where("machines.machine_type_id = ?", *filter.MachineTypeID)
	}
	if filter.StreamName != "" {
		query = query.Where("machines.stream_name = ?", filter.StreamName)
	}

	var machines []model.Machine
	if err := query.Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// GetMachine loads one machine with its type.
func (s *gormStore) GetMachine(ctx context.Context, id int64) (*model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).Preload("MachineType").First(&machine, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

// GetMachineByStreamName resolves a machine by its canonical external key.
func (s *gormStore) GetMachineByStreamName(ctx context.Context, streamName string) (*model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).Preload("MachineType").
		Where("stream_name = ?", streamName).
		First(&machine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

// CreateMachine validates the stream name and writes the machine. The unique
// index backs up the in-transaction collision check.
func (s *gormStore) CreateMachine(ctx context.Context, machine *model.Machine) error {
	if err := validate.StreamName(machine.StreamName); err != nil {
		return err
	}
	if machine.Status == "" {
		machine.Status = model.StatusAvailable
	}
	if !model.ValidStatus(machine.Status) {
		return errors.New("invalid machine status")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Machine{}).
			Where("stream_name = ?", machine.StreamName).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateStreamName
		}
		if err := tx.Create(machine).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateStreamName
			}
			return err
		}
		return nil
	})
}

// UpdateMachine applies the non-nil attributes to the machine. A stream name
// change runs through the validator and the uniqueness check again.
func (s *gormStore) UpdateMachine(ctx context.Context, id int64, attrs MachineUpdate) (*model.Machine, error) {
	if attrs.StreamName != nil {
		if err := validate.StreamName(*attrs.StreamName); err != nil {
			return nil, err
		}
	}

	var updated model.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var machine model.Machine
		if err := tx.First(&machine, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]any{}
		if attrs.Name != nil {
			updates["name"] = *attrs.Name
		}
		if attrs.StreamName != nil && *attrs.StreamName != machine.StreamName {
			var count int64
			if err := tx.Model(&model.Machine{}).
				Where("stream_name = ? AND id <> ?", *attrs.StreamName, id).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateStreamName
			}
			updates["stream_name"] = *attrs.StreamName
		}
		if attrs.Info != nil {
			updates["info"] = *attrs.Info
		}
		if attrs.Location != nil {
			updates["location"] = *attrs.Location
		}
		if attrs.Priority != nil {
			updates["priority"] = *attrs.Priority
		} else if attrs.ClearPrio {
			updates["priority"] = nil
		}

		if len(updates) > 0 {
			if err := tx.Model(&machine).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Preload("MachineType").First(&updated, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// TransitionStatus changes a machine's operational status. Decommissioning is
// terminal; any transition away from it fails.
func (s *gormStore) TransitionStatus(ctx context.Context, id int64, status model.MachineStatus) (*model.Machine, error) {
	if !model.ValidStatus(status) {
		return nil, errors.New("invalid machine status")
	}

	var updated model.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var machine model.Machine
		if err := tx.First(&machine, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if machine.Status == model.StatusDecommissioned && status != model.StatusDecommissioned {
			return ErrDecommissioned
		}
		if err := tx.Model(&machine).Update("status", status).Error; err != nil {
			return err
		}
		return tx.Preload("MachineType").First(&updated, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListMachineTypes returns all machine types sorted by priority.
func (s *gormStore) ListMachineTypes(ctx context.Context) ([]model.MachineType, error) {
	var types []model.MachineType
	if err := s.db.WithContext(ctx).Order("priority").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// GetMachineType loads one machine type.
func (s *gormStore) GetMachineType(ctx context.Context, id int64) (*model.MachineType, error) {
	var machineType model.MachineType
	err := s.db.WithContext(ctx).First(&machineType, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &machineType, nil
}

// CreateMachineType writes a new machine type.
func (s *gormStore) CreateMachineType(ctx context.Context, machineType *model.MachineType) error {
	return s.db.WithContext(ctx).Create(machineType).Error
}
