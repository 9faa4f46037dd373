package model

import "time"

// MachineStatus is the operational state of a machine.
type MachineStatus string

const (
	StatusAvailable      MachineStatus = "available"
	StatusOutOfOrder     MachineStatus = "out_of_order"
	StatusMaintenance    MachineStatus = "maintenance"
	StatusDecommissioned MachineStatus = "decommissioned"
)

// ValidStatus reports whether s is one of the recognized machine statuses.
func ValidStatus(s MachineStatus) bool {
	switch s {
	case StatusAvailable, StatusOutOfOrder, StatusMaintenance, StatusDecommissioned:
		return true
	}
	return false
}

// MachineType groups machines that share reservation rules, e.g. "3D printer".
type MachineType struct {
	ID                 int64  `gorm:"primaryKey"`
	Name               string `gorm:"uniqueIndex;size:128;not null"`
	MinSlotMinutes     int    `gorm:"not null"`
	MaxDurationMinutes int    `gorm:"not null"`
	RequiresTraining   bool   `gorm:"not null"`
	Priority           int    `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Associations
	Machines []Machine `gorm:"foreignKey:MachineTypeID"`
}

// MinSlot is the minimum reservation length for machines of this type.
func (t *MachineType) MinSlot() time.Duration {
	return time.Duration(t.MinSlotMinutes) * time.Minute
}

// MaxDuration is the maximum length of a single reservation on this type.
func (t *MachineType) MaxDuration() time.Duration {
	return time.Duration(t.MaxDurationMinutes) * time.Minute
}

// Machine represents a physical tool whose use is scheduled.
type Machine struct {
	ID            int64         `gorm:"primaryKey"`
	Name          string        `gorm:"size:256;not null"`
	StreamName    string        `gorm:"uniqueIndex;size:64;not null"`
	MachineTypeID int64         `gorm:"index;not null"`
	Status        MachineStatus `gorm:"size:32;not null;default:available"`
	Info          string
	Location      string `gorm:"size:256"`
	Priority      *int   // Sort order only; machines without one sort last.
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Associations
	MachineType MachineType `gorm:"constraint:OnDelete:RESTRICT"`
}

// Reservable reports whether the machine accepts new reservations from
// non-maintainer users.
func (m *Machine) Reservable() bool {
	return m.Status == StatusAvailable
}
