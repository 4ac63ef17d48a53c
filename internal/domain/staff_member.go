package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleEngineer    StaffRole = "ENGINEER"
	StaffRoleCoordinator StaffRole = "COORDINATOR"
	StaffRoleManager     StaffRole = "MANAGER"
	StaffRoleAdmin       StaffRole = "ADMIN"
)

// StaffMember models an engineer, coordinator, manager or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleEngineer, StaffRoleCoordinator, StaffRoleManager, StaffRoleAdmin:
		return true
	}
	return false
}
