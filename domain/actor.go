package domain

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned for role claims outside the closed role set.
var ErrUnknownRole = errors.New("unknown role")

// Role is an actor's privilege level.
type Role string

const (
	RoleMasterAdmin    Role = "MASTER_ADMIN"
	RoleAdmin          Role = "ADMIN"
	RoleDepartmentUser Role = "DEPARTMENT_USER"
)

// ParseRole maps a claim value to a Role.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleMasterAdmin, RoleAdmin, RoleDepartmentUser:
		return r, nil
	}
	return "", ErrUnknownRole
}

// Actor is the identity on whose behalf an operation runs.
type Actor struct {
	ID           string `json:"id"`
	Role         Role   `json:"role"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// IsHighest reports whether the actor holds the top role.
func (a Actor) IsHighest() bool { return a.Role == RoleMasterAdmin }

// IsLowest reports whether the actor holds the lowest-privilege role.
func (a Actor) IsLowest() bool { return a.Role == RoleDepartmentUser }
