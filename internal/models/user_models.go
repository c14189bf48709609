package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authenticated principal's role in the fulfillment chain.
// It is parsed once at the auth boundary; services trust the enum, never
// a caller-asserted string.
type Role string

const (
	RoleNurse          Role = "nurse"            // front-line originator
	RoleSisterIncharge Role = "sister_incharge"  // local (ward) approver
	RoleHOD            Role = "hod"              // department head
	RoleInventoryStaff Role = "inventory_staff"  // central inventory staff
	RoleAdmin          Role = "admin"
)

// ParseRole validates a raw role string coming from storage or token claims.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleNurse, RoleSisterIncharge, RoleHOD, RoleInventoryStaff, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User represents an application user account.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"full_name" db:"full_name"`
	Role         Role      `json:"role" db:"role"`
	DepartmentID *int64    `json:"department_id,omitempty" db:"department_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Principal is the already-authenticated caller handed to the services by
// the transport layer.
type Principal struct {
	ID           int64
	Username     string
	Role         Role
	DepartmentID *int64
}
