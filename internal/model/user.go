package model

import (
	"github.com/google/uuid"
)

// Role is the closed set of actor roles. Every switch over Role must handle
// all three values; the zero value is never a valid role.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RoleNurse, RolePatient:
		return true
	}
	return false
}

// Staff reports whether the role belongs to hospital personnel.
func (r Role) Staff() bool {
	return r == RoleDoctor || r == RoleNurse
}

// Departments known to the organisation.
const (
	DepartmentOrtho   = "ortho"
	DepartmentCardio  = "cardio"
	DepartmentNeuro   = "neuro"
	DepartmentOnco    = "onco"
	DepartmentGeneral = "general"
)

var Departments = []string{DepartmentOrtho, DepartmentCardio, DepartmentNeuro, DepartmentOnco, DepartmentGeneral}

// User represents a login account. Patients have no hospital/department of
// their own; their scope comes from the Patient row tied to the same email.
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	PasswordHash string `json:"-" db:"password_hash"`
	Role         Role   `json:"role" db:"role"`
	Hospital     string `json:"hospital,omitempty" db:"hospital"`
	Department   string `json:"department,omitempty" db:"department"`
}

// Actor is the authenticated identity for the lifetime of one request.
type Actor struct {
	ID         uuid.UUID `json:"id"`
	Role       Role      `json:"role"`
	Email      string    `json:"email"`
	Hospital   string    `json:"hospital,omitempty"`
	Department string    `json:"department,omitempty"`
}

// ActorFromUser builds an Actor from the live user row.
func ActorFromUser(u *User) *Actor {
	return &Actor{
		ID:         u.ID,
		Role:       u.Role,
		Email:      u.Email,
		Hospital:   u.Hospital,
		Department: u.Department,
	}
}

// SameOrganisation reports whether the actor and a hospital/department pair match.
func (a *Actor) SameOrganisation(hospital, department string) bool {
	return a.Hospital == hospital && a.Department == department
}
