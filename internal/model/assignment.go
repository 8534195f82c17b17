package model

import (
	"time"

	"github.com/google/uuid"
)

// PatientAssignment links a nurse to a patient. At most one assignment per
// patient is active at any time.
type PatientAssignment struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	PatientID     uuid.UUID  `json:"patient_id" db:"patient_id"`
	NurseID       uuid.UUID  `json:"nurse_id" db:"nurse_id"`
	AssignedBy    uuid.UUID  `json:"assigned_by" db:"assigned_by"`
	Hospital      string     `json:"hospital" db:"hospital"`
	Department    string     `json:"department" db:"department"`
	Active        bool       `json:"active" db:"active"`
	AssignedAt    time.Time  `json:"assigned_at" db:"assigned_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

type CreateAssignmentRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
	NurseID   uuid.UUID `json:"nurse_id" binding:"required"`
}

// AssignmentView pairs an assignment with the patient it covers.
type AssignmentView struct {
	*PatientAssignment
	Patient *Patient `json:"patient,omitempty"`
}
