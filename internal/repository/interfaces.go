package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medrecord-api/internal/model"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// PatientRepository assigns PatientCode on Create from the per
	// hospital/department counter. Update never changes PatientCode.
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByEmail(ctx context.Context, email string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id uuid.UUID) error
		ListByOrganisation(ctx context.Context, hospital, department string) ([]*model.Patient, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		Update(ctx context.Context, record *model.MedicalRecord) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
	}

	AssignmentRepository interface {
		// Reassign deactivates every active assignment of the patient and
		// stores the new one as active, as one atomic transition.
		Reassign(ctx context.Context, assignment *model.PatientAssignment) error
		Get(ctx context.Context, id uuid.UUID) (*model.PatientAssignment, error)
		Deactivate(ctx context.Context, id uuid.UUID) error
		ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*model.PatientAssignment, error)
		IsActive(ctx context.Context, nurseID, patientID uuid.UUID) (bool, error)
		ListActiveByNurse(ctx context.Context, nurseID uuid.UUID) ([]*model.PatientAssignment, error)
		ListActiveByOrganisation(ctx context.Context, hospital, department string) ([]*model.PatientAssignment, error)
	}

	// RevocationRepository holds revoked bearer tokens by digest.
	RevocationRepository interface {
		Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error
		IsRevoked(ctx context.Context, tokenHash string) (bool, error)
		PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
