package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
)

type assignmentRepository struct {
	BaseRepository
}

func NewAssignmentRepository(base BaseRepository) repository.AssignmentRepository {
	return &assignmentRepository{base}
}

// Reassign runs deactivate-then-insert in one transaction. The patient row
// lock serialises concurrent reassignments of the same patient, and the
// partial unique index on (patient_id) WHERE active backs the invariant.
func (r *assignmentRepository) Reassign(ctx context.Context, a *model.PatientAssignment) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM patients WHERE id = $1 FOR UPDATE`, a.PatientID); err != nil {
			return fmt.Errorf("failed to lock patient: %w", mapError(err))
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE patient_assignments
			SET active = FALSE, deactivated_at = $1
			WHERE patient_id = $2 AND active
		`, now, a.PatientID); err != nil {
			return fmt.Errorf("failed to deactivate assignments: %w", err)
		}

		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Active = true
		a.AssignedAt = now
		a.DeactivatedAt = nil

		_, err := tx.ExecContext(ctx, `
			INSERT INTO patient_assignments (
				id, patient_id, nurse_id, assigned_by, hospital, department, active, assigned_at
			) VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		`, a.ID, a.PatientID, a.NurseID, a.AssignedBy, a.Hospital, a.Department, a.AssignedAt)
		if err != nil {
			return fmt.Errorf("failed to create assignment: %w", mapError(err))
		}
		return nil
	})
}

func (r *assignmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientAssignment, error) {
	var a model.PatientAssignment
	if err := r.GetDB().GetContext(ctx, &a, `SELECT * FROM patient_assignments WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", mapError(err))
	}
	return &a, nil
}

// Deactivate flips an active assignment off. Inactive or unknown ids are not found.
func (r *assignmentRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.GetDB().ExecContext(ctx, `
		UPDATE patient_assignments
		SET active = FALSE, deactivated_at = NOW()
		WHERE id = $1 AND active
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	return checkAffected(res)
}

func (r *assignmentRepository) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*model.PatientAssignment, error) {
	var a model.PatientAssignment
	err := r.GetDB().GetContext(ctx, &a,
		`SELECT * FROM patient_assignments WHERE patient_id = $1 AND active`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active assignment: %w", mapError(err))
	}
	return &a, nil
}

func (r *assignmentRepository) IsActive(ctx context.Context, nurseID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.GetDB().GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM patient_assignments
			WHERE nurse_id = $1 AND patient_id = $2 AND active
		)
	`, nurseID, patientID)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return exists, nil
}

func (r *assignmentRepository) ListActiveByNurse(ctx context.Context, nurseID uuid.UUID) ([]*model.PatientAssignment, error) {
	var out []*model.PatientAssignment
	err := r.GetDB().SelectContext(ctx, &out,
		`SELECT * FROM patient_assignments WHERE nurse_id = $1 AND active ORDER BY assigned_at`, nurseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nurse assignments: %w", err)
	}
	return out, nil
}

func (r *assignmentRepository) ListActiveByOrganisation(ctx context.Context, hospital, department string) ([]*model.PatientAssignment, error) {
	var out []*model.PatientAssignment
	err := r.GetDB().SelectContext(ctx, &out, `
		SELECT * FROM patient_assignments
		WHERE hospital = $1 AND department = $2 AND active
		ORDER BY assigned_at
	`, hospital, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list department assignments: %w", err)
	}
	return out, nil
}
