package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var seq int64
		err := tx.GetContext(ctx, &seq, `
			INSERT INTO patient_counters (hospital, department, seq)
			VALUES ($1, $2, 1)
			ON CONFLICT (hospital, department) DO UPDATE SET seq = patient_counters.seq + 1
			RETURNING seq
		`, patient.Hospital, patient.Department)
		if err != nil {
			return fmt.Errorf("failed to allocate patient code: %w", err)
		}

		if patient.ID == uuid.Nil {
			patient.ID = uuid.New()
		}
		patient.PatientCode = model.FormatPatientCode(patient.Hospital, patient.Department, seq)
		patient.Email = strings.ToLower(patient.Email)
		patient.CreatedAt = time.Now()
		patient.UpdatedAt = patient.CreatedAt

		_, err = tx.ExecContext(ctx, `
			INSERT INTO patients (
				id, patient_code, name, email, dob, gender, contact,
				hospital, department, created_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			patient.ID,
			patient.PatientCode,
			patient.Name,
			patient.Email,
			patient.DOB,
			patient.Gender,
			patient.Contact,
			patient.Hospital,
			patient.Department,
			patient.CreatedBy,
			patient.CreatedAt,
			patient.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create patient: %w", mapError(err))
		}
		return nil
	})
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.GetDB().GetContext(ctx, &patient, `SELECT * FROM patients WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", mapError(err))
	}
	return &patient, nil
}

func (r *patientRepository) GetByEmail(ctx context.Context, email string) (*model.Patient, error) {
	var patient model.Patient
	err := r.GetDB().GetContext(ctx, &patient, `SELECT * FROM patients WHERE email = $1`, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get patient by email: %w", mapError(err))
	}
	return &patient, nil
}

// Update writes demographics only. patient_code, scope and authorship are fixed.
func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, email = $2, dob = $3, gender = $4, contact = $5, updated_at = $6
		WHERE id = $7
	`
	patient.UpdatedAt = time.Now()
	res, err := r.GetDB().ExecContext(ctx, query,
		patient.Name,
		strings.ToLower(patient.Email),
		patient.DOB,
		patient.Gender,
		patient.Contact,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", mapError(err))
	}
	return checkAffected(res)
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return checkAffected(res)
}

func (r *patientRepository) ListByOrganisation(ctx context.Context, hospital, department string) ([]*model.Patient, error) {
	var patients []*model.Patient
	err := r.GetDB().SelectContext(ctx, &patients,
		`SELECT * FROM patients WHERE hospital = $1 AND department = $2 ORDER BY created_at`,
		hospital, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
