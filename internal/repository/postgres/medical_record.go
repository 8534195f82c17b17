package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
)

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (
			id, patient_id, record_type, hospital, department, encrypted_payload, iv,
			created_by, edit_history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.RecordType,
		record.Hospital,
		record.Department,
		record.EncryptedPayload,
		record.IV,
		record.CreatedBy,
		record.EditHistory,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	var record model.MedicalRecord
	err := r.GetDB().GetContext(ctx, &record, `SELECT * FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get medical record: %w", mapError(err))
	}
	return &record, nil
}

// Update replaces the sealed payload and history. Scope columns are not written.
func (r *medicalRecordRepository) Update(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		UPDATE medical_records
		SET encrypted_payload = $1, iv = $2, updated_by = $3, edit_history = $4, updated_at = $5
		WHERE id = $6
	`
	record.UpdatedAt = time.Now()

	res, err := r.GetDB().ExecContext(ctx, query,
		record.EncryptedPayload,
		record.IV,
		record.UpdatedBy,
		record.EditHistory,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update medical record: %w", err)
	}
	return checkAffected(res)
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	var records []*model.MedicalRecord
	err := r.GetDB().SelectContext(ctx, &records,
		`SELECT * FROM medical_records WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medical records: %w", err)
	}
	return records, nil
}
