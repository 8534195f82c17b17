package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordType classifies a medical record.
type RecordType string

const (
	RecordVitals       RecordType = "vitals"
	RecordDiagnosis    RecordType = "diagnosis"
	RecordPrescription RecordType = "prescription"
	RecordLab          RecordType = "lab"
	RecordGeneral      RecordType = "general"
)

func (t RecordType) Valid() bool {
	switch t {
	case RecordVitals, RecordDiagnosis, RecordPrescription, RecordLab, RecordGeneral:
		return true
	}
	return false
}

// MedicalRecord is the stored form. Hospital and Department are copied from
// the owning patient on creation and never edited afterwards.
type MedicalRecord struct {
	Base
	PatientID        uuid.UUID   `json:"patient_id" db:"patient_id"`
	RecordType       RecordType  `json:"record_type" db:"record_type"`
	Hospital         string      `json:"hospital" db:"hospital"`
	Department       string      `json:"department" db:"department"`
	EncryptedPayload string      `json:"-" db:"encrypted_payload"`
	IV               string      `json:"-" db:"iv"`
	CreatedBy        uuid.UUID   `json:"created_by" db:"created_by"`
	UpdatedBy        *uuid.UUID  `json:"updated_by,omitempty" db:"updated_by"`
	EditHistory      EditHistory `json:"edit_history" db:"edit_history"`
}

// EditEntry records who changed a record and which top-level payload keys
// they touched. Payload values are never kept here.
type EditEntry struct {
	EditedBy uuid.UUID `json:"edited_by"`
	Role     Role      `json:"role"`
	EditedAt time.Time `json:"edited_at"`
	Fields   []string  `json:"fields"`
}

type EditHistory []EditEntry

func (h EditHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *EditHistory) Scan(src interface{}) error {
	b, err := scanBytes(src)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, h)
}

// RecordError is reported in place of a payload that could not be read.
type RecordError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RecordView is a record as returned to a caller, payload already redacted.
type RecordView struct {
	ID          uuid.UUID    `json:"id"`
	PatientID   uuid.UUID    `json:"patient_id"`
	RecordType  RecordType   `json:"record_type"`
	Hospital    string       `json:"hospital"`
	Department  string       `json:"department"`
	CreatedBy   uuid.UUID    `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedBy   *uuid.UUID   `json:"updated_by,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
	EditHistory EditHistory  `json:"edit_history,omitempty"`
	Data        JSONMap      `json:"data,omitempty"`
	Error       *RecordError `json:"error,omitempty"`
}

// NewRecordView copies record metadata. The caller fills Data or Error.
func NewRecordView(r *MedicalRecord) *RecordView {
	return &RecordView{
		ID:          r.ID,
		PatientID:   r.PatientID,
		RecordType:  r.RecordType,
		Hospital:    r.Hospital,
		Department:  r.Department,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedBy:   r.UpdatedBy,
		UpdatedAt:   r.UpdatedAt,
		EditHistory: r.EditHistory,
	}
}

type CreateRecordRequest struct {
	PatientID  uuid.UUID  `json:"patient_id" binding:"required"`
	RecordType RecordType `json:"record_type" binding:"required,record_type"`
	Data       JSONMap    `json:"data" binding:"required"`
}

type UpdateRecordRequest struct {
	Data JSONMap `json:"data" binding:"required"`
}
