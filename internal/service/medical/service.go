// Package medical runs the record pipeline: authorize, scope, seal on write,
// and open plus redact on read.
package medical

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/internal/service/access"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
	"github.com/jwalitptl/medrecord-api/pkg/security"
)

type Service struct {
	records  repository.MedicalRecordRepository
	patients repository.PatientRepository
	policy   *access.Engine
	scope    *access.Resolver
	codec    security.Codec
	auditor  audit.Recorder
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(records repository.MedicalRecordRepository, patients repository.PatientRepository, policy *access.Engine,
	scope *access.Resolver, codec security.Codec, auditor audit.Recorder, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		records:  records,
		patients: patients,
		policy:   policy,
		scope:    scope,
		codec:    codec,
		auditor:  auditor,
		metrics:  m,
		now:      time.Now,
	}
}

// Create seals and stores a new record. Only metadata is returned.
func (s *Service) Create(ctx context.Context, actor *model.Actor, req *model.CreateRecordRequest) (*model.RecordView, error) {
	if !req.RecordType.Valid() {
		return nil, errors.BadRequest(fmt.Sprintf("unknown record type %q", req.RecordType), nil)
	}
	if err := s.policy.Authorize(actor, access.OpCreate, access.Record(req.RecordType)).Err(); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, errors.BadRequest("record data is empty", nil)
	}

	p, err := s.patients.Get(ctx, req.PatientID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.requireScope(ctx, actor, p); err != nil {
		return nil, err
	}

	ciphertext, iv, err := s.codec.Seal(req.Data)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("seal record: %w", err))
	}

	rec := &model.MedicalRecord{
		PatientID:        p.ID,
		RecordType:       req.RecordType,
		Hospital:         p.Hospital,
		Department:       p.Department,
		EncryptedPayload: ciphertext,
		IV:               iv,
		CreatedBy:        actor.ID,
		EditHistory:      model.EditHistory{},
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, errors.Internal(fmt.Errorf("store record: %w", err))
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityMedicalRecord, rec.ID, &audit.LogOptions{
		Metadata: map[string]string{"record_type": string(rec.RecordType), "patient_id": p.ID.String()},
	})

	return model.NewRecordView(rec), nil
}

// ListForPatient returns every record of the patient the actor may see. A
// record that fails to decrypt is reported in place and does not fail the
// listing.
func (s *Service) ListForPatient(ctx context.Context, actor *model.Actor, patientID uuid.UUID) ([]*model.RecordView, error) {
	if err := s.policy.Authorize(actor, access.OpRead, access.Record("")).Err(); err != nil {
		return nil, err
	}

	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, s.lookupError(actor, "patient", err)
	}
	if err := s.requireScope(ctx, actor, p); err != nil {
		return nil, err
	}

	records, err := s.records.ListByPatient(ctx, p.ID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list records: %w", err))
	}

	views := make([]*model.RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, s.view(actor, rec, "list"))
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityPatient, p.ID, &audit.LogOptions{
		Metadata: map[string]int{"records": len(views)},
	})
	return views, nil
}

func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.RecordView, error) {
	if err := s.policy.Authorize(actor, access.OpRead, access.Record("")).Err(); err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(actor, "record", err)
	}
	if err := s.requireRecordScope(ctx, actor, rec); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityMedicalRecord, rec.ID, nil)
	return s.view(actor, rec, "get"), nil
}

// Update rewrites the payload under a fresh IV. Doctors replace it
// wholesale; nurses may only merge vitals into the existing payload.
func (s *Service) Update(ctx context.Context, actor *model.Actor, id uuid.UUID, payload model.JSONMap) (*model.RecordView, error) {
	if err := s.policy.Authorize(actor, access.OpUpdate, access.Record("")).Err(); err != nil {
		return nil, err
	}
	if err := access.CheckUpdatePayload(actor.Role, payload); err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(actor, "record", err)
	}
	if err := s.requireRecordScope(ctx, actor, rec); err != nil {
		return nil, err
	}

	next := payload
	if actor.Role == model.RoleNurse {
		var current model.JSONMap
		if err := s.codec.Open(rec.EncryptedPayload, rec.IV, &current); err != nil {
			s.metrics.DecryptFailures.WithLabelValues("update").Inc()
			return nil, errors.NewDecryption(err)
		}
		if current == nil {
			current = model.JSONMap{}
		}
		for k, v := range payload {
			current[k] = v
		}
		next = current
	}

	ciphertext, iv, err := s.codec.Seal(next)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("seal record: %w", err))
	}

	editor := actor.ID
	rec.EncryptedPayload = ciphertext
	rec.IV = iv
	rec.UpdatedBy = &editor
	rec.EditHistory = append(rec.EditHistory, model.EditEntry{
		EditedBy: actor.ID,
		Role:     actor.Role,
		EditedAt: s.now().UTC(),
		Fields:   access.ChangedKeys(payload),
	})

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, errors.Internal(fmt.Errorf("update record: %w", err))
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityMedicalRecord, rec.ID, &audit.LogOptions{
		Metadata: map[string][]string{"fields": access.ChangedKeys(payload)},
	})

	view := model.NewRecordView(rec)
	view.Data = access.Redact(actor.Role, rec.RecordType, next)
	return view, nil
}

func (s *Service) view(actor *model.Actor, rec *model.MedicalRecord, op string) *model.RecordView {
	view := model.NewRecordView(rec)
	if actor.Role == model.RolePatient {
		view.EditHistory = nil
	}

	var payload model.JSONMap
	if err := s.codec.Open(rec.EncryptedPayload, rec.IV, &payload); err != nil {
		s.metrics.DecryptFailures.WithLabelValues(op).Inc()
		log.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("record could not be decrypted")

		appErr := errors.NewDecryption(err)
		view.Error = &model.RecordError{Kind: appErr.Kind(), Message: appErr.Message}
		return view
	}

	view.Data = access.Redact(actor.Role, rec.RecordType, payload)
	return view
}

func (s *Service) requireScope(ctx context.Context, actor *model.Actor, p *model.Patient) error {
	ok, err := s.scope.InScope(ctx, actor, p)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		return errors.Forbidden("patient is outside your care scope")
	}
	return nil
}

func (s *Service) requireRecordScope(ctx context.Context, actor *model.Actor, rec *model.MedicalRecord) error {
	ok, err := s.scope.RecordInScope(ctx, actor, rec)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		return errors.Forbidden("record is outside your care scope")
	}
	return nil
}

// lookupError hides existence from patients: anything not theirs is
// forbidden, whether or not it exists.
func (s *Service) lookupError(actor *model.Actor, resource string, err error) error {
	if !stderrors.Is(err, repository.ErrNotFound) {
		return errors.Internal(err)
	}
	if actor.Role == model.RolePatient {
		return errors.Forbidden(fmt.Sprintf("%s is outside your care scope", resource))
	}
	return errors.NotFound(resource, err)
}
