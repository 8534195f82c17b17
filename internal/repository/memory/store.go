// Package memory is a process-local implementation of the repository
// interfaces. It backs unit tests and single-node local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
)

type orgKey struct {
	hospital   string
	department string
}

// Store holds every table behind one lock, so multi-row transitions such as
// Reassign are atomic to readers.
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]model.User
	patients    map[uuid.UUID]model.Patient
	counters    map[orgKey]int64
	records     map[uuid.UUID]model.MedicalRecord
	assignments map[uuid.UUID]model.PatientAssignment
	revoked     map[string]time.Time
	audit       []model.AuditLog
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]model.User),
		patients:    make(map[uuid.UUID]model.Patient),
		counters:    make(map[orgKey]int64),
		records:     make(map[uuid.UUID]model.MedicalRecord),
		assignments: make(map[uuid.UUID]model.PatientAssignment),
		revoked:     make(map[string]time.Time),
		now:         time.Now,
	}
}

func (s *Store) Users() repository.UserRepository {
	return userRepo{s}
}

func (s *Store) Patients() repository.PatientRepository {
	return patientRepo{s}
}

func (s *Store) Records() repository.MedicalRecordRepository {
	return recordRepo{s}
}

func (s *Store) Assignments() repository.AssignmentRepository {
	return assignmentRepo{s}
}

func (s *Store) Revocations() repository.RevocationRepository {
	return revocationRepo{s}
}

func (s *Store) Audit() repository.AuditRepository {
	return auditRepo{s}
}

// AuditLogs returns a copy of the audit trail.
func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditLog(nil), s.audit...)
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = r.s.now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) Create(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p.Email = strings.ToLower(p.Email)
	for _, existing := range r.s.patients {
		if existing.Email == p.Email {
			return repository.ErrDuplicate
		}
	}

	key := orgKey{p.Hospital, p.Department}
	r.s.counters[key]++

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.PatientCode = model.FormatPatientCode(p.Hospital, p.Department, r.s.counters[key])
	p.CreatedAt = r.s.now()
	p.UpdatedAt = p.CreatedAt
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r patientRepo) GetByEmail(_ context.Context, email string) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, p := range r.s.patients {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r patientRepo) Update(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.patients[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	email := strings.ToLower(p.Email)
	for id, other := range r.s.patients {
		if id != p.ID && other.Email == email {
			return repository.ErrDuplicate
		}
	}

	stored.Name = p.Name
	stored.Email = email
	stored.DOB = p.DOB
	stored.Gender = p.Gender
	stored.Contact = p.Contact
	stored.UpdatedAt = r.s.now()
	r.s.patients[p.ID] = stored
	*p = stored
	return nil
}

func (r patientRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.patients[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.patients, id)
	return nil
}

func (r patientRepo) ListByOrganisation(_ context.Context, hospital, department string) ([]*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Patient
	for _, p := range r.s.patients {
		if p.Hospital == hospital && p.Department == department {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientCode < out[j].PatientCode })
	return out, nil
}

type recordRepo struct{ s *Store }

func (r recordRepo) Create(_ context.Context, rec *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = r.s.now()
	rec.UpdatedAt = rec.CreatedAt
	r.s.records[rec.ID] = cloneRecord(*rec)
	return nil
}

func (r recordRepo) Get(_ context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec = cloneRecord(rec)
	return &rec, nil
}

func (r recordRepo) Update(_ context.Context, rec *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.records[rec.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.EncryptedPayload = rec.EncryptedPayload
	stored.IV = rec.IV
	stored.UpdatedBy = rec.UpdatedBy
	stored.EditHistory = append(model.EditHistory(nil), rec.EditHistory...)
	stored.UpdatedAt = r.s.now()
	rec.UpdatedAt = stored.UpdatedAt
	r.s.records[rec.ID] = stored
	return nil
}

func (r recordRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.MedicalRecord
	for _, rec := range r.s.records {
		if rec.PatientID == patientID {
			rec = cloneRecord(rec)
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func cloneRecord(rec model.MedicalRecord) model.MedicalRecord {
	rec.EditHistory = append(model.EditHistory(nil), rec.EditHistory...)
	return rec
}

type assignmentRepo struct{ s *Store }

func (r assignmentRepo) Reassign(_ context.Context, a *model.PatientAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.patients[a.PatientID]; !ok {
		return repository.ErrNotFound
	}

	now := r.s.now()
	for id, existing := range r.s.assignments {
		if existing.PatientID == a.PatientID && existing.Active {
			existing.Active = false
			existing.DeactivatedAt = &now
			r.s.assignments[id] = existing
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Active = true
	a.AssignedAt = now
	a.DeactivatedAt = nil
	r.s.assignments[a.ID] = *a
	return nil
}

func (r assignmentRepo) Get(_ context.Context, id uuid.UUID) (*model.PatientAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r assignmentRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.assignments[id]
	if !ok || !a.Active {
		return repository.ErrNotFound
	}
	now := r.s.now()
	a.Active = false
	a.DeactivatedAt = &now
	r.s.assignments[id] = a
	return nil
}

func (r assignmentRepo) ActiveForPatient(_ context.Context, patientID uuid.UUID) (*model.PatientAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.assignments {
		if a.PatientID == patientID && a.Active {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r assignmentRepo) IsActive(_ context.Context, nurseID, patientID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.assignments {
		if a.NurseID == nurseID && a.PatientID == patientID && a.Active {
			return true, nil
		}
	}
	return false, nil
}

func (r assignmentRepo) ListActiveByNurse(_ context.Context, nurseID uuid.UUID) ([]*model.PatientAssignment, error) {
	return r.filter(func(a model.PatientAssignment) bool { return a.NurseID == nurseID }), nil
}

func (r assignmentRepo) ListActiveByOrganisation(_ context.Context, hospital, department string) ([]*model.PatientAssignment, error) {
	return r.filter(func(a model.PatientAssignment) bool {
		return a.Hospital == hospital && a.Department == department
	}), nil
}

func (r assignmentRepo) filter(match func(model.PatientAssignment) bool) []*model.PatientAssignment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.PatientAssignment
	for _, a := range r.s.assignments {
		if a.Active && match(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out
}

type revocationRepo struct{ s *Store }

func (r revocationRepo) Revoke(_ context.Context, tokenHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.revoked[tokenHash]; !ok {
		r.s.revoked[tokenHash] = expiresAt
	}
	return nil
}

func (r revocationRepo) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	exp, ok := r.s.revoked[tokenHash]
	return ok && exp.After(r.s.now()), nil
}

func (r revocationRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, exp := range r.s.revoked {
		if !exp.After(now) {
			delete(r.s.revoked, k)
			n++
		}
	}
	return n, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.audit = append(r.s.audit, *log)
	return nil
}

func (r auditRepo) Cleanup(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.audit[:0]
	var n int64
	for _, l := range r.s.audit {
		if l.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.s.audit = kept
	return n, nil
}
