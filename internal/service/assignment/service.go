// Package assignment manages which nurse cares for which patient.
package assignment

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/internal/service/access"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
)

type Service struct {
	assignments repository.AssignmentRepository
	patients    repository.PatientRepository
	users       repository.UserRepository
	policy      *access.Engine
	scope       *access.Resolver
	auditor     audit.Recorder
	metrics     *metrics.Metrics
}

func NewService(assignments repository.AssignmentRepository, patients repository.PatientRepository, users repository.UserRepository,
	policy *access.Engine, scope *access.Resolver, auditor audit.Recorder, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		assignments: assignments,
		patients:    patients,
		users:       users,
		policy:      policy,
		scope:       scope,
		auditor:     auditor,
		metrics:     m,
	}
}

// Assign makes nurseID the patient's only active nurse. Any previous active
// assignment is deactivated in the same transition.
func (s *Service) Assign(ctx context.Context, actor *model.Actor, req *model.CreateAssignmentRequest) (*model.PatientAssignment, error) {
	if err := s.policy.Authorize(actor, access.OpCreate, access.Assignments()).Err(); err != nil {
		return nil, err
	}

	p, err := s.loadPatient(ctx, actor, req.PatientID)
	if err != nil {
		return nil, err
	}

	nurse, err := s.users.Get(ctx, req.NurseID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("nurse", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if nurse.Role != model.RoleNurse {
		return nil, errors.BadRequest("assignee is not a nurse", nil)
	}
	if !actor.SameOrganisation(nurse.Hospital, nurse.Department) {
		return nil, errors.Forbidden("nurse belongs to another department")
	}

	a := &model.PatientAssignment{
		PatientID:  p.ID,
		NurseID:    nurse.ID,
		AssignedBy: actor.ID,
		Hospital:   p.Hospital,
		Department: p.Department,
	}
	if err := s.assignments.Reassign(ctx, a); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("patient", err)
		}
		return nil, errors.Internal(fmt.Errorf("reassign: %w", err))
	}
	s.metrics.AssignmentChanges.WithLabelValues("assign").Inc()

	s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityAssignment, a.ID, &audit.LogOptions{
		Metadata: map[string]string{"patient_id": p.ID.String(), "nurse_id": nurse.ID.String()},
	})
	return a, nil
}

// Remove deactivates an assignment. Inactive assignments count as missing.
func (s *Service) Remove(ctx context.Context, actor *model.Actor, id uuid.UUID) error {
	if err := s.policy.Authorize(actor, access.OpDelete, access.Assignments()).Err(); err != nil {
		return err
	}

	a, err := s.assignments.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) || (err == nil && !a.Active) {
		return errors.NotFound("assignment", err)
	}
	if err != nil {
		return errors.Internal(err)
	}
	if !actor.SameOrganisation(a.Hospital, a.Department) {
		return errors.Forbidden("assignment belongs to another department")
	}

	if err := s.assignments.Deactivate(ctx, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("assignment", err)
		}
		return errors.Internal(err)
	}
	s.metrics.AssignmentChanges.WithLabelValues("remove").Inc()

	s.auditor.Log(ctx, actor.ID, model.AuditActionDelete, model.AuditEntityAssignment, id, nil)
	return nil
}

// ListForNurse returns the caller's active assignments with their patients.
func (s *Service) ListForNurse(ctx context.Context, actor *model.Actor) ([]*model.AssignmentView, error) {
	if err := s.policy.Authorize(actor, access.OpList, access.Assignments()).Err(); err != nil {
		return nil, err
	}
	if actor.Role != model.RoleNurse {
		return nil, errors.Forbidden("only nurses have assigned patients")
	}

	list, err := s.assignments.ListActiveByNurse(ctx, actor.ID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return s.withPatients(ctx, list)
}

// ActiveForPatient follows the same access rules as reading the patient.
func (s *Service) ActiveForPatient(ctx context.Context, actor *model.Actor, patientID uuid.UUID) (*model.AssignmentView, error) {
	if err := s.policy.Authorize(actor, access.OpRead, access.Assignments()).Err(); err != nil {
		return nil, err
	}

	p, err := s.patients.Get(ctx, patientID)
	switch {
	case actor.Role == model.RolePatient:
		if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(err)
		}
		if err != nil {
			return nil, errors.Forbidden("patients may only view their own care team")
		}
		ok, serr := s.scope.InScope(ctx, actor, p)
		if serr != nil {
			return nil, errors.Internal(serr)
		}
		if !ok {
			return nil, errors.Forbidden("patients may only view their own care team")
		}
	case stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.NotFound("patient", err)
	case err != nil:
		return nil, errors.Internal(err)
	case !s.scope.InOrganisation(actor, p):
		return nil, errors.Forbidden("patient belongs to another department")
	}

	a, err := s.assignments.ActiveForPatient(ctx, p.ID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("assignment", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return &model.AssignmentView{PatientAssignment: a, Patient: p}, nil
}

// ListDepartment returns the doctor's department's active assignments.
func (s *Service) ListDepartment(ctx context.Context, actor *model.Actor) ([]*model.AssignmentView, error) {
	if err := s.policy.Authorize(actor, access.OpList, access.Assignments()).Err(); err != nil {
		return nil, err
	}
	if actor.Role != model.RoleDoctor {
		return nil, errors.Forbidden("only doctors may list department assignments")
	}

	list, err := s.assignments.ListActiveByOrganisation(ctx, actor.Hospital, actor.Department)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return s.withPatients(ctx, list)
}

func (s *Service) loadPatient(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Patient, error) {
	p, err := s.patients.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !s.scope.InOrganisation(actor, p) {
		return nil, errors.Forbidden("patient belongs to another department")
	}
	return p, nil
}

func (s *Service) withPatients(ctx context.Context, list []*model.PatientAssignment) ([]*model.AssignmentView, error) {
	views := make([]*model.AssignmentView, 0, len(list))
	for _, a := range list {
		p, err := s.patients.Get(ctx, a.PatientID)
		if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(err)
		}
		views = append(views, &model.AssignmentView{PatientAssignment: a, Patient: p})
	}
	return views, nil
}
