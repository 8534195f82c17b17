package patient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/internal/email"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/internal/service/access"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/security"
)

const (
	dateLayout     = "2006-01-02"
	passwordLength = 12
)

type Service struct {
	repo     repository.PatientRepository
	users    repository.UserRepository
	policy   *access.Engine
	scope    *access.Resolver
	hasher   security.PasswordHasher
	mailer   email.Service
	auditor  audit.Recorder
	password func() (string, error)
}

func NewService(repo repository.PatientRepository, users repository.UserRepository, policy *access.Engine,
	scope *access.Resolver, hasher security.PasswordHasher, mailer email.Service, auditor audit.Recorder) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		policy:   policy,
		scope:    scope,
		hasher:   hasher,
		mailer:   mailer,
		auditor:  auditor,
		password: func() (string, error) { return security.GeneratePassword(passwordLength) },
	}
}

// Create registers a patient in the nurse's own hospital and department and
// opens a patient login for them. The generated password is returned once.
func (s *Service) Create(ctx context.Context, actor *model.Actor, req *model.CreatePatientRequest) (*model.CreatePatientResponse, error) {
	if err := s.policy.Authorize(actor, access.OpCreate, access.Patients()).Err(); err != nil {
		return nil, err
	}

	dob, err := time.Parse(dateLayout, req.DOB)
	if err != nil {
		return nil, errors.BadRequest("dob must be YYYY-MM-DD", err)
	}

	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureEmailFree(ctx, addr); err != nil {
		return nil, err
	}

	p := &model.Patient{
		PatientCode: model.PatientCodePending,
		Name:        req.Name,
		Email:       addr,
		DOB:         dob,
		Gender:      req.Gender,
		Contact:     req.Contact,
		Hospital:    actor.Hospital,
		Department:  actor.Department,
		CreatedBy:   actor.ID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.BadRequest("a patient with this email already exists", err)
		}
		return nil, errors.Internal(fmt.Errorf("create patient: %w", err))
	}

	creds, err := s.createLogin(ctx, p)
	if err != nil {
		if derr := s.repo.Delete(ctx, p.ID); derr != nil {
			log.Error().Err(derr).Str("patient_id", p.ID.String()).Msg("failed to roll back patient")
		}
		return nil, err
	}

	if err := s.mailer.SendCredentials(ctx, email.CredentialsMessage{
		To:          p.Email,
		Name:        p.Name,
		PatientCode: p.PatientCode,
		Password:    creds.Password,
	}); err != nil {
		log.Warn().Err(err).Str("patient_code", p.PatientCode).Msg("credentials mail not delivered")
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityPatient, p.ID, &audit.LogOptions{
		Metadata: map[string]string{"patient_code": p.PatientCode},
	})

	return &model.CreatePatientResponse{Patient: p, Credentials: creds}, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, addr string) error {
	if _, err := s.repo.GetByEmail(ctx, addr); err == nil {
		return errors.BadRequest("a patient with this email already exists", nil)
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		return errors.Internal(err)
	}

	if _, err := s.users.GetByEmail(ctx, addr); err == nil {
		return errors.BadRequest("email is already used by another account", nil)
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		return errors.Internal(err)
	}
	return nil
}

func (s *Service) createLogin(ctx context.Context, p *model.Patient) (*model.PatientCredentials, error) {
	password, err := s.password()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate password: %w", err))
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &model.User{
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: hash,
		Role:         model.RolePatient,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.BadRequest("email is already used by another account", err)
		}
		return nil, errors.Internal(fmt.Errorf("create patient login: %w", err))
	}

	return &model.PatientCredentials{Email: p.Email, Password: password}, nil
}

// Get loads one patient. A patient asking for anyone but themselves is
// refused without learning whether the id exists.
func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Patient, error) {
	if err := s.policy.Authorize(actor, access.OpRead, access.Patients()).Err(); err != nil {
		return nil, err
	}

	p, err := s.repo.Get(ctx, id)
	return s.authorizeRead(ctx, actor, p, err)
}

func (s *Service) GetByEmail(ctx context.Context, actor *model.Actor, addr string) (*model.Patient, error) {
	if err := s.policy.Authorize(actor, access.OpRead, access.Patients()).Err(); err != nil {
		return nil, err
	}
	if actor.Role == model.RolePatient && !strings.EqualFold(actor.Email, addr) {
		return nil, errors.Forbidden("patients may only view their own profile")
	}

	p, err := s.repo.GetByEmail(ctx, addr)
	return s.authorizeRead(ctx, actor, p, err)
}

func (s *Service) authorizeRead(ctx context.Context, actor *model.Actor, p *model.Patient, err error) (*model.Patient, error) {
	if actor.Role == model.RolePatient {
		if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(err)
		}
		if err != nil || !strings.EqualFold(actor.Email, p.Email) {
			return nil, errors.Forbidden("patients may only view their own profile")
		}
		s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityPatient, p.ID, nil)
		return p, nil
	}

	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !s.scope.InOrganisation(actor, p) {
		return nil, errors.Forbidden("patient belongs to another department")
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionRead, model.AuditEntityPatient, p.ID, nil)
	return p, nil
}

// Update changes demographic fields. The patient code, hospital and
// department are fixed at registration.
func (s *Service) Update(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := s.policy.Authorize(actor, access.OpUpdate, access.Patients()).Err(); err != nil {
		return nil, err
	}
	fields := req.Fields()
	if err := access.CheckPatientUpdate(actor.Role, fields); err != nil {
		return nil, err
	}
	if req.Email != nil {
		return nil, errors.BadRequest("email is the patient's login and cannot be changed", nil)
	}

	p, err := s.repo.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !s.scope.InOrganisation(actor, p) {
		return nil, errors.Forbidden("patient belongs to another department")
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Contact != nil {
		p.Contact = *req.Contact
	}
	if req.Gender != nil {
		p.Gender = *req.Gender
	}
	if req.DOB != nil {
		dob, err := time.Parse(dateLayout, *req.DOB)
		if err != nil {
			return nil, errors.BadRequest("dob must be YYYY-MM-DD", err)
		}
		p.DOB = dob
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Internal(fmt.Errorf("update patient: %w", err))
	}

	s.auditor.Log(ctx, actor.ID, model.AuditActionUpdate, model.AuditEntityPatient, p.ID, &audit.LogOptions{
		Metadata: map[string][]string{"fields": fields},
	})

	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return updated, nil
}

// ListByHospital lists the doctor's own department within their hospital.
func (s *Service) ListByHospital(ctx context.Context, actor *model.Actor, hospital string) ([]*model.Patient, error) {
	if err := s.policy.Authorize(actor, access.OpList, access.Patients()).Err(); err != nil {
		return nil, err
	}
	if hospital != actor.Hospital {
		return nil, errors.Forbidden("doctors may only list their own hospital")
	}

	patients, err := s.repo.ListByOrganisation(ctx, actor.Hospital, actor.Department)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return patients, nil
}

// Present picks the representation the actor may see.
func Present(actor *model.Actor, p *model.Patient) interface{} {
	if actor.Role == model.RolePatient {
		return p.SelfView()
	}
	return p
}
