package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
)

// Resolver decides whether a specific actor covers a specific patient.
type Resolver struct {
	assignments   repository.AssignmentRepository
	patients      repository.PatientRepository
	matchHospital bool
}

// NewResolver builds a Resolver. With matchHospital the doctor scope key is
// hospital+department, otherwise department alone.
func NewResolver(assignments repository.AssignmentRepository, patients repository.PatientRepository, matchHospital bool) *Resolver {
	return &Resolver{
		assignments:   assignments,
		patients:      patients,
		matchHospital: matchHospital,
	}
}

// InScope is the clinical scope check used for record access.
func (r *Resolver) InScope(ctx context.Context, actor *model.Actor, patient *model.Patient) (bool, error) {
	if actor == nil || patient == nil {
		return false, nil
	}

	switch actor.Role {
	case model.RolePatient:
		return sameEmail(actor.Email, patient.Email), nil
	case model.RoleDoctor:
		return r.doctorCovers(actor, patient.Hospital, patient.Department), nil
	case model.RoleNurse:
		ok, err := r.assignments.IsActive(ctx, actor.ID, patient.ID)
		if err != nil {
			return false, fmt.Errorf("check assignment: %w", err)
		}
		return ok, nil
	}
	return false, nil
}

// RecordInScope checks a record without loading the patient where the
// record's denormalised scope columns are enough.
func (r *Resolver) RecordInScope(ctx context.Context, actor *model.Actor, record *model.MedicalRecord) (bool, error) {
	if actor == nil || record == nil {
		return false, nil
	}

	switch actor.Role {
	case model.RoleDoctor:
		return r.doctorCovers(actor, record.Hospital, record.Department), nil
	case model.RoleNurse:
		ok, err := r.assignments.IsActive(ctx, actor.ID, record.PatientID)
		if err != nil {
			return false, fmt.Errorf("check assignment: %w", err)
		}
		return ok, nil
	case model.RolePatient:
		owner, err := r.patients.Get(ctx, record.PatientID)
		if err != nil {
			return false, fmt.Errorf("load record owner: %w", err)
		}
		return sameEmail(actor.Email, owner.Email), nil
	}
	return false, nil
}

// InOrganisation is the organisational check for staff: same hospital and
// department. It governs patient registration, demographics and
// assignments, never record access by nurses.
func (r *Resolver) InOrganisation(actor *model.Actor, patient *model.Patient) bool {
	if actor == nil || patient == nil {
		return false
	}

	switch actor.Role {
	case model.RoleDoctor, model.RoleNurse:
		return actor.SameOrganisation(patient.Hospital, patient.Department)
	case model.RolePatient:
		return false
	}
	return false
}

func (r *Resolver) doctorCovers(actor *model.Actor, hospital, department string) bool {
	if actor.Department != department {
		return false
	}
	return !r.matchHospital || actor.Hospital == hospital
}

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
