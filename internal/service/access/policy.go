// Package access decides who may do what to which patient, and what part of
// a decrypted record each role gets to see.
package access

import (
	"fmt"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

type ResourceKind string

const (
	ResourceRecord     ResourceKind = "record"
	ResourcePatient    ResourceKind = "patient"
	ResourceAssignment ResourceKind = "assignment"
)

// Resource is what an operation targets. RecordType is only meaningful for
// records and may be empty when the type is not yet known.
type Resource struct {
	Kind       ResourceKind
	RecordType model.RecordType
}

func Record(t model.RecordType) Resource { return Resource{Kind: ResourceRecord, RecordType: t} }

func Patients() Resource { return Resource{Kind: ResourcePatient} }

func Assignments() Resource { return Resource{Kind: ResourceAssignment} }

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a Forbidden error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errors.Forbidden(d.Reason)
}

// Nurse-writable keys in a record update.
var nurseUpdateKeys = map[string]struct{}{
	"vitals":    {},
	"timestamp": {},
}

var nursePatientFields = map[string]struct{}{
	"name":    {},
	"contact": {},
}

// Engine answers whether a role may ever perform an operation. It does not
// look at any particular patient; that is the Resolver's job.
type Engine struct {
	metrics *metrics.Metrics
}

func NewEngine(m *metrics.Metrics) *Engine {
	return &Engine{metrics: m}
}

func (e *Engine) Authorize(actor *model.Actor, op Operation, res Resource) Decision {
	var d Decision
	if actor == nil {
		d = deny("no actor")
	} else {
		d = decide(actor.Role, op, res)
	}

	if e.metrics != nil {
		outcome := "allow"
		if !d.Allowed {
			outcome = "deny"
		}
		e.metrics.AuthzDecisions.WithLabelValues(string(res.Kind), string(op), outcome).Inc()
	}
	return d
}

func decide(role model.Role, op Operation, res Resource) Decision {
	switch res.Kind {
	case ResourceRecord:
		return decideRecord(role, op, res.RecordType)
	case ResourcePatient:
		return decidePatient(role, op)
	case ResourceAssignment:
		return decideAssignment(role, op)
	}
	return deny(fmt.Sprintf("unknown resource %q", res.Kind))
}

func decideRecord(role model.Role, op Operation, t model.RecordType) Decision {
	switch role {
	case model.RoleDoctor:
		switch op {
		case OpCreate, OpRead, OpUpdate:
			return allow()
		}
	case model.RoleNurse:
		switch op {
		case OpCreate:
			if t != model.RecordVitals {
				return deny("nurses may only create vitals records")
			}
			return allow()
		case OpRead, OpUpdate:
			return allow()
		}
	case model.RolePatient:
		if op == OpRead {
			return allow()
		}
		return deny("patients may only read their own records")
	default:
		return deny("unknown role")
	}
	return deny(fmt.Sprintf("%s may not %s records", role, op))
}

func decidePatient(role model.Role, op Operation) Decision {
	switch role {
	case model.RoleDoctor:
		switch op {
		case OpRead, OpUpdate, OpList:
			return allow()
		case OpCreate:
			return deny("only nurses may register patients")
		}
	case model.RoleNurse:
		switch op {
		case OpCreate, OpRead, OpUpdate:
			return allow()
		}
	case model.RolePatient:
		if op == OpRead {
			return allow()
		}
	default:
		return deny("unknown role")
	}
	return deny(fmt.Sprintf("%s may not %s patients", role, op))
}

func decideAssignment(role model.Role, op Operation) Decision {
	switch role {
	case model.RoleDoctor:
		switch op {
		case OpCreate, OpDelete, OpRead, OpList:
			return allow()
		}
	case model.RoleNurse:
		switch op {
		case OpRead, OpList:
			return allow()
		}
		return deny("only doctors may change assignments")
	case model.RolePatient:
		if op == OpRead {
			return allow()
		}
	default:
		return deny("unknown role")
	}
	return deny(fmt.Sprintf("%s may not %s assignments", role, op))
}

// CheckUpdatePayload validates the shape of a record update for the role.
// A nurse may only submit vitals, optionally with a timestamp.
func CheckUpdatePayload(role model.Role, payload model.JSONMap) error {
	if len(payload) == 0 {
		return errors.BadRequest("update payload is empty", nil)
	}

	switch role {
	case model.RoleDoctor:
		return nil
	case model.RoleNurse:
		if _, ok := payload["vitals"]; !ok {
			return errors.BadRequest("nurse updates must contain vitals", nil)
		}
		for k := range payload {
			if _, ok := nurseUpdateKeys[k]; !ok {
				return errors.BadRequest(fmt.Sprintf("nurses may not update %q", k), nil)
			}
		}
		return nil
	case model.RolePatient:
		return errors.Forbidden("patients may not update records")
	}
	return errors.Forbidden("unknown role")
}

// CheckPatientUpdate limits which demographic fields a role may change.
func CheckPatientUpdate(role model.Role, fields []string) error {
	if len(fields) == 0 {
		return errors.BadRequest("no fields to update", nil)
	}

	switch role {
	case model.RoleDoctor:
		return nil
	case model.RoleNurse:
		for _, f := range fields {
			if _, ok := nursePatientFields[f]; !ok {
				return errors.Forbidden(fmt.Sprintf("nurses may not change %s", f))
			}
		}
		return nil
	case model.RolePatient:
		return errors.Forbidden("patients may not update patient details")
	}
	return errors.Forbidden("unknown role")
}
