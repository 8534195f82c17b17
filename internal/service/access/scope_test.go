package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository/memory"
)

func newPatient(t *testing.T, store *memory.Store, email, hospital, dept string) *model.Patient {
	t.Helper()
	p := &model.Patient{Name: "Pat", Email: email, Hospital: hospital, Department: dept}
	require.NoError(t, store.Patients().Create(context.Background(), p))
	return p
}

func TestInScope_Doctor(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	same := newPatient(t, store, "a@x.com", "H1", model.DepartmentCardio)
	otherDept := newPatient(t, store, "b@x.com", "H1", model.DepartmentNeuro)
	otherHospital := newPatient(t, store, "c@x.com", "H2", model.DepartmentCardio)

	doc := actor(model.RoleDoctor)

	strict := NewResolver(store.Assignments(), store.Patients(), true)
	for p, want := range map[*model.Patient]bool{same: true, otherDept: false, otherHospital: false} {
		ok, err := strict.InScope(ctx, doc, p)
		require.NoError(t, err)
		assert.Equal(t, want, ok, p.Email)
	}

	loose := NewResolver(store.Assignments(), store.Patients(), false)
	ok, err := loose.InScope(ctx, doc, otherHospital)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInScope_NurseNeedsAssignment(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	p := newPatient(t, store, "a@x.com", "H1", model.DepartmentCardio)
	nurse := actor(model.RoleNurse)
	r := NewResolver(store.Assignments(), store.Patients(), true)

	ok, err := r.InScope(ctx, nurse, p)
	require.NoError(t, err)
	assert.False(t, ok, "same department alone is not enough")
	assert.True(t, r.InOrganisation(nurse, p))

	a := &model.PatientAssignment{PatientID: p.ID, NurseID: nurse.ID, Hospital: "H1", Department: model.DepartmentCardio}
	require.NoError(t, store.Assignments().Reassign(ctx, a))

	ok, err = r.InScope(ctx, nurse, p)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Assignments().Reassign(ctx, &model.PatientAssignment{PatientID: p.ID, NurseID: uuid.New()}))
	ok, err = r.InScope(ctx, nurse, p)
	require.NoError(t, err)
	assert.False(t, ok, "reassignment revokes the previous nurse")
}

func TestInScope_PatientSelf(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	mine := newPatient(t, store, "Me@Example.com", "H1", model.DepartmentCardio)
	theirs := newPatient(t, store, "you@example.com", "H1", model.DepartmentCardio)
	r := NewResolver(store.Assignments(), store.Patients(), true)

	me := &model.Actor{ID: uuid.New(), Role: model.RolePatient, Email: "me@example.com"}

	ok, err := r.InScope(ctx, me, mine)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.InScope(ctx, me, theirs)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, r.InOrganisation(me, mine))

	rec := &model.MedicalRecord{PatientID: mine.ID, Hospital: "H1", Department: model.DepartmentCardio}
	ok, err = r.RecordInScope(ctx, me, rec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordInScope_DoctorUsesRecordColumns(t *testing.T) {
	r := NewResolver(nil, nil, true)
	rec := &model.MedicalRecord{PatientID: uuid.New(), Hospital: "H1", Department: model.DepartmentCardio}

	ok, err := r.RecordInScope(context.Background(), actor(model.RoleDoctor), rec)
	require.NoError(t, err)
	assert.True(t, ok)

	rec.Department = model.DepartmentOnco
	ok, err = r.RecordInScope(context.Background(), actor(model.RoleDoctor), rec)
	require.NoError(t, err)
	assert.False(t, ok)
}
