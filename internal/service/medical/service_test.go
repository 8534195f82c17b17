package medical

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository/memory"
	"github.com/jwalitptl/medrecord-api/internal/service/access"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/security"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixture struct {
	store   *memory.Store
	svc     *Service
	patient *model.Patient
	doctor  *model.Actor
	nurse   *model.Actor
	self    *model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keys, err := security.KeyringFromHex(testKey)
	require.NoError(t, err)
	codec, err := security.NewAESCodec(keys)
	require.NoError(t, err)

	store := memory.NewStore()
	auditor := audit.NewAuditLogger(audit.NewService(store.Audit()))
	t.Cleanup(auditor.Wait)

	svc := NewService(store.Records(), store.Patients(), access.NewEngine(nil),
		access.NewResolver(store.Assignments(), store.Patients(), true), codec, auditor, nil)

	p := &model.Patient{Name: "Pat", Email: "pat@example.com", Hospital: "H1", Department: model.DepartmentCardio}
	require.NoError(t, store.Patients().Create(context.Background(), p))

	return &fixture{
		store:   store,
		svc:     svc,
		patient: p,
		doctor:  staff(model.RoleDoctor, model.DepartmentCardio),
		nurse:   staff(model.RoleNurse, model.DepartmentCardio),
		self:    &model.Actor{ID: uuid.New(), Role: model.RolePatient, Email: "pat@example.com"},
	}
}

func staff(role model.Role, dept string) *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: role, Email: uuid.NewString() + "@hospital1.com", Hospital: "H1", Department: dept}
}

func (f *fixture) assign(t *testing.T, nurse *model.Actor) {
	t.Helper()
	require.NoError(t, f.store.Assignments().Reassign(context.Background(), &model.PatientAssignment{
		PatientID: f.patient.ID, NurseID: nurse.ID, Hospital: "H1", Department: model.DepartmentCardio,
	}))
}

func (f *fixture) create(t *testing.T, actor *model.Actor, rt model.RecordType, data model.JSONMap) *model.RecordView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), actor, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: rt, Data: data})
	require.NoError(t, err)
	return v
}

func assertCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errors.As(err).Code, "got %v", err)
}

func diagnosis() model.JSONMap {
	return model.JSONMap{"type": "diagnosis", "diagnosis": "flu", "summary": "ok", "instructions": "rest"}
}

func TestCreateStoresCiphertextOnly(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())
	assert.Nil(t, v.Data)
	assert.Equal(t, "H1", v.Hospital)

	stored, err := f.store.Records().Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.IV)
	assert.NotContains(t, stored.EncryptedPayload, "flu")
	assert.Equal(t, f.patient.Department, stored.Department)
}

func TestCreate_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, f.nurse)

	_, err := f.svc.Create(ctx, f.nurse, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: model.RecordDiagnosis, Data: diagnosis()})
	assertCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Create(ctx, f.self, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: model.RecordVitals, Data: model.JSONMap{"vitals": 1}})
	assertCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Create(ctx, f.doctor, &model.CreateRecordRequest{PatientID: uuid.New(), RecordType: model.RecordLab, Data: model.JSONMap{"a": 1}})
	assertCode(t, err, errors.ErrNotFound)

	_, err = f.svc.Create(ctx, f.doctor, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: "xray", Data: model.JSONMap{"a": 1}})
	assertCode(t, err, errors.ErrBadRequest)

	_, err = f.svc.Create(ctx, f.doctor, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: model.RecordLab})
	assertCode(t, err, errors.ErrBadRequest)

	unassigned := staff(model.RoleNurse, model.DepartmentCardio)
	_, err = f.svc.Create(ctx, unassigned, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: model.RecordVitals, Data: model.JSONMap{"vitals": 1}})
	assertCode(t, err, errors.ErrForbidden)
}

// Nurse registers the patient, an in-department doctor writes a diagnosis,
// an out-of-department doctor is refused, and an unassigned nurse gains
// access only once assigned.
func TestEndToEndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())

	ortho := staff(model.RoleDoctor, model.DepartmentOrtho)
	_, err := f.svc.Create(ctx, ortho, &model.CreateRecordRequest{PatientID: f.patient.ID, RecordType: model.RecordDiagnosis, Data: diagnosis()})
	assertCode(t, err, errors.ErrForbidden)

	n2 := staff(model.RoleNurse, model.DepartmentCardio)
	_, err = f.svc.ListForPatient(ctx, n2, f.patient.ID)
	assertCode(t, err, errors.ErrForbidden)

	f.assign(t, n2)
	f.create(t, n2, model.RecordVitals, model.JSONMap{"vitals": map[string]any{"hr": 80}, "notes": "calm"})

	views, err := f.svc.ListForPatient(ctx, n2, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byType := map[model.RecordType]*model.RecordView{}
	for _, v := range views {
		byType[v.RecordType] = v
	}
	assert.Contains(t, byType[model.RecordVitals].Data, "notes", "vitals records are shown in full")
	assert.NotContains(t, byType[model.RecordDiagnosis].Data, "diagnosis")
	assert.Equal(t, "ok", byType[model.RecordDiagnosis].Data["summary"])
}

func TestPatientView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())

	views, err := f.svc.ListForPatient(ctx, f.self, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotContains(t, views[0].Data, "diagnosis")
	assert.Equal(t, "rest", views[0].Data["instructions"])

	got, err := f.svc.Get(ctx, f.self, v.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Data, "diagnosis")

	_, err = f.svc.ListForPatient(ctx, f.self, uuid.New())
	assertCode(t, err, errors.ErrForbidden)
	_, err = f.svc.Get(ctx, f.self, uuid.New())
	assertCode(t, err, errors.ErrForbidden)

	other := &model.Patient{Name: "O", Email: "other@example.com", Hospital: "H1", Department: model.DepartmentCardio}
	require.NoError(t, f.store.Patients().Create(ctx, other))
	_, err = f.svc.ListForPatient(ctx, f.self, other.ID)
	assertCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Get(ctx, f.doctor, uuid.New())
	assertCode(t, err, errors.ErrNotFound)
}

func TestCorruptRecordIsReportedInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())
	bad := f.create(t, f.doctor, model.RecordLab, model.JSONMap{"result": "normal"})

	stored, err := f.store.Records().Get(ctx, bad.ID)
	require.NoError(t, err)
	stored.EncryptedPayload = strings.Repeat("A", len(stored.EncryptedPayload))
	require.NoError(t, f.store.Records().Update(ctx, stored))

	views, err := f.svc.ListForPatient(ctx, f.doctor, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	for _, v := range views {
		switch v.ID {
		case good.ID:
			assert.Nil(t, v.Error)
			assert.Equal(t, "flu", v.Data["diagnosis"])
		case bad.ID:
			require.NotNil(t, v.Error)
			assert.Equal(t, "decryption_error", v.Error.Kind)
			assert.Nil(t, v.Data)
		}
	}

	one, err := f.svc.Get(ctx, f.doctor, bad.ID)
	require.NoError(t, err)
	require.NotNil(t, one.Error)
}

func TestNurseUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, f.nurse)
	v := f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())

	before, err := f.store.Records().Get(ctx, v.ID)
	require.NoError(t, err)

	for _, payload := range []model.JSONMap{
		{"summary": "changed"},
		{"vitals": 1, "diagnosis": "cold"},
	} {
		_, err := f.svc.Update(ctx, f.nurse, v.ID, payload)
		assertCode(t, err, errors.ErrBadRequest)
	}

	unchanged, err := f.store.Records().Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, before.EncryptedPayload, unchanged.EncryptedPayload)
	assert.Empty(t, unchanged.EditHistory)

	updated, err := f.svc.Update(ctx, f.nurse, v.ID, model.JSONMap{"vitals": map[string]any{"bp": "120/80"}, "timestamp": "2024-03-01T10:00:00Z"})
	require.NoError(t, err)
	assert.Contains(t, updated.Data, "vitals")
	assert.NotContains(t, updated.Data, "diagnosis")

	full, err := f.svc.Get(ctx, f.doctor, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "flu", full.Data["diagnosis"], "nurse merge keeps existing content")
	assert.Contains(t, full.Data, "vitals")
	require.Len(t, full.EditHistory, 1)
	assert.Equal(t, model.RoleNurse, full.EditHistory[0].Role)
	assert.Equal(t, []string{"timestamp", "vitals"}, full.EditHistory[0].Fields)

	after, err := f.store.Records().Get(ctx, v.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.IV, after.IV)
}

func TestDoctorUpdateReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, f.doctor, model.RecordDiagnosis, diagnosis())

	_, err := f.svc.Update(ctx, f.doctor, v.ID, model.JSONMap{})
	assertCode(t, err, errors.ErrBadRequest)

	updated, err := f.svc.Update(ctx, f.doctor, v.ID, model.JSONMap{"diagnosis": "cold"})
	require.NoError(t, err)
	assert.Equal(t, model.JSONMap{"diagnosis": "cold"}, updated.Data)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, f.doctor.ID, *updated.UpdatedBy)

	_, err = f.svc.Update(ctx, f.self, v.ID, model.JSONMap{"diagnosis": "x"})
	assertCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Update(ctx, staff(model.RoleDoctor, model.DepartmentNeuro), v.ID, model.JSONMap{"diagnosis": "x"})
	assertCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Update(ctx, f.doctor, uuid.New(), model.JSONMap{"diagnosis": "x"})
	assertCode(t, err, errors.ErrNotFound)
}

func TestNurseUpdateOfCorruptRecordFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, f.nurse)
	v := f.create(t, f.nurse, model.RecordVitals, model.JSONMap{"vitals": 1})

	stored, err := f.store.Records().Get(ctx, v.ID)
	require.NoError(t, err)
	stored.IV = stored.IV[:4]
	require.NoError(t, f.store.Records().Update(ctx, stored))

	_, err = f.svc.Update(ctx, f.nurse, v.ID, model.JSONMap{"vitals": 2})
	assertCode(t, err, errors.ErrDecryption)
	assert.Equal(t, 500, errors.As(err).StatusCode())
}
