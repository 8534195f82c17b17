package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medrecord-api/internal/model"
)

func newValidate(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	v.SetTagName("binding")
	require.NoError(t, RegisterOn(v))
	return v
}

func TestCustomTags(t *testing.T) {
	v := newValidate(t)

	ok := model.RegisterRequest{Email: "a@hospital1.com", Password: "password1", Name: "A", Role: model.RoleNurse, Hospital: "H1", Department: "cardio"}
	assert.NoError(t, v.Struct(ok))

	bad := ok
	bad.Department = "dermatology"
	bad.Role = model.RolePatient
	err := Describe(v.Struct(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "department")
	assert.Contains(t, err.Error(), "role")

	rec := model.CreateRecordRequest{RecordType: "xray", Data: model.JSONMap{"a": 1}}
	err = Describe(v.Struct(rec))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record_type")
	assert.Contains(t, err.Error(), "patient_id")

	p := model.CreatePatientRequest{Name: "P", Email: "p@example.com", DOB: "01/02/1990", Gender: "unknown", Contact: "x"}
	err = Describe(v.Struct(p))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dob")
	assert.Contains(t, err.Error(), "gender")
}
