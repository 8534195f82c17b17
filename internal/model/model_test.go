package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPatientCode(t *testing.T) {
	assert.Equal(t, "H1-CARDIO-000001", FormatPatientCode("H1", "cardio", 1))
	assert.Equal(t, "MH-ORTHO-000042", FormatPatientCode("Manipal Hospital", "ortho", 42))
	assert.Equal(t, "SJH-NEURO-123456", FormatPatientCode("st john hospital", "neuro", 123456))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleDoctor.Valid())
	assert.True(t, RoleNurse.Valid())
	assert.True(t, RolePatient.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, RolePatient.Staff())
}

func TestUpdatePatientRequestFields(t *testing.T) {
	name := "A"
	contact := "555"
	req := UpdatePatientRequest{Name: &name, Contact: &contact}
	assert.Equal(t, []string{"name", "contact"}, req.Fields())
}
