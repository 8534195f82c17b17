package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// PatientCodePending marks a patient whose human-readable code is not assigned yet.
const PatientCodePending = "PENDING"

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

type Patient struct {
	Base
	PatientCode string    `json:"patient_code" db:"patient_code"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	DOB         time.Time `json:"dob" db:"dob"`
	Gender      string    `json:"gender" db:"gender"`
	Contact     string    `json:"contact" db:"contact"`
	Hospital    string    `json:"hospital" db:"hospital"`
	Department  string    `json:"department" db:"department"`
	CreatedBy   uuid.UUID `json:"created_by" db:"created_by"`
}

// PatientView is what a patient sees of their own profile.
type PatientView struct {
	ID          uuid.UUID `json:"id"`
	PatientCode string    `json:"patient_code"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	DOB         time.Time `json:"dob"`
	Gender      string    `json:"gender"`
	Contact     string    `json:"contact"`
	Hospital    string    `json:"hospital"`
	Department  string    `json:"department"`
}

func (p *Patient) SelfView() *PatientView {
	return &PatientView{
		ID:          p.ID,
		PatientCode: p.PatientCode,
		Name:        p.Name,
		Email:       p.Email,
		DOB:         p.DOB,
		Gender:      p.Gender,
		Contact:     p.Contact,
		Hospital:    p.Hospital,
		Department:  p.Department,
	}
}

// FormatPatientCode renders the human-readable id, e.g. "MH-CARDIO-000042".
func FormatPatientCode(hospital, department string, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", hospitalInitials(hospital), strings.ToUpper(department), seq)
}

func hospitalInitials(hospital string) string {
	words := strings.FieldsFunc(hospital, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 1 {
		return strings.ToUpper(words[0])
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteRune(unicode.ToUpper([]rune(w)[0]))
	}
	return b.String()
}

type CreatePatientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	DOB     string `json:"dob" binding:"required,datetime=2006-01-02"`
	Gender  string `json:"gender" binding:"required,gender"`
	Contact string `json:"contact" binding:"required"`
}

// UpdatePatientRequest carries only the fields present in the request body.
type UpdatePatientRequest struct {
	Name    *string `json:"name,omitempty"`
	DOB     *string `json:"dob,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Gender  *string `json:"gender,omitempty" binding:"omitempty,gender"`
	Contact *string `json:"contact,omitempty"`
	Email   *string `json:"email,omitempty" binding:"omitempty,email"`
}

// Fields lists the json names of fields set on the request.
func (r *UpdatePatientRequest) Fields() []string {
	var fields []string
	if r.Name != nil {
		fields = append(fields, "name")
	}
	if r.DOB != nil {
		fields = append(fields, "dob")
	}
	if r.Gender != nil {
		fields = append(fields, "gender")
	}
	if r.Contact != nil {
		fields = append(fields, "contact")
	}
	if r.Email != nil {
		fields = append(fields, "email")
	}
	return fields
}

// PatientCredentials are returned once, when the patient account is created.
type PatientCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreatePatientResponse struct {
	Patient     *Patient            `json:"patient"`
	Credentials *PatientCredentials `json:"credentials"`
}
