// Package email delivers account notices to patients.
package email

import (
	"context"
	"fmt"
)

type Service interface {
	SendCredentials(ctx context.Context, msg CredentialsMessage) error
}

// CredentialsMessage announces a new patient login.
type CredentialsMessage struct {
	To          string
	Name        string
	PatientCode string
	Password    string
}

func (m CredentialsMessage) subject() string {
	return "Your patient portal account"
}

func (m CredentialsMessage) body() string {
	return fmt.Sprintf(`Hello %s,

An account has been created for you at the patient portal.

Patient code: %s
Login:        %s
Password:     %s

Please change this password after your first login.
`, m.Name, m.PatientCode, m.To, m.Password)
}
