package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *smtpService) SendCredentials(ctx context.Context, msg CredentialsMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.subject())
	m.SetBody("text/plain", msg.body())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send credentials mail: %w", err)
	}
	log.Info().Str("patient_code", msg.PatientCode).Msg("credentials mail sent")
	return nil
}

// logService stands in when no SMTP server is configured. The password is
// never logged.
type logService struct{}

func NewLogService() Service {
	return logService{}
}

func (logService) SendCredentials(_ context.Context, msg CredentialsMessage) error {
	log.Info().
		Str("patient_code", msg.PatientCode).
		Msg("smtp not configured, credentials mail skipped")
	return nil
}
