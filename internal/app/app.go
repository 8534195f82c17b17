// Package app wires configuration, storage and services into the HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medrecord-api/config"
	"github.com/jwalitptl/medrecord-api/internal/email"
	assignmenthandler "github.com/jwalitptl/medrecord-api/internal/handler/assignment"
	authhandler "github.com/jwalitptl/medrecord-api/internal/handler/auth"
	"github.com/jwalitptl/medrecord-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/medrecord-api/internal/handler/patient"
	promhandler "github.com/jwalitptl/medrecord-api/internal/handler/prometheus"
	"github.com/jwalitptl/medrecord-api/internal/handler/record"
	"github.com/jwalitptl/medrecord-api/internal/middleware"
	"github.com/jwalitptl/medrecord-api/internal/router"
	"github.com/jwalitptl/medrecord-api/internal/service/access"
	"github.com/jwalitptl/medrecord-api/internal/service/assignment"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/internal/service/auth"
	"github.com/jwalitptl/medrecord-api/internal/service/medical"
	"github.com/jwalitptl/medrecord-api/internal/service/patient"
	jwtauth "github.com/jwalitptl/medrecord-api/pkg/auth"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
	"github.com/jwalitptl/medrecord-api/pkg/security"
	"github.com/jwalitptl/medrecord-api/pkg/validator"
)

const metricsNamespace = "medrec"

// Options overrides collaborators that are otherwise built from config.
type Options struct {
	Registry *prometheus.Registry
	Mailer   email.Service
	Hasher   security.PasswordHasher
}

type App struct {
	Router  *router.Router
	Auditor *audit.AuditLogger
	Auth    *auth.Service
	Metrics *metrics.Metrics
}

func New(cfg *config.Config, repos *Repositories, opts Options) (*App, error) {
	if err := validator.Register(); err != nil {
		return nil, err
	}

	keys, err := cfg.Encryption.Keyring()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption keys: %w", err)
	}
	codec, err := security.NewAESCodec(keys)
	if err != nil {
		return nil, err
	}

	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Hasher == nil {
		opts.Hasher = security.NewBcryptHasher(0)
	}
	if opts.Mailer == nil {
		opts.Mailer = mailerFor(cfg.SMTP)
	}

	m := metrics.New(metricsNamespace, opts.Registry)
	httpMetrics := promhandler.New(metricsNamespace, opts.Registry)

	auditor := audit.NewAuditLogger(audit.NewService(repos.Audit))

	revocations := repos.Revocations
	if cfg.Revocation.CacheEnabled {
		revocations = auth.NewCachedRevocations(revocations, auth.CacheConfig{
			Capacity:        cfg.Revocation.CacheCapacity,
			NegativeTTL:     cfg.Revocation.NegativeTTL,
			CleanupInterval: cfg.Revocation.CleanupInterval,
		}, m)
	}

	authSvc := auth.NewService(auth.Options{
		Users:       repos.Users,
		Revocations: revocations,
		JWT:         jwtauth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry()),
		Hasher:      opts.Hasher,
		Auditor:     auditor,
		Metrics:     m,
		Domains:     cfg.HospitalDomains(),
	})

	policy := access.NewEngine(m)
	scope := access.NewResolver(repos.Assignments, repos.Patients, cfg.Access.MatchHospital)

	patientSvc := patient.NewService(repos.Patients, repos.Users, policy, scope, opts.Hasher, opts.Mailer, auditor)
	recordSvc := medical.NewService(repos.Records, repos.Patients, policy, scope, codec, auditor, m)
	assignmentSvc := assignment.NewService(repos.Assignments, repos.Patients, repos.Users, policy, scope, auditor, m)

	checks := make([]health.Checker, 0, len(repos.Checks))
	for _, c := range repos.Checks {
		checks = append(checks, health.CheckFunc{Label: c.Name, Fn: c.Ping})
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}
	sizeLimit := middleware.DefaultSizeLimitConfig()
	if cfg.Server.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = cfg.Server.MaxBodyBytes
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		router.Handlers{
			Auth:       authhandler.NewHandler(authSvc),
			Health:     health.NewHandler(httpMetrics.Handler(), checks...),
			Patient:    patienthandler.NewHandler(patientSvc),
			Record:     record.NewHandler(recordSvc),
			Assignment: assignmenthandler.NewHandler(assignmentSvc),
			Metrics:    httpMetrics,
		},
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSConfig:     corsConfig,
			SizeLimit:      sizeLimit,
			RateLimit: middleware.RateLimiterConfig{
				Rate:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst:     cfg.RateLimit.Burst,
				ClientTTL: cfg.RateLimit.ClientTTL,
			},
		},
	)
	r.Setup()

	return &App{
		Router:  r,
		Auditor: auditor,
		Auth:    authSvc,
		Metrics: m,
	}, nil
}

func mailerFor(cfg config.SMTPConfig) email.Service {
	if cfg.Host == "" {
		return email.NewLogService()
	}
	return email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

// Shutdown waits for queued audit writes.
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Auditor.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
