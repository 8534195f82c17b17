package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/config"
	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/internal/repository/memory"
	"github.com/jwalitptl/medrecord-api/internal/repository/postgres"
	"github.com/jwalitptl/medrecord-api/internal/repository/redis"
)

// Repositories is the storage the services run against.
type Repositories struct {
	Users       repository.UserRepository
	Patients    repository.PatientRepository
	Records     repository.MedicalRecordRepository
	Assignments repository.AssignmentRepository
	Revocations repository.RevocationRepository
	Audit       repository.AuditRepository

	// Checks are pinged by the readiness probe.
	Checks  []Check
	closers []func() error
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

func MemoryRepositories(s *memory.Store) *Repositories {
	return &Repositories{
		Users:       s.Users(),
		Patients:    s.Patients(),
		Records:     s.Records(),
		Assignments: s.Assignments(),
		Revocations: s.Revocations(),
		Audit:       s.Audit(),
	}
}

func PostgresRepositories(db *sqlx.DB) *Repositories {
	base := postgres.NewBaseRepository(db)
	return &Repositories{
		Users:       postgres.NewUserRepository(base),
		Patients:    postgres.NewPatientRepository(base),
		Records:     postgres.NewMedicalRecordRepository(base),
		Assignments: postgres.NewAssignmentRepository(base),
		Revocations: postgres.NewRevocationRepository(base),
		Audit:       postgres.NewAuditRepository(base),
		Checks:      []Check{{Name: "postgres", Ping: db.PingContext}},
		closers:     []func() error{db.Close},
	}
}

// OpenRepositories connects the configured database and revocation backend.
func OpenRepositories(ctx context.Context, cfg *config.Config) (*Repositories, error) {
	var repos *Repositories
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using the in-memory store; data is lost on exit")
		repos = MemoryRepositories(memory.NewStore())
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		repos = PostgresRepositories(db)
	}

	switch cfg.Revocation.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			_ = repos.Close()
			return nil, err
		}
		repos.Revocations = redis.NewRevocationRepository(client)
		repos.Checks = append(repos.Checks, Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		repos.closers = append(repos.closers, client.Close)
	case "memory":
		if cfg.Database.Driver != "memory" {
			repos.Revocations = memory.NewStore().Revocations()
		}
	case "postgres":
		if cfg.Database.Driver != "postgres" {
			_ = repos.Close()
			return nil, fmt.Errorf("revocation backend postgres needs database driver postgres")
		}
	}

	return repos, nil
}

// Close releases connections in reverse order of opening.
func (r *Repositories) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
