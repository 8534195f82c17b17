package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/medrecord-api/internal/repository"
)

// Cleaner deletes rows older than a cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// RevocationPurge drops revocation entries whose token has expired. An
// expired token fails validation on its own, so the row is dead weight.
func RevocationPurge(repo repository.RevocationRepository) Job {
	return Job{
		Name: "revocation_purge",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			n, err := repo.PurgeExpired(ctx, now)
			if err != nil {
				return 0, fmt.Errorf("failed to purge revocations: %w", err)
			}
			return n, nil
		},
	}
}

// AuditCleanup deletes audit entries older than retentionDays.
func AuditCleanup(audit Cleaner, retentionDays int) Job {
	return Job{
		Name: "audit_cleanup",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			cutoff := now.AddDate(0, 0, -retentionDays)
			n, err := audit.Cleanup(ctx, cutoff)
			if err != nil {
				return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
			}
			return n, nil
		},
	}
}
