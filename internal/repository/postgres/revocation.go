package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/medrecord-api/internal/repository"
)

type revocationRepository struct {
	BaseRepository
}

func NewRevocationRepository(base BaseRepository) repository.RevocationRepository {
	return &revocationRepository{base}
}

func (r *revocationRepository) Revoke(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO NOTHING
	`
	if _, err := r.GetDB().ExecContext(ctx, query, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked ignores rows past their expiry so a lagging purge has no effect.
func (r *revocationRepository) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var revoked bool
	err := r.GetDB().GetContext(ctx, &revoked, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = $1 AND expires_at > NOW())
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return revoked, nil
}

func (r *revocationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
