// Package auth turns bearer tokens into actors and manages staff accounts.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	jwtauth "github.com/jwalitptl/medrecord-api/pkg/auth"
	"github.com/jwalitptl/medrecord-api/pkg/errors"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
	"github.com/jwalitptl/medrecord-api/pkg/security"
)

const tokenType = "Bearer"

// dummyHash keeps the login path the same length for unknown emails.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWXTn3PIeGQpBPh3h6B/2Ik0.EAe"

type Service struct {
	users       repository.UserRepository
	revocations repository.RevocationRepository
	jwtSvc      jwtauth.JWTService
	hasher      security.PasswordHasher
	auditor     audit.Recorder
	metrics     *metrics.Metrics
	domains     map[string]string
}

type Options struct {
	Users       repository.UserRepository
	Revocations repository.RevocationRepository
	JWT         jwtauth.JWTService
	Hasher      security.PasswordHasher
	Auditor     audit.Recorder
	Metrics     *metrics.Metrics
	// Domains maps a hospital name to the email domain its staff must use.
	Domains map[string]string
}

func NewService(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &Service{
		users:       opts.Users,
		revocations: opts.Revocations,
		jwtSvc:      opts.JWT,
		hasher:      opts.Hasher,
		auditor:     opts.Auditor,
		metrics:     opts.Metrics,
		domains:     opts.Domains,
	}
}

// Resolve authenticates a bearer token and returns the actor built from the
// live user row. Claims inside the token are never trusted for role or scope.
func (s *Service) Resolve(ctx context.Context, token string) (*model.Actor, error) {
	if token == "" {
		return nil, s.reject("missing_token", nil)
	}

	revoked, err := s.revocations.IsRevoked(ctx, security.TokenDigest(token))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("check revocation: %w", err))
	}
	if revoked {
		return nil, s.reject("revoked", nil)
	}

	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		reason := "invalid_token"
		if stderrors.Is(err, jwtauth.ErrExpiredToken) {
			reason = "expired"
		}
		return nil, s.reject(reason, err)
	}

	user, err := s.users.Get(ctx, uuid.MustParse(claims.Subject))
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, s.reject("unknown_user", err)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load user: %w", err))
	}

	return model.ActorFromUser(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Internal(fmt.Errorf("load user: %w", err))
	}

	if user == nil {
		_ = s.hasher.Compare(dummyHash, password)
		return nil, s.badCredentials()
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, s.badCredentials()
	}

	token, claims, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.auditor.Log(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil)

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   tokenType,
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
	}, nil
}

// Logout revokes token until it expires. Later requests with it fail even
// though the signature is still valid.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return s.reject("invalid_token", err)
	}

	if err := s.revocations.Revoke(ctx, security.TokenDigest(token), claims.ExpiresAt.Time); err != nil {
		return errors.Internal(fmt.Errorf("revoke token: %w", err))
	}

	// the logout entry is written before returning; the token is already
	// revoked, so a failed write is logged rather than returned
	userID := uuid.MustParse(claims.Subject)
	if err := s.auditor.LogSync(ctx, userID, model.AuditActionLogout, model.AuditEntityUser, userID, nil); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to write logout audit entry")
	}
	return nil
}

// Register creates doctor and nurse accounts. Patient accounts come from
// patient registration only.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if !req.Role.Staff() {
		return nil, errors.BadRequest("only doctor and nurse accounts can be registered", nil)
	}
	if err := s.checkDomain(req.Hospital, req.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.BadRequest("password rejected", err)
	}

	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Hospital:     req.Hospital,
		Department:   req.Department,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.BadRequest("email already registered", err)
		}
		return nil, errors.Internal(fmt.Errorf("create user: %w", err))
	}

	s.auditor.Log(ctx, user.ID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Metadata: map[string]string{"role": string(user.Role), "hospital": user.Hospital},
	})

	return user, nil
}

// Me returns the caller's current profile.
func (s *Service) Me(ctx context.Context, actor *model.Actor) (*model.User, error) {
	user, err := s.users.Get(ctx, actor.ID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Unauthorized(err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return user, nil
}

func (s *Service) checkDomain(hospital, email string) error {
	domain, ok := s.domains[hospital]
	if !ok {
		return errors.BadRequest(fmt.Sprintf("unknown hospital %q", hospital), nil)
	}

	at := strings.LastIndexByte(email, '@')
	if at < 0 || !strings.EqualFold(email[at+1:], domain) {
		return errors.BadRequest(fmt.Sprintf("%s staff must register with an @%s address", hospital, domain), nil)
	}
	return nil
}

func (s *Service) badCredentials() error {
	s.metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
	return errors.NewUnauthorized("invalid email or password", nil)
}

func (s *Service) reject(reason string, err error) error {
	s.metrics.AuthFailures.WithLabelValues(reason).Inc()
	log.Debug().Str("reason", reason).Err(err).Msg("token rejected")
	return errors.Unauthorized(err)
}
