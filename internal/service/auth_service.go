package service

import (
	"context"
	"errors"
	"strings"

	"github.com/itasset/ticket-workflow/internal/auth"
	"github.com/itasset/ticket-workflow/internal/config"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/repository"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// AuthService handles staff login and account provisioning.
type AuthService struct {
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, staff repository.StaffRepository) *AuthService {
	return &AuthService{
		staff:      staff,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// LoginStaff authenticates staff and returns a role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, domain.Token, string, error) {
	staff, err := s.staff.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Token{}, "", apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, domain.Token{}, "", apperrors.MapError(err)
	}
	if !staff.Active {
		return nil, domain.Token{}, "", apperrors.NewForbidden("staff account inactive")
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, domain.Token{}, "", apperrors.NewUnauthorized("invalid credentials")
	}
	signed, token, err := s.tokenMgr.GenerateToken(staff.ID, staff.Role)
	if err != nil {
		return nil, domain.Token{}, "", apperrors.NewInternalError(err)
	}
	return staff, token, signed, nil
}

// CreateStaff provisions a staff account. Used by the bootstrap admin seed.
func (s *AuthService) CreateStaff(ctx context.Context, name, email, password string, role domain.StaffRole) (*domain.StaffMember, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, mapStoreError(err, "staff member", map[string]any{"email": staff.Email})
	}
	return staff, nil
}

// EnsureStaff creates the account unless one with the same email exists.
func (s *AuthService) EnsureStaff(ctx context.Context, name, email, password string, role domain.StaffRole) (*domain.StaffMember, error) {
	existing, err := s.staff.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}
	return s.CreateStaff(ctx, name, email, password, role)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
