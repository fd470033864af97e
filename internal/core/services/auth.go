package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

const defaultTokenTTL = 24 * time.Hour

// authService implements the AuthService interface
type authService struct {
	authAdapter driven.AuthAdapter
	tokenTTL    time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(authAdapter driven.AuthAdapter) driving.AuthService {
	return &authService{
		authAdapter: authAdapter,
		tokenTTL:    defaultTokenTTL,
	}
}

// ValidateToken validates a JWT token and returns the auth context
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	// Parse and validate JWT
	claims, err := s.authAdapter.ParseToken(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	// Check expiration
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}

	if claims.ContextID == "" || !claims.Kind.IsValid() {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.AuthContext{
		ContextID: claims.ContextID,
		Kind:      claims.Kind,
	}, nil
}

// IssueToken creates a token for a new context of the given kind.
// A non-positive ttl uses the default of 24 hours.
func (s *authService) IssueToken(ctx context.Context, kind domain.ContextKind, ttl time.Duration) (string, error) {
	if !kind.IsValid() {
		return "", domain.ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = s.tokenTTL
	}

	now := time.Now()
	claims := &domain.TokenClaims{
		ContextID: uuid.NewString(),
		Kind:      kind,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	return s.authAdapter.GenerateToken(claims)
}
