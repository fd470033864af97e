package driven

import "github.com/custodia-labs/descgen-core/internal/core/domain"

// AuthAdapter issues and verifies tokens presented by extension contexts
type AuthAdapter interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
