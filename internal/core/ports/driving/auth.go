package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// AuthService validates and issues context tokens
type AuthService interface {
	// ValidateToken validates a JWT token and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// IssueToken creates a token for a context
	IssueToken(ctx context.Context, kind domain.ContextKind, ttl time.Duration) (string, error)
}
