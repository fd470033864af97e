package domain

// TokenClaims identifies the extension context presenting a token
type TokenClaims struct {
	ContextID string      `json:"context_id"`
	Kind      ContextKind `json:"kind"`
	IssuedAt  int64       `json:"iat"`
	ExpiresAt int64       `json:"exp"`
}

// AuthContext is the verified identity attached to a request
type AuthContext struct {
	ContextID string      `json:"context_id"`
	Kind      ContextKind `json:"kind"`
}
