package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("secret")
	now := time.Now()

	claims := &domain.TokenClaims{
		ContextID: "ctx-123",
		Kind:      domain.ContextKindContent,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected JWT with 3 segments, got %q", token)
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	if parsed.ContextID != claims.ContextID {
		t.Errorf("expected context id %s, got %s", claims.ContextID, parsed.ContextID)
	}
	if parsed.Kind != claims.Kind {
		t.Errorf("expected kind %s, got %s", claims.Kind, parsed.Kind)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expected expiry %d, got %d", claims.ExpiresAt, parsed.ExpiresAt)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	signer := NewAdapter("secret-a")
	verifier := NewAdapter("secret-b")

	token, _ := signer.GenerateToken(&domain.TokenClaims{
		ContextID: "ctx-1",
		Kind:      domain.ContextKindPopup,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.ParseToken(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapter("secret")

	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		ContextID: "ctx-1",
		Kind:      domain.ContextKindContent,
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := adapter.ParseToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseToken_Malformed(t *testing.T) {
	adapter := NewAdapter("secret")

	for _, token := range []string{"", "invalid", "a.b.c"} {
		if _, err := adapter.ParseToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	adapter := NewAdapter("secret")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwtClaims{
		ContextID: "ctx-1",
		Kind:      domain.ContextKindContent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := adapter.ParseToken(token); err == nil {
		t.Error("expected error for unsigned token")
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	adapter := NewAdapter("secret")

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		ContextID: "ctx-1",
		Kind:      domain.ContextKindContent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, _ := foreign.SignedString([]byte("secret"))

	if _, err := adapter.ParseToken(token); err == nil {
		t.Error("expected error for foreign issuer")
	}
}
