package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = strings.Repeat("s", 32)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	id := Identity{SubjectID: uuid.New(), Role: domain.RoleAdmin}

	token, err := issuer.Issue(id)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if token.Role != domain.RoleAdmin || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token metadata: %+v", token)
	}

	got, err := issuer.Verify(token.AccessToken)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got != id {
		t.Fatalf("expected %+v, got %+v", id, got)
	}
}

func TestVerifyRejects(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	valid, err := issuer.Issue(Identity{SubjectID: uuid.New(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	expired := NewTokenIssuer(testSecret, 15*time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _ := expired.Issue(Identity{SubjectID: uuid.New(), Role: domain.RoleUser})

	other := NewTokenIssuer(strings.Repeat("x", 32), 15*time.Minute)
	foreign, _ := other.Issue(Identity{SubjectID: uuid.New(), Role: domain.RoleUser})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.NewString(), "role": "admin"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"tampered", valid.AccessToken + "x"},
		{"expired", stale.AccessToken},
		{"wrong secret", foreign.AccessToken},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Verify(tt.token); !IsInvalidToken(err) {
				t.Fatalf("expected invalid token error, got %v", err)
			}
		})
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity on empty context")
	}
	id := Identity{SubjectID: uuid.New(), Role: domain.RoleUser}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), id))
	if !ok || got != id {
		t.Fatalf("expected %+v, got %+v (ok=%t)", id, got, ok)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("expected password to match: %v", err)
	}
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch")
	}
	h.CompareDummy("anything")
}

func TestBcryptHasherPasswordLength(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	if _, err := h.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("expected a %d byte password to hash, got %v", MaxPasswordBytes, err)
	}
	for _, password := range []string{strings.Repeat("a", MaxPasswordBytes+1), strings.Repeat("é", 37)} {
		_, err := h.Hash(password)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ValidationError for %d bytes, got %v", len(password), err)
		}
		if de, _ := domain.AsError(err); de.Field != "password" {
			t.Fatalf("expected password field, got %+v", de)
		}
	}
}
