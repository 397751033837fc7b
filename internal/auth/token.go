/**
 * @description
 * This package issues and verifies the HS256 access tokens used by customers and
 * admins, and carries the resolved Identity through request contexts.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT signing and validation.
 */
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "avs-banking"

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = domain.NewError(domain.ErrAuth, "Invalid or expired token")

// Identity is the principal a verified token speaks for.
type Identity struct {
	SubjectID uuid.UUID
	Role      domain.Role
}

// Token is returned to clients after a successful login.
type Token struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Role        domain.Role `json:"role"`
}

type claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the identity.
func (t *TokenIssuer) Issue(id Identity) (*Token, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	c := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires, Role: id.Role}, nil
}

// Verify parses the token and returns the identity it was issued to.
func (t *TokenIssuer) Verify(tokenString string) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	var c claims
	if _, err := parser.ParseWithClaims(tokenString, &c, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}); err != nil {
		return Identity{}, ErrInvalidToken
	}

	subject, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if c.Role != domain.RoleUser && c.Role != domain.RoleAdmin {
		return Identity{}, ErrInvalidToken
	}
	return Identity{SubjectID: subject, Role: c.Role}, nil
}

type identityKey struct{}

// WithIdentity stores the verified identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity placed by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// IsInvalidToken reports whether err came from token verification.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
