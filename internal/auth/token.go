// ABOUTME: JWT issuance and verification for operator access to admin API routes
// ABOUTME: HS256 tokens carrying the operator name, scoped by issuer and audience

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

const (
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 32

	// Issuer and Audience are stamped on every admin token.
	Issuer   = "agentpool"
	Audience = "agentpool-admin"
)

// TokenVerifier resolves a bearer token to the operator it was issued to.
type TokenVerifier interface {
	Verify(tokenString string) (subject string, err error)
}

// AdminClaims are the claims of an operator token.
type AdminClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier issues and verifies HS256 operator tokens.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithAudience(Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

// ValidateSecret checks that secret is long enough to sign tokens.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w (got %d)", ErrWeakSecret, len(secret))
	}
	return nil
}

// Verify validates the token and returns the operator named in its subject.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	claims := &AdminClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate issues a token for subject that expires after expiresIn.
func (v *JWTVerifier) Generate(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
