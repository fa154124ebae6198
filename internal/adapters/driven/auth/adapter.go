package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

// Ensure Inspector implements TokenInspector
var _ driven.TokenInspector = (*Inspector)(nil)

// Inspector reads access token claims without verifying the signature.
// The client never holds the backend signing key.
type Inspector struct {
	parser *jwt.Parser
}

// NewInspector creates a token inspector
func NewInspector() *Inspector {
	return &Inspector{parser: jwt.NewParser()}
}

// Inspect decodes sub, exp and iat from a JWT. Tokens that are not JWTs
// fail with domain.ErrTokenInvalid.
func (i *Inspector) Inspect(tokenString string) (*domain.TokenClaims, error) {
	if tokenString == "" {
		return nil, domain.ErrTokenInvalid
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := i.parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	return toDomainClaims(claims), nil
}

func toDomainClaims(claims *jwt.RegisteredClaims) *domain.TokenClaims {
	out := &domain.TokenClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out
}

// Adapter issues and verifies HS256 tokens and hashes passwords with
// bcrypt. It backs the in-process stand-in backend used by tests and
// local demos.
type Adapter struct {
	jwtSecret  []byte
	bcryptCost int
	tokenTTL   time.Duration
}

// NewAdapter creates a new auth adapter with the given JWT secret
func NewAdapter(jwtSecret string) *Adapter {
	return &Adapter{
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcrypt.DefaultCost,
		tokenTTL:   30 * time.Minute,
	}
}

// NewAdapterWithCost creates a new auth adapter with custom bcrypt cost
func NewAdapterWithCost(jwtSecret string, bcryptCost int) *Adapter {
	a := NewAdapter(jwtSecret)
	a.bcryptCost = bcryptCost
	return a
}

// HashPassword generates a bcrypt hash from a plaintext password
func (a *Adapter) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a bcrypt hash
func (a *Adapter) VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken creates a signed JWT for the subject
func (a *Adapter) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ParseToken validates a JWT and extracts its claims
func (a *Adapter) ParseToken(tokenString string) (*domain.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok && token.Valid {
		return toDomainClaims(claims), nil
	}

	return nil, fmt.Errorf("invalid token claims")
}
