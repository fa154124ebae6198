package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Session is the single process-wide authenticated session.
// Token is opaque to the client; Username and ExpiresAt are read from
// its claims when the token happens to be a JWT.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if the session has a known expiry in the past
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// TTL returns the remaining lifetime, or 0 when the expiry is unknown
func (s *Session) TTL() time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	return time.Until(s.ExpiresAt)
}

// TokenClaims are the claims the client can read from an access token
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// LoginRequest is submitted as form data to the token endpoint
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by the token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignUpRequest creates a new account.
// Validation mirrors the form constraints only: every field is required
// and the email must be well-formed.
type SignUpRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	IsActive bool   `json:"is_active"`
}

var validate = validator.New()

// Validate checks the form constraints of a sign-up request
func (r *SignUpRequest) Validate() error {
	return validate.Struct(r)
}

// User is the account profile returned by the backend
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}
