package driving

import (
	"context"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// AuthService handles login, sign-up and logout
type AuthService interface {
	// Login exchanges credentials for a token and stores it.
	// Any failure is reported as domain.ErrInvalidCredentials.
	Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error)

	// SignUp creates an account. Failures are *domain.RegistrationError.
	SignUp(ctx context.Context, req domain.SignUpRequest) error

	// Logout clears the stored session without contacting the backend
	Logout(ctx context.Context) error

	// Current returns the stored session or domain.ErrSessionNotFound
	Current(ctx context.Context) (*domain.Session, error)

	// Me returns the backend profile of the logged-in user
	Me(ctx context.Context) (*domain.User, error)
}
