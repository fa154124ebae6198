package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService implements the AuthService interface
type authService struct {
	api      driven.InvestiGraphAPI
	sessions *SessionManager
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(api driven.InvestiGraphAPI, sessions *SessionManager, logger *slog.Logger) driving.AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &authService{
		api:      api,
		sessions: sessions,
		logger:   logger,
	}
}

// Login exchanges credentials for a token and stores it
func (s *authService) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	if req.Username == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	resp, err := s.api.Login(ctx, req)
	if err != nil {
		// The backend reason is never shown to the user
		s.logger.Debug("login rejected", "username", req.Username, "error", err)
		return nil, domain.ErrInvalidCredentials
	}
	if resp == nil || resp.AccessToken == "" {
		return nil, domain.ErrInvalidCredentials
	}

	session, err := s.sessions.Begin(ctx, resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if session.Username == "" {
		session.Username = req.Username
	}

	s.logger.Info("logged in", "username", session.Username)
	return session, nil
}

// SignUp creates an account. Accounts are always created active.
func (s *authService) SignUp(ctx context.Context, req domain.SignUpRequest) error {
	req.IsActive = true
	if err := req.Validate(); err != nil {
		return &domain.RegistrationError{Err: fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)}
	}

	if err := s.api.Register(ctx, req); err != nil {
		regErr := &domain.RegistrationError{Err: err}
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			regErr.Detail = apiErr.Detail
		}
		s.logger.Debug("registration rejected", "username", req.Username, "error", err)
		return regErr
	}

	s.logger.Info("account created", "username", req.Username)
	return nil
}

// Logout clears the stored session. The backend keeps no session state.
func (s *authService) Logout(ctx context.Context) error {
	return s.sessions.End(ctx)
}

// Current returns the stored session
func (s *authService) Current(ctx context.Context) (*domain.Session, error) {
	return s.sessions.Current()
}

// Me returns the backend profile of the logged-in user
func (s *authService) Me(ctx context.Context) (*domain.User, error) {
	if _, err := s.sessions.Current(); err != nil {
		return nil, err
	}
	return s.api.Me(ctx)
}
