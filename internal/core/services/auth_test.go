package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven/mocks"
)

func newTestAuthService() (*mocks.MockInvestiGraphAPI, *mocks.MockSessionStore, *authService) {
	api := mocks.NewMockInvestiGraphAPI()
	store := mocks.NewMockSessionStore()
	sessions := NewSessionManager(store, mocks.NewMockTokenInspector("analyst"), nil)
	svc := NewAuthService(api, sessions, nil).(*authService)
	return api, store, svc
}

func TestAuthService_Login(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.LoginRequest
		loginFn func(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error)
		wantErr error
	}{
		{
			name:    "valid credentials",
			req:     domain.LoginRequest{Username: "analyst", Password: "secret"},
			wantErr: nil,
		},
		{
			name:    "empty username",
			req:     domain.LoginRequest{Username: "", Password: "secret"},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name:    "empty password",
			req:     domain.LoginRequest{Username: "analyst", Password: ""},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name: "backend rejects",
			req:  domain.LoginRequest{Username: "analyst", Password: "wrong"},
			loginFn: func(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
				return nil, &domain.APIError{StatusCode: 401, Detail: "Incorrect username or password"}
			},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name: "backend unreachable",
			req:  domain.LoginRequest{Username: "analyst", Password: "secret"},
			loginFn: func(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
				return nil, errors.New("connection refused")
			},
			wantErr: domain.ErrInvalidCredentials,
		},
		{
			name: "empty token",
			req:  domain.LoginRequest{Username: "analyst", Password: "secret"},
			loginFn: func(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
				return &domain.TokenResponse{TokenType: "bearer"}, nil
			},
			wantErr: domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, store, svc := newTestAuthService()
			api.LoginFn = tt.loginFn

			session, err := svc.Login(context.Background(), tt.req)
			if err != tt.wantErr {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if store.Stored() != nil {
					t.Error("expected no session to be stored")
				}
				return
			}
			if session.Token != "token-analyst" {
				t.Errorf("expected token-analyst, got %s", session.Token)
			}
			if store.Stored() == nil || store.Stored().Token != session.Token {
				t.Error("expected session to be persisted")
			}
		})
	}
}

func TestAuthService_LoginStoreFailure(t *testing.T) {
	_, store, svc := newTestAuthService()
	store.SaveErr = errors.New("read-only filesystem")

	_, err := svc.Login(context.Background(), domain.LoginRequest{Username: "analyst", Password: "secret"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("store failure should not be reported as invalid credentials")
	}
}

func TestAuthService_SignUp(t *testing.T) {
	api, _, svc := newTestAuthService()

	var got domain.SignUpRequest
	api.RegisterFn = func(ctx context.Context, req domain.SignUpRequest) error {
		got = req
		return nil
	}

	err := svc.SignUp(context.Background(), domain.SignUpRequest{
		Username: "analyst",
		Email:    "analyst@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !got.IsActive {
		t.Error("expected account to be created active")
	}
}

func TestAuthService_SignUpValidation(t *testing.T) {
	api, _, svc := newTestAuthService()

	err := svc.SignUp(context.Background(), domain.SignUpRequest{
		Username: "analyst",
		Email:    "not-an-email",
		Password: "secret",
	})

	var regErr *domain.RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Error("expected ErrInvalidInput")
	}
	if api.Calls("Register") != 0 {
		t.Error("invalid form should not reach the backend")
	}
}

func TestAuthService_SignUpServerDetail(t *testing.T) {
	api, _, svc := newTestAuthService()
	api.RegisterFn = func(ctx context.Context, req domain.SignUpRequest) error {
		return &domain.APIError{StatusCode: 400, Detail: "Username already registered"}
	}

	err := svc.SignUp(context.Background(), domain.SignUpRequest{
		Username: "analyst",
		Email:    "analyst@example.com",
		Password: "secret",
	})
	if err == nil || err.Error() != "Username already registered" {
		t.Errorf("expected server detail, got %v", err)
	}
}

func TestAuthService_SignUpGenericFailure(t *testing.T) {
	api, _, svc := newTestAuthService()
	api.RegisterFn = func(ctx context.Context, req domain.SignUpRequest) error {
		return errors.New("connection reset")
	}

	err := svc.SignUp(context.Background(), domain.SignUpRequest{
		Username: "analyst",
		Email:    "analyst@example.com",
		Password: "secret",
	})
	if err == nil || err.Error() != domain.RegistrationFailedMessage {
		t.Errorf("expected %q, got %v", domain.RegistrationFailedMessage, err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	api, store, svc := newTestAuthService()

	if _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "analyst", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if store.Stored() != nil {
		t.Error("expected session to be cleared")
	}
	if _, err := svc.Current(context.Background()); err != domain.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if api.Calls("Login") != 1 {
		t.Errorf("expected 1 backend call, got %d", api.Calls("Login"))
	}
}

func TestAuthService_MeRequiresSession(t *testing.T) {
	api, _, svc := newTestAuthService()

	if _, err := svc.Me(context.Background()); err != domain.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if api.Calls("Me") != 0 {
		t.Error("expected no backend call without a session")
	}

	if _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "analyst", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	user, err := svc.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if user.Username != "analyst" {
		t.Errorf("unexpected user %+v", user)
	}
}
