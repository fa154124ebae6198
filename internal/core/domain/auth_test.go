package domain

import (
	"testing"
	"time"
)

func TestSession_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{"unknown expiry", time.Time{}, false},
		{"future expiry", time.Now().Add(time.Hour), false},
		{"past expiry", time.Now().Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Token: "t", ExpiresAt: tt.expiresAt}
			if s.IsExpired() != tt.expected {
				t.Errorf("expected IsExpired=%v", tt.expected)
			}
		})
	}
}

func TestSession_TTL(t *testing.T) {
	s := &Session{Token: "t"}
	if s.TTL() != 0 {
		t.Errorf("expected 0 TTL for unknown expiry, got %v", s.TTL())
	}

	s.ExpiresAt = time.Now().Add(30 * time.Minute)
	if ttl := s.TTL(); ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Errorf("unexpected TTL %v", ttl)
	}
}

func TestSignUpRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SignUpRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  SignUpRequest{Username: "analyst", Email: "analyst@example.com", Password: "pw", IsActive: true},
		},
		{
			name:    "missing username",
			req:     SignUpRequest{Email: "analyst@example.com", Password: "pw"},
			wantErr: true,
		},
		{
			name:    "malformed email",
			req:     SignUpRequest{Username: "analyst", Email: "not-an-email", Password: "pw"},
			wantErr: true,
		},
		{
			name:    "missing password",
			req:     SignUpRequest{Username: "analyst", Email: "analyst@example.com"},
			wantErr: true,
		},
		{
			name: "weak password is accepted",
			req:  SignUpRequest{Username: "a", Email: "a@b.co", Password: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
