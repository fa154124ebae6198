package runtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
	"github.com/custodia-labs/investigraph/internal/core/services"
)

// Verify interface compliance
var _ driving.ViewRegistry = (*Services)(nil)

// Services holds references to the live view containers: the single
// dashboard and one chat session per scope. Chat sessions are created on
// first use and live until closed or until the user logs out.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	api       driven.InvestiGraphAPI
	dashboard *services.Dashboard
	logger    *slog.Logger

	chats map[domain.Scope]*services.ChatSession
}

// NewServices creates a new Services registry
func NewServices(api driven.InvestiGraphAPI, dashboard *services.Dashboard, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	return &Services{
		api:       api,
		dashboard: dashboard,
		logger:    logger,
		chats:     make(map[domain.Scope]*services.ChatSession),
	}
}

// Dashboard returns the dashboard container
func (s *Services) Dashboard() driving.DashboardView {
	return s.dashboard
}

// Chat returns the session for a scope, creating it on first use
func (s *Services) Chat(scope domain.Scope) (driving.ChatView, error) {
	scope, err := domain.ParseScope(string(scope))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	chat, ok := s.chats[scope]
	s.mu.RUnlock()
	if ok {
		return chat, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check after acquiring the write lock
	if chat, ok := s.chats[scope]; ok {
		return chat, nil
	}

	created, err := services.NewChatSession(services.ChatSessionConfig{
		API:    s.api,
		Scope:  scope,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.chats[scope] = created
	return created, nil
}

// Scopes lists the scopes with an open chat session
func (s *Services) Scopes() []domain.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]domain.Scope, 0, len(s.chats))
	for scope := range s.chats {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes
}

// CloseChat discards the transcript for a scope. Closing an unknown scope
// is a no-op.
func (s *Services) CloseChat(scope domain.Scope) {
	s.mu.Lock()
	chat, ok := s.chats[scope]
	delete(s.chats, scope)
	s.mu.Unlock()

	if ok {
		chat.Close()
	}
}

// ResetChats closes every chat session
func (s *Services) ResetChats() {
	s.mu.Lock()
	chats := s.chats
	s.chats = make(map[domain.Scope]*services.ChatSession)
	s.mu.Unlock()

	for _, chat := range chats {
		chat.Close()
	}
}

// Close shuts down all views
func (s *Services) Close() error {
	s.ResetChats()
	if s.dashboard != nil {
		s.dashboard.Unmount()
	}
	return nil
}
